// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"encoding/binary"
	"sync/atomic"
)

const (
	// recordCountSize is the size of the record count header field.
	recordCountSize = 4

	// EmptyRecord is the sentinel stored in bucket headers and next
	// pointers of record-backed structures to denote no record.
	EmptyRecord uint32 = 0xffffffff
)

// RecordAllocator manages fixed-size records inside a region of a mapped
// file beginning at a base offset.  The region lays out a uint32 record
// count followed by the records themselves.
//
// The count field is only rewritten by Sync, after the bytes of newly
// allocated records have been written, so a crash between Allocate and
// Sync discards the tentative records on the next Start.
// The count field is atomic because unordered readers sample it while
// the writer appends; the sequence lock at the database layer discards
// any read that raced a write, but the sample itself must not tear.
type RecordAllocator struct {
	file       *File
	base       uint64
	recordSize uint64
	count      atomic.Uint32
}

// NewRecordAllocator returns an allocator for recordSize-byte records in
// the given file starting at the base offset.
func NewRecordAllocator(file *File, base, recordSize uint64) *RecordAllocator {
	return &RecordAllocator{file: file, base: base, recordSize: recordSize}
}

// Create initializes an empty region with a zero record count.
func (a *RecordAllocator) Create() error {
	if err := a.file.Reserve(a.base + recordCountSize); err != nil {
		return err
	}
	a.count.Store(0)
	return a.Sync()
}

// Start reads the committed record count from the file header.
func (a *RecordAllocator) Start() error {
	if a.file.Size() < a.base+recordCountSize {
		return corruptionError("record header truncated at offset %d", a.base)
	}
	a.count.Store(binary.LittleEndian.Uint32(a.file.Data()[a.base:]))
	if count := a.count.Load(); a.file.Size() < a.offset(count) {
		return corruptionError("record file smaller than %d records", count)
	}
	return nil
}

// Allocate reserves the next record index and grows the file as needed.
// The record bytes are undefined until the caller writes them.
func (a *RecordAllocator) Allocate() (uint32, error) {
	index := a.count.Load()
	a.count.Store(index + 1)
	if err := a.file.Reserve(a.offset(index + 1)); err != nil {
		return 0, err
	}
	return index, nil
}

// Get returns a mutable view of the record at the given index.
func (a *RecordAllocator) Get(index uint32) ([]byte, error) {
	if index >= a.count.Load() {
		return nil, ErrOutOfBounds
	}
	offset := a.offset(index)
	return a.file.Data()[offset : offset+a.recordSize], nil
}

// Count returns the number of allocated records, including any not yet
// committed by Sync.
func (a *RecordAllocator) Count() uint32 {
	return a.count.Load()
}

// Truncate discards records at and above count.  Space is not reclaimed;
// the count simply stops covering them.
func (a *RecordAllocator) Truncate(count uint32) {
	if count < a.count.Load() {
		a.count.Store(count)
	}
}

// Sync commits the record count to the file header.  It must be called
// after the bytes of every allocated record have been written.
func (a *RecordAllocator) Sync() error {
	binary.LittleEndian.PutUint32(a.file.Data()[a.base:], a.count.Load())
	return nil
}

func (a *RecordAllocator) offset(index uint32) uint64 {
	return a.base + recordCountSize + uint64(index)*a.recordSize
}
