// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"encoding/binary"
	"sync/atomic"
)

const (
	// slabEndSize is the size of the end-of-data header field.
	slabEndSize = 8

	// EmptySlab is the sentinel stored in bucket headers and next
	// pointers of slab-backed structures to denote no slab.
	EmptySlab uint64 = 0xffffffffffffffff
)

// SlabAllocator manages variable-size slabs inside a region of a mapped
// file beginning at a base offset.  The region lays out a uint64
// end-of-data offset followed by the slabs.  Slab positions are absolute
// file offsets, so they can be stored in other files and resolved
// without knowing the allocator's base.
//
// Like the record allocator, the end offset is only committed by Sync.
// The end field is atomic for the same reason the record allocator's
// count is: unordered readers sample it mid-write and must not tear.
type SlabAllocator struct {
	file *File
	base uint64
	end  atomic.Uint64
}

// NewSlabAllocator returns a slab allocator over the given file starting
// at the base offset.
func NewSlabAllocator(file *File, base uint64) *SlabAllocator {
	return &SlabAllocator{file: file, base: base}
}

// Create initializes an empty region whose end points just past the
// header.
func (a *SlabAllocator) Create() error {
	if err := a.file.Reserve(a.base + slabEndSize); err != nil {
		return err
	}
	a.end.Store(a.base + slabEndSize)
	return a.Sync()
}

// Start reads the committed end offset from the file header.
func (a *SlabAllocator) Start() error {
	if a.file.Size() < a.base+slabEndSize {
		return corruptionError("slab header truncated at offset %d", a.base)
	}
	a.end.Store(binary.LittleEndian.Uint64(a.file.Data()[a.base:]))
	if end := a.end.Load(); end < a.base+slabEndSize || end > a.file.Size() {
		return corruptionError("slab end %d outside file", end)
	}
	return nil
}

// Allocate reserves size bytes and returns their position.  The slab
// bytes are undefined until the caller writes them.
func (a *SlabAllocator) Allocate(size uint64) (uint64, error) {
	position := a.end.Load()
	a.end.Store(position + size)
	if err := a.file.Reserve(position + size); err != nil {
		return 0, err
	}
	return position, nil
}

// Get returns a view starting at position and running to the end of the
// allocated region.  The caller knows the slab's length from its format.
func (a *SlabAllocator) Get(position uint64) ([]byte, error) {
	end := a.end.Load()
	if position < a.base+slabEndSize || position >= end {
		return nil, ErrOutOfBounds
	}
	return a.file.Data()[position:end], nil
}

// End returns the current end-of-data offset, including any allocations
// not yet committed by Sync.
func (a *SlabAllocator) End() uint64 {
	return a.end.Load()
}

// Truncate rewinds the end of data to position, discarding every slab at
// and above it.
func (a *SlabAllocator) Truncate(position uint64) {
	if position >= a.base+slabEndSize && position < a.end.Load() {
		a.end.Store(position)
	}
}

// Sync commits the end offset to the file header.
func (a *SlabAllocator) Sync() error {
	binary.LittleEndian.PutUint64(a.file.Data()[a.base:], a.end.Load())
	return nil
}
