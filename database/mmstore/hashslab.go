// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"bytes"
	"encoding/binary"
)

// SlabTable is a hash table of variable-size values chained through the
// slab allocator.  The file region lays out a header of uint64 buckets
// followed by the slab region.  Each slab is an item of the form
//
//	[key][next:uint64][value...]
//
// where next is the position of the following item in the bucket chain,
// or EmptySlab at the end.  Chains are newest-first like the record
// table.  Bucket selection reads the leading eight key bytes as a
// big-endian integer modulo the bucket count.
type SlabTable struct {
	file    *File
	buckets uint64
	keySize uint64
	slabs   *SlabAllocator
}

// NewSlabTable returns a slab-backed hash table with the given bucket
// count over keys of the given fixed size.
func NewSlabTable(file *File, buckets, keySize uint64) *SlabTable {
	return &SlabTable{
		file:    file,
		buckets: buckets,
		keySize: keySize,
		slabs:   NewSlabAllocator(file, buckets*8),
	}
}

// Create initializes the bucket header with empty sentinels and an empty
// slab region.
func (t *SlabTable) Create() error {
	if err := t.file.Reserve(t.buckets * 8); err != nil {
		return err
	}
	data := t.file.Data()
	for bucket := uint64(0); bucket < t.buckets; bucket++ {
		binary.LittleEndian.PutUint64(data[bucket*8:], EmptySlab)
	}
	return t.slabs.Create()
}

// Start reads the committed end offset.
func (t *SlabTable) Start() error {
	return t.slabs.Start()
}

// Allocator exposes the underlying slab allocator so owners that embed
// auxiliary slabs in the same file can share it.
func (t *SlabTable) Allocator() *SlabAllocator {
	return t.slabs
}

// Store allocates an item with a valueSize-byte value for key, fills the
// value via write, and links the item at the head of its bucket chain.
func (t *SlabTable) Store(key []byte, valueSize uint64, write func(value []byte)) error {
	position, err := t.slabs.Allocate(t.keySize + 8 + valueSize)
	if err != nil {
		return err
	}
	slab, err := t.slabs.Get(position)
	if err != nil {
		return err
	}

	copy(slab[:t.keySize], key)
	binary.LittleEndian.PutUint64(slab[t.keySize:], t.bucketHead(key))
	write(slab[t.keySize+8 : t.keySize+8+valueSize])

	// Link the new item into the bucket only after it is fully written.
	t.setBucketHead(key, position)
	return nil
}

// Get returns a view of the value stored for key, running from the value
// start to the end of the slab region, or nil when absent.
func (t *SlabTable) Get(key []byte) ([]byte, error) {
	current := t.bucketHead(key)
	for current != EmptySlab {
		slab, err := t.slabs.Get(current)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(slab[:t.keySize], key) {
			return slab[t.keySize+8:], nil
		}
		next := binary.LittleEndian.Uint64(slab[t.keySize:])
		if next == current {
			return nil, corruptionError("slab chain self-link at %d", current)
		}
		current = next
	}
	return nil, nil
}

// Unlink removes the first item found for key from its bucket chain.
// The item's space is not reclaimed.  It returns false when the key is
// not present.
func (t *SlabTable) Unlink(key []byte) (bool, error) {
	current := t.bucketHead(key)
	var previous []byte
	for current != EmptySlab {
		slab, err := t.slabs.Get(current)
		if err != nil {
			return false, err
		}
		next := binary.LittleEndian.Uint64(slab[t.keySize:])
		if bytes.Equal(slab[:t.keySize], key) {
			if previous == nil {
				t.setBucketHead(key, next)
			} else {
				binary.LittleEndian.PutUint64(previous[t.keySize:], next)
			}
			return true, nil
		}
		if next == current {
			return false, corruptionError("slab chain self-link at %d", current)
		}
		previous = slab
		current = next
	}
	return false, nil
}

// Sync commits the end offset.
func (t *SlabTable) Sync() error {
	return t.slabs.Sync()
}

func (t *SlabTable) bucketIndex(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[:8]) % t.buckets
}

func (t *SlabTable) bucketHead(key []byte) uint64 {
	offset := t.bucketIndex(key) * 8
	return binary.LittleEndian.Uint64(t.file.Data()[offset:])
}

func (t *SlabTable) setBucketHead(key []byte, position uint64) {
	offset := t.bucketIndex(key) * 8
	binary.LittleEndian.PutUint64(t.file.Data()[offset:], position)
}
