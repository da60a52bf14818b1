// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"bytes"
	"encoding/binary"
)

// RecordTable is a hash table of fixed-size values chained through the
// record allocator.  The file region lays out a header of uint32 buckets
// followed by the record region.  Each record is an item of the form
//
//	[key][next:uint32][value]
//
// where next is the index of the following item in the bucket chain, or
// EmptyRecord at the end.  New items are spliced at the head of their
// bucket, so lookups observe the most recently stored value for a key.
//
// Since the keys stored here are uniformly-distributed hashes, bucket
// selection simply reads the leading four key bytes as a big-endian
// integer modulo the bucket count.
type RecordTable struct {
	file      *File
	buckets   uint64
	keySize   uint64
	valueSize uint64
	records   *RecordAllocator
}

// NewRecordTable returns a record-backed hash table with the given
// bucket count over keys and values of the given fixed sizes.
func NewRecordTable(file *File, buckets, keySize, valueSize uint64) *RecordTable {
	itemSize := keySize + 4 + valueSize
	return &RecordTable{
		file:      file,
		buckets:   buckets,
		keySize:   keySize,
		valueSize: valueSize,
		records:   NewRecordAllocator(file, buckets*4, itemSize),
	}
}

// Create initializes the bucket header with empty sentinels and an empty
// record region.
func (t *RecordTable) Create() error {
	if err := t.file.Reserve(t.buckets * 4); err != nil {
		return err
	}
	data := t.file.Data()
	for bucket := uint64(0); bucket < t.buckets; bucket++ {
		binary.LittleEndian.PutUint32(data[bucket*4:], EmptyRecord)
	}
	return t.records.Create()
}

// Start reads the committed record count.
func (t *RecordTable) Start() error {
	return t.records.Start()
}

// Store allocates a new item for key, fills its value via write, and
// links it at the head of its bucket chain.  Storing a key that is
// already present without unlinking it first shadows the old item.
func (t *RecordTable) Store(key []byte, write func(value []byte)) error {
	index, err := t.records.Allocate()
	if err != nil {
		return err
	}
	record, err := t.records.Get(index)
	if err != nil {
		return err
	}

	copy(record[:t.keySize], key)
	binary.LittleEndian.PutUint32(record[t.keySize:], t.bucketHead(key))
	write(record[t.keySize+4:])

	// Link the new item into the bucket only after it is fully written.
	t.setBucketHead(key, index)
	return nil
}

// Get returns a view of the value stored for key, or nil when absent.
func (t *RecordTable) Get(key []byte) ([]byte, error) {
	current := t.bucketHead(key)
	for current != EmptyRecord {
		record, err := t.records.Get(current)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(record[:t.keySize], key) {
			return record[t.keySize+4 : t.keySize+4+t.valueSize], nil
		}
		next := binary.LittleEndian.Uint32(record[t.keySize:])
		if next == current {
			return nil, corruptionError("record chain self-link at %d", current)
		}
		current = next
	}
	return nil, nil
}

// Unlink removes the first item found for key from its bucket chain by
// patching the preceding link.  The item's space is not reclaimed.  It
// returns false when the key is not present.
func (t *RecordTable) Unlink(key []byte) (bool, error) {
	current := t.bucketHead(key)
	var previous []byte
	for current != EmptyRecord {
		record, err := t.records.Get(current)
		if err != nil {
			return false, err
		}
		next := binary.LittleEndian.Uint32(record[t.keySize:])
		if bytes.Equal(record[:t.keySize], key) {
			if previous == nil {
				t.setBucketHead(key, next)
			} else {
				binary.LittleEndian.PutUint32(previous[t.keySize:], next)
			}
			return true, nil
		}
		if next == current {
			return false, corruptionError("record chain self-link at %d", current)
		}
		previous = record
		current = next
	}
	return false, nil
}

// Sync commits the record count.
func (t *RecordTable) Sync() error {
	return t.records.Sync()
}

func (t *RecordTable) bucketIndex(key []byte) uint64 {
	return uint64(binary.BigEndian.Uint32(key[:4])) % t.buckets
}

func (t *RecordTable) bucketHead(key []byte) uint32 {
	offset := t.bucketIndex(key) * 4
	return binary.LittleEndian.Uint32(t.file.Data()[offset:])
}

func (t *RecordTable) setBucketHead(key []byte, index uint32) {
	offset := t.bucketIndex(key) * 4
	binary.LittleEndian.PutUint32(t.file.Data()[offset:], index)
}
