// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"encoding/binary"
)

// RecordMultimap maps a key to a LIFO list of equal-sized rows.  A
// record-backed hash table stores the index of the head row for each
// key, and the rows themselves live in a separate record allocator with
// a trailing uint32 next field linking each row to the one added before
// it.
//
// Deleting always removes the most recently added row, which is exactly
// the reversal order the chain database needs when a block is popped.
type RecordMultimap struct {
	table *RecordTable
	rows  *RecordAllocator
	// payloadSize is the row size excluding the trailing next field.
	payloadSize uint64
}

// NewRecordMultimap returns a multimap whose head pointers live in the
// given table (which must have a 4-byte value) and whose rows live in
// the given allocator (whose record size must be payloadSize+4).
func NewRecordMultimap(table *RecordTable, rows *RecordAllocator, payloadSize uint64) *RecordMultimap {
	return &RecordMultimap{table: table, rows: rows, payloadSize: payloadSize}
}

// AddRow allocates a new row for key, fills its payload via write, and
// splices it at the head of the key's list.
func (m *RecordMultimap) AddRow(key []byte, write func(payload []byte)) error {
	head, err := m.Lookup(key)
	if err != nil {
		return err
	}

	index, err := m.rows.Allocate()
	if err != nil {
		return err
	}
	row, err := m.rows.Get(index)
	if err != nil {
		return err
	}
	write(row[:m.payloadSize])
	binary.LittleEndian.PutUint32(row[m.payloadSize:], head)

	if head == EmptyRecord {
		return m.table.Store(key, func(value []byte) {
			binary.LittleEndian.PutUint32(value, index)
		})
	}

	// The key already has rows, so redirect its head pointer in place.
	// This is a single aligned 4-byte write.
	value, err := m.table.Get(key)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(value, index)
	return nil
}

// DeleteLastRow pops the most recently added row for key.  When the list
// becomes empty the key is unlinked from the lookup table.  It returns
// false when the key has no rows.
func (m *RecordMultimap) DeleteLastRow(key []byte) (bool, error) {
	head, err := m.Lookup(key)
	if err != nil {
		return false, err
	}
	if head == EmptyRecord {
		return false, nil
	}

	row, err := m.rows.Get(head)
	if err != nil {
		return false, err
	}
	next := binary.LittleEndian.Uint32(row[m.payloadSize:])

	if next == EmptyRecord {
		return m.table.Unlink(key)
	}

	value, err := m.table.Get(key)
	if err != nil {
		return false, err
	}
	binary.LittleEndian.PutUint32(value, next)
	return true, nil
}

// Lookup returns the head row index for key, or EmptyRecord when the key
// has no rows.
func (m *RecordMultimap) Lookup(key []byte) (uint32, error) {
	value, err := m.table.Get(key)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return EmptyRecord, nil
	}
	return binary.LittleEndian.Uint32(value), nil
}

// GetAll iterates the rows for key newest-first, invoking visit with
// each row's payload until the list ends or visit returns false.
func (m *RecordMultimap) GetAll(key []byte, visit func(payload []byte) bool) error {
	current, err := m.Lookup(key)
	if err != nil {
		return err
	}
	for current != EmptyRecord {
		row, err := m.rows.Get(current)
		if err != nil {
			return err
		}
		if !visit(row[:m.payloadSize]) {
			return nil
		}
		next := binary.LittleEndian.Uint32(row[m.payloadSize:])
		if next == current {
			return corruptionError("row chain self-link at %d", current)
		}
		current = next
	}
	return nil
}

// Sync commits both the lookup table and the row allocator.
func (m *RecordMultimap) Sync() error {
	if err := m.rows.Sync(); err != nil {
		return err
	}
	return m.table.Sync()
}
