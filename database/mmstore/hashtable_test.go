// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestRecordTableStoreGetUnlink(t *testing.T) {
	file := openTestFile(t)
	table := NewRecordTable(file, 13, 32, 8)
	require.NoError(t, table.Create())

	keyA, keyB := testKey(1), testKey(2)

	require.NoError(t, table.Store(keyA, func(value []byte) {
		binary.LittleEndian.PutUint64(value, 0xaaaa)
	}))
	require.NoError(t, table.Store(keyB, func(value []byte) {
		binary.LittleEndian.PutUint64(value, 0xbbbb)
	}))
	require.NoError(t, table.Sync())

	value, err := table.Get(keyA)
	require.NoError(t, err)
	require.Equal(t, uint64(0xaaaa), binary.LittleEndian.Uint64(value))

	value, err = table.Get(keyB)
	require.NoError(t, err)
	require.Equal(t, uint64(0xbbbb), binary.LittleEndian.Uint64(value))

	found, err := table.Unlink(keyA)
	require.NoError(t, err)
	require.True(t, found)

	value, err = table.Get(keyA)
	require.NoError(t, err)
	require.Nil(t, value)

	// Unlinked keys do not disturb others sharing the bucket.
	value, err = table.Get(keyB)
	require.NoError(t, err)
	require.Equal(t, uint64(0xbbbb), binary.LittleEndian.Uint64(value))

	found, err = table.Unlink(keyA)
	require.NoError(t, err)
	require.False(t, found)
}

// TestRecordTableShadowing verifies that re-storing a key without
// unlinking it first yields the newest value on lookup.
func TestRecordTableShadowing(t *testing.T) {
	file := openTestFile(t)
	table := NewRecordTable(file, 7, 32, 8)
	require.NoError(t, table.Create())

	key := testKey(9)
	for i := uint64(1); i <= 3; i++ {
		value := i
		require.NoError(t, table.Store(key, func(v []byte) {
			binary.LittleEndian.PutUint64(v, value)
		}))
	}

	value, err := table.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(value))
}

// TestRecordTableSelfLink verifies that an injected self-link in a chain
// surfaces as corruption instead of looping forever.
func TestRecordTableSelfLink(t *testing.T) {
	file := openTestFile(t)
	table := NewRecordTable(file, 1, 32, 8)
	require.NoError(t, table.Create())

	key := testKey(4)
	require.NoError(t, table.Store(key, func(value []byte) {}))

	// Corrupt the item's next pointer to point at itself.
	record, err := table.records.Get(0)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(record[32:], 0)

	_, err = table.Get(testKey(200))
	require.ErrorIs(t, err, ErrCorruption)
}

func TestSlabTableStoreGetUnlink(t *testing.T) {
	file := openTestFile(t)
	table := NewSlabTable(file, 13, 32)
	require.NoError(t, table.Create())

	keyA, keyB := testKey(1), testKey(2)

	require.NoError(t, table.Store(keyA, 5, func(value []byte) {
		copy(value, "alpha")
	}))
	require.NoError(t, table.Store(keyB, 4, func(value []byte) {
		copy(value, "beta")
	}))
	require.NoError(t, table.Sync())

	value, err := table.Get(keyA)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(value[:5]))

	value, err = table.Get(keyB)
	require.NoError(t, err)
	require.Equal(t, "beta", string(value[:4]))

	found, err := table.Unlink(keyB)
	require.NoError(t, err)
	require.True(t, found)

	value, err = table.Get(keyB)
	require.NoError(t, err)
	require.Nil(t, value)

	value, err = table.Get(keyA)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(value[:5]))
}

// TestRecordTableProperties drives random store/unlink interleavings
// against a reference map and checks the table always agrees.
func TestRecordTableProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		file, err := OpenFile(t.TempDir() + "/prop.db")
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		defer file.Close()

		table := NewRecordTable(file, 3, 32, 8)
		if err := table.Create(); err != nil {
			rt.Fatalf("create: %v", err)
		}

		reference := make(map[byte]uint64)
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			seed := byte(rapid.IntRange(0, 7).Draw(rt, "seed"))
			key := testKey(seed)

			if rapid.Bool().Draw(rt, "store") {
				// Keep each key single-valued, as the database layer
				// does, by unlinking before re-storing.
				if _, ok := reference[seed]; ok {
					if _, err := table.Unlink(key); err != nil {
						rt.Fatalf("unlink: %v", err)
					}
				}
				value := uint64(rapid.IntRange(1, 1<<30).Draw(rt, "value"))
				err := table.Store(key, func(v []byte) {
					binary.LittleEndian.PutUint64(v, value)
				})
				if err != nil {
					rt.Fatalf("store: %v", err)
				}
				reference[seed] = value
			} else {
				found, err := table.Unlink(key)
				if err != nil {
					rt.Fatalf("unlink: %v", err)
				}
				_, ok := reference[seed]
				if found != ok {
					rt.Fatalf("unlink found=%v want %v", found, ok)
				}
				delete(reference, seed)
			}
		}

		for seed := byte(0); seed < 8; seed++ {
			value, err := table.Get(testKey(seed))
			if err != nil {
				rt.Fatalf("get: %v", err)
			}
			want, ok := reference[seed]
			if !ok {
				if value != nil {
					rt.Fatalf("key %d should be absent", seed)
				}
				continue
			}
			if value == nil {
				rt.Fatalf("key %d should be present", seed)
			}
			if got := binary.LittleEndian.Uint64(value); got != want {
				rt.Fatalf("key %d = %d, want %d", seed, got, want)
			}
		}
	})
}
