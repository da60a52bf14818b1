// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// Stealth row layout:
//
//	[ephemeral key:32][address hash:20][tx hash:32]
const stealthRowSize = chainhash.HashSize + AddressHashSize + chainhash.HashSize

// StealthRow is one scan-index entry: the ephemeral key published in a
// stealth output pair, the recipient's address hash, and the containing
// transaction.
type StealthRow struct {
	Ephemeral   chainhash.Hash
	AddressHash [AddressHashSize]byte
	TxHash      chainhash.Hash
}

// Prefix returns the row's scan prefix, the leading four bytes of the
// ephemeral key read big-endian.
func (r *StealthRow) Prefix() uint32 {
	return binary.BigEndian.Uint32(r.Ephemeral[:4])
}

// stealthDB shards stealth rows by block height.  Each pushed block
// appends one entry to a height-indexed position file recording where
// its rows begin in the row slab; the rows themselves are written
// contiguously and sorted by scan prefix so scans can binary-search
// within each block.  Unlink rewinds the slab to the block's start
// position, discarding its rows wholesale.
type stealthDB struct {
	indexFile *mmstore.File
	rowsFile  *mmstore.File
	rows      *mmstore.SlabAllocator

	// heights is the number of per-height index entries.  Atomic for
	// the same reason the allocator counters are.
	heights atomic.Uint64
}

// The index file lays out [count:uint64][start position:uint64 x count].
const stealthIndexHeaderSize = 8

func newStealthDB(indexFile, rowsFile *mmstore.File) *stealthDB {
	return &stealthDB{
		indexFile: indexFile,
		rowsFile:  rowsFile,
		rows:      mmstore.NewSlabAllocator(rowsFile, 0),
	}
}

func (db *stealthDB) create() error {
	if err := db.indexFile.Reserve(stealthIndexHeaderSize); err != nil {
		return err
	}
	db.heights.Store(0)
	if err := db.syncIndex(); err != nil {
		return err
	}
	return db.rows.Create()
}

func (db *stealthDB) start() error {
	if db.indexFile.Size() < stealthIndexHeaderSize {
		return makeError(ErrCorruption, "stealth index header truncated", nil)
	}
	db.heights.Store(binary.LittleEndian.Uint64(db.indexFile.Data()))
	if db.indexFile.Size() < stealthIndexHeaderSize+db.heights.Load()*8 {
		return makeError(ErrCorruption, "stealth index smaller than its count", nil)
	}
	if err := db.rows.Start(); err != nil {
		return convertStoreErr("stealth rows", err)
	}
	return nil
}

// blockStart returns the row-slab position where the given height's rows
// begin.
func (db *stealthDB) blockStart(height uint64) uint64 {
	offset := stealthIndexHeaderSize + height*8
	return binary.LittleEndian.Uint64(db.indexFile.Data()[offset:])
}

// store appends the index entry for the next height and writes its rows,
// sorted by scan prefix.  It must be called exactly once per pushed
// block, with an empty batch for blocks that carry no stealth outputs.
func (db *stealthDB) store(batch []StealthRow) error {
	offset := stealthIndexHeaderSize + db.heights.Load()*8
	if err := db.indexFile.Reserve(offset + 8); err != nil {
		return convertStoreErr("stealth index grow", err)
	}
	binary.LittleEndian.PutUint64(db.indexFile.Data()[offset:], db.rows.End())
	db.heights.Add(1)

	if len(batch) == 0 {
		return nil
	}

	sort.Slice(batch, func(i, j int) bool {
		return bytes.Compare(batch[i].Ephemeral[:4], batch[j].Ephemeral[:4]) < 0
	})

	position, err := db.rows.Allocate(uint64(len(batch)) * stealthRowSize)
	if err != nil {
		return convertStoreErr("stealth rows alloc", err)
	}
	slab, err := db.rows.Get(position)
	if err != nil {
		return convertStoreErr("stealth rows view", err)
	}
	for _, row := range batch {
		copy(slab, row.Ephemeral[:])
		copy(slab[chainhash.HashSize:], row.AddressHash[:])
		copy(slab[chainhash.HashSize+AddressHashSize:], row.TxHash[:])
		slab = slab[stealthRowSize:]
	}
	return nil
}

// unlink rewinds the row slab to the start of the given height's rows
// and drops the index entries at and above it.
func (db *stealthDB) unlink(height int32) {
	if uint64(height) >= db.heights.Load() {
		return
	}
	db.rows.Truncate(db.blockStart(uint64(height)))
	db.heights.Store(uint64(height))
}

// scan yields every row at or above fromHeight whose scan prefix equals
// prefix.  Within each block the rows are sorted by prefix, so the scan
// binary-searches to the first candidate and walks while it matches.
func (db *stealthDB) scan(prefix uint32, fromHeight int32) ([]StealthRow, error) {
	var want [4]byte
	binary.BigEndian.PutUint32(want[:], prefix)

	var results []StealthRow
	heights := db.heights.Load()
	for height := uint64(fromHeight); height < heights; height++ {
		start := db.blockStart(height)
		end := db.rows.End()
		if height+1 < heights {
			end = db.blockStart(height + 1)
		}
		if end <= start {
			continue
		}

		data, err := db.rows.Get(start)
		if err != nil {
			return nil, convertStoreErr("stealth rows view", err)
		}
		count := int((end - start) / stealthRowSize)
		rows := data[:count*stealthRowSize]

		first := sort.Search(count, func(i int) bool {
			row := rows[i*stealthRowSize:]
			return bytes.Compare(row[:4], want[:]) >= 0
		})
		for i := first; i < count; i++ {
			row := rows[i*stealthRowSize:]
			if !bytes.Equal(row[:4], want[:]) {
				break
			}
			var result StealthRow
			copy(result.Ephemeral[:], row[:chainhash.HashSize])
			copy(result.AddressHash[:], row[chainhash.HashSize:])
			copy(result.TxHash[:], row[chainhash.HashSize+AddressHashSize:])
			results = append(results, result)
		}
	}
	return results, nil
}

func (db *stealthDB) syncIndex() error {
	binary.LittleEndian.PutUint64(db.indexFile.Data(), db.heights.Load())
	return nil
}

func (db *stealthDB) sync() error {
	if err := db.rows.Sync(); err != nil {
		return convertStoreErr("stealth rows sync", err)
	}
	return db.syncIndex()
}
