// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// Block slab body layout:
//
//	[serialized header:80][tx count:uint32][tx hash:32 x count]
const (
	blockHeaderSize = 80
	blockCountSize  = 4
)

// BlockResult provides accessors over a stored block row.  The
// underlying bytes are a view into the mapping and are only valid for
// the duration of the read attempt that produced the result, so
// accessors copy what they return.
type BlockResult struct {
	raw    []byte
	height int32
}

// Header deserializes and returns the stored block header.
func (r *BlockResult) Header() (*wire.BlockHeader, error) {
	var header wire.BlockHeader
	err := header.Deserialize(bytes.NewReader(r.raw[:blockHeaderSize]))
	if err != nil {
		return nil, makeError(ErrCorruption, "undecodable block header", err)
	}
	return &header, nil
}

// Height returns the height the block row was stored at.
func (r *BlockResult) Height() int32 {
	return r.height
}

// TransactionCount returns the number of transaction hashes in the row.
func (r *BlockResult) TransactionCount() uint32 {
	return binary.LittleEndian.Uint32(r.raw[blockHeaderSize:])
}

// TransactionHash returns a copy of the hash of the transaction at the
// given index within the block.
func (r *BlockResult) TransactionHash(index uint32) chainhash.Hash {
	var hash chainhash.Hash
	offset := blockHeaderSize + blockCountSize + int(index)*chainhash.HashSize
	copy(hash[:], r.raw[offset:offset+chainhash.HashSize])
	return hash
}

// blockDB indexes block metadata three ways: a height-ordered record
// file of row positions, a slab file holding the rows, and a hash table
// resolving block hashes to row positions.
//
// The height index is the authoritative confirmed state.  Unlink only
// rewinds the height index; the hash lookup still resolves a popped
// block's hash until overwritten, and callers must not rely on it for
// membership above the indexed top.
type blockDB struct {
	indexFile  *mmstore.File
	rowsFile   *mmstore.File
	lookupFile *mmstore.File

	index  *mmstore.RecordAllocator
	rows   *mmstore.SlabAllocator
	lookup *mmstore.SlabTable
}

func newBlockDB(indexFile, rowsFile, lookupFile *mmstore.File, buckets uint64) *blockDB {
	return &blockDB{
		indexFile:  indexFile,
		rowsFile:   rowsFile,
		lookupFile: lookupFile,
		index:      mmstore.NewRecordAllocator(indexFile, 0, 8),
		rows:       mmstore.NewSlabAllocator(rowsFile, 0),
		lookup:     mmstore.NewSlabTable(lookupFile, buckets, chainhash.HashSize),
	}
}

func (db *blockDB) create() error {
	if err := db.index.Create(); err != nil {
		return err
	}
	if err := db.rows.Create(); err != nil {
		return err
	}
	return db.lookup.Create()
}

func (db *blockDB) start() error {
	if err := db.index.Start(); err != nil {
		return convertStoreErr("block index", err)
	}
	if err := db.rows.Start(); err != nil {
		return convertStoreErr("block rows", err)
	}
	if err := db.lookup.Start(); err != nil {
		return convertStoreErr("block lookup", err)
	}
	return nil
}

// top returns the current top height, or false when no block is stored.
func (db *blockDB) top() (int32, bool) {
	count := db.index.Count()
	if count == 0 {
		return 0, false
	}
	return int32(count - 1), true
}

// store writes the block's row at the next height and indexes it by
// height and hash.
func (db *blockDB) store(header *wire.BlockHeader, txHashes []chainhash.Hash) error {
	size := uint64(blockHeaderSize + blockCountSize + len(txHashes)*chainhash.HashSize)
	position, err := db.rows.Allocate(size)
	if err != nil {
		return convertStoreErr("block row alloc", err)
	}
	row, err := db.rows.Get(position)
	if err != nil {
		return convertStoreErr("block row view", err)
	}

	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return makeError(ErrStoreFailed, "serialize block header", err)
	}
	copy(row, buf.Bytes())
	binary.LittleEndian.PutUint32(row[blockHeaderSize:], uint32(len(txHashes)))
	offset := blockHeaderSize + blockCountSize
	for _, hash := range txHashes {
		copy(row[offset:], hash[:])
		offset += chainhash.HashSize
	}

	index, err := db.index.Allocate()
	if err != nil {
		return convertStoreErr("block index alloc", err)
	}
	record, err := db.index.Get(index)
	if err != nil {
		return convertStoreErr("block index view", err)
	}
	binary.LittleEndian.PutUint64(record, position)

	blockHash := header.BlockHash()
	err = db.lookup.Store(blockHash[:], 8, func(value []byte) {
		binary.LittleEndian.PutUint64(value, position)
	})
	if err != nil {
		return convertStoreErr("block lookup store", err)
	}
	return nil
}

// get returns the block row stored at the given height.
func (db *blockDB) get(height int32) (*BlockResult, error) {
	if height < 0 || uint32(height) >= db.index.Count() {
		return nil, makeError(ErrNotFound, "no block at requested height", nil)
	}
	record, err := db.index.Get(uint32(height))
	if err != nil {
		return nil, convertStoreErr("block index view", err)
	}
	position := binary.LittleEndian.Uint64(record)
	raw, err := db.rows.Get(position)
	if err != nil {
		return nil, convertStoreErr("block row view", err)
	}
	return &BlockResult{raw: raw, height: height}, nil
}

// getByHash returns the block row stored for the given block hash along
// with its height, resolved by scanning the height index for the row
// position.  Heights above the indexed top do not resolve.
func (db *blockDB) getByHash(hash *chainhash.Hash) (*BlockResult, error) {
	value, err := db.lookup.Get(hash[:])
	if err != nil {
		return nil, convertStoreErr("block lookup", err)
	}
	if value == nil {
		return nil, makeError(ErrNotFound, "no block with requested hash", nil)
	}
	position := binary.LittleEndian.Uint64(value)

	height, ok := db.heightOf(position)
	if !ok {
		// The hash resolves to a row that the height index no longer
		// covers, meaning the block was popped.
		return nil, makeError(ErrNotFound, "block not on the confirmed chain", nil)
	}

	raw, err := db.rows.Get(position)
	if err != nil {
		return nil, convertStoreErr("block row view", err)
	}
	return &BlockResult{raw: raw, height: height}, nil
}

// heightOf scans the height index backwards for the row position.
// Lookups are expected to target recent blocks, so the scan starts from
// the top.
func (db *blockDB) heightOf(position uint64) (int32, bool) {
	for i := db.index.Count(); i > 0; i-- {
		record, err := db.index.Get(i - 1)
		if err != nil {
			return 0, false
		}
		if binary.LittleEndian.Uint64(record) == position {
			return int32(i - 1), true
		}
	}
	return 0, false
}

// unlink rewinds the height index so that height is no longer covered.
// Space in the row file and the hash table is not reclaimed.
func (db *blockDB) unlink(height int32) {
	db.index.Truncate(uint32(height))
}

// sync commits the row and lookup regions, then the height index last.
// The height index count is the block table's commit point.
func (db *blockDB) sync() error {
	if err := db.rows.Sync(); err != nil {
		return convertStoreErr("block rows sync", err)
	}
	if err := db.lookup.Sync(); err != nil {
		return convertStoreErr("block lookup sync", err)
	}
	return db.index.Sync()
}
