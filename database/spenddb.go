// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// pointSize is the serialized size of an outpoint or inpoint:
// a transaction hash followed by a little-endian uint32 index.
const pointSize = chainhash.HashSize + 4

// putPoint serializes a point into buf.
func putPoint(buf []byte, hash *chainhash.Hash, index uint32) {
	copy(buf, hash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], index)
}

// readPoint deserializes a point from buf.
func readPoint(buf []byte) wire.OutPoint {
	var point wire.OutPoint
	copy(point.Hash[:], buf[:chainhash.HashSize])
	point.Index = binary.LittleEndian.Uint32(buf[chainhash.HashSize:])
	return point
}

// spendDB maps spent outpoints to the inpoints that consumed them.
type spendDB struct {
	file   *mmstore.File
	lookup *mmstore.RecordTable
}

func newSpendDB(file *mmstore.File, buckets uint64) *spendDB {
	return &spendDB{
		file:   file,
		lookup: mmstore.NewRecordTable(file, buckets, pointSize, pointSize),
	}
}

func (db *spendDB) create() error {
	return db.lookup.Create()
}

func (db *spendDB) start() error {
	if err := db.lookup.Start(); err != nil {
		return convertStoreErr("spend lookup", err)
	}
	return nil
}

// store records that outpoint was consumed by inpoint.
func (db *spendDB) store(outpoint, inpoint *wire.OutPoint) error {
	var key [pointSize]byte
	putPoint(key[:], &outpoint.Hash, outpoint.Index)

	err := db.lookup.Store(key[:], func(value []byte) {
		putPoint(value, &inpoint.Hash, inpoint.Index)
	})
	if err != nil {
		return convertStoreErr("spend store", err)
	}
	return nil
}

// get returns the inpoint that consumed outpoint.
func (db *spendDB) get(outpoint *wire.OutPoint) (*wire.OutPoint, error) {
	var key [pointSize]byte
	putPoint(key[:], &outpoint.Hash, outpoint.Index)

	value, err := db.lookup.Get(key[:])
	if err != nil {
		return nil, convertStoreErr("spend lookup", err)
	}
	if value == nil {
		return nil, makeError(ErrNotFound, "outpoint not spent", nil)
	}
	inpoint := readPoint(value)
	return &inpoint, nil
}

// remove unlinks the spend entry for outpoint.
func (db *spendDB) remove(outpoint *wire.OutPoint) error {
	var key [pointSize]byte
	putPoint(key[:], &outpoint.Hash, outpoint.Index)

	found, err := db.lookup.Unlink(key[:])
	if err != nil {
		return convertStoreErr("spend unlink", err)
	}
	if !found {
		return makeError(ErrStoreFailed, "expected spend missing on remove", nil)
	}
	return nil
}

func (db *spendDB) sync() error {
	return db.lookup.Sync()
}
