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

// Transaction slab body layout:
//
//	[height:uint32][index in block:uint32][serialized transaction]
const txMetaSize = 8

// TxResult carries a fetched transaction along with the block position
// it was confirmed at.  The transaction is deserialized into an owned
// message, so it remains valid after the read attempt ends.
type TxResult struct {
	Tx     *wire.MsgTx
	Height int32
	Index  uint32
}

// txDB maps transaction hashes to their confirmed bodies.
type txDB struct {
	file   *mmstore.File
	lookup *mmstore.SlabTable
}

func newTxDB(file *mmstore.File, buckets uint64) *txDB {
	return &txDB{
		file:   file,
		lookup: mmstore.NewSlabTable(file, buckets, chainhash.HashSize),
	}
}

func (db *txDB) create() error {
	return db.lookup.Create()
}

func (db *txDB) start() error {
	if err := db.lookup.Start(); err != nil {
		return convertStoreErr("tx lookup", err)
	}
	return nil
}

// store writes the transaction keyed by its hash.  The non-witness
// serialization is used so the stored bytes hash back to the key.
func (db *txDB) store(height int32, index uint32, tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.SerializeNoWitness(&buf); err != nil {
		return makeError(ErrStoreFailed, "serialize transaction", err)
	}
	body := buf.Bytes()

	hash := tx.TxHash()
	err := db.lookup.Store(hash[:], uint64(txMetaSize+len(body)), func(value []byte) {
		binary.LittleEndian.PutUint32(value, uint32(height))
		binary.LittleEndian.PutUint32(value[4:], index)
		copy(value[txMetaSize:], body)
	})
	if err != nil {
		return convertStoreErr("tx store", err)
	}
	return nil
}

// get fetches the transaction with the given hash.
func (db *txDB) get(hash *chainhash.Hash) (*TxResult, error) {
	value, err := db.lookup.Get(hash[:])
	if err != nil {
		return nil, convertStoreErr("tx lookup", err)
	}
	if value == nil {
		return nil, makeError(ErrNotFound, "no transaction with requested hash", nil)
	}

	result := &TxResult{
		Height: int32(binary.LittleEndian.Uint32(value)),
		Index:  binary.LittleEndian.Uint32(value[4:]),
		Tx:     wire.NewMsgTx(0),
	}
	err = result.Tx.Deserialize(bytes.NewReader(value[txMetaSize:]))
	if err != nil {
		return nil, makeError(ErrCorruption, "undecodable transaction", err)
	}
	return result, nil
}

// exists reports whether a transaction with the given hash is stored.
func (db *txDB) exists(hash *chainhash.Hash) (bool, error) {
	value, err := db.lookup.Get(hash[:])
	if err != nil {
		return false, convertStoreErr("tx lookup", err)
	}
	return value != nil, nil
}

// remove unlinks the transaction with the given hash.
func (db *txDB) remove(hash *chainhash.Hash) error {
	found, err := db.lookup.Unlink(hash[:])
	if err != nil {
		return convertStoreErr("tx unlink", err)
	}
	if !found {
		return makeError(ErrStoreFailed, "expected transaction missing on remove", nil)
	}
	return nil
}

func (db *txDB) sync() error {
	return db.lookup.Sync()
}
