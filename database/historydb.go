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

// PointKind discriminates history rows.
type PointKind byte

const (
	// PointOutput marks a row crediting an address with an output.
	PointOutput PointKind = 0

	// PointSpend marks a row debiting an address by spending one of its
	// outputs.
	PointSpend PointKind = 1
)

// AddressHashSize is the size of the short hash that keys address
// history.
const AddressHashSize = 20

// History row payload layout (the multimap appends the next pointer):
//
//	[kind:1][point tx:32][point index:uint32][height:uint32][value:uint64]
const historyPayloadSize = 1 + pointSize + 4 + 8

// HistoryEntry is one row of an address's history, newest first.  For
// output rows Value holds the output amount in satoshis.  For spend rows
// Value holds the checksum of the spent outpoint, which matches the
// corresponding output row without storing the previous outpoint.
type HistoryEntry struct {
	Kind   PointKind
	Point  wire.OutPoint
	Height int32
	Value  uint64
}

// PointChecksum reduces an outpoint to the 63-bit checksum stored in
// spend rows.  The top bit is kept clear for use as a flag.
func PointChecksum(point *wire.OutPoint) uint64 {
	var buf [pointSize]byte
	putPoint(buf[:], &point.Hash, point.Index)
	digest := chainhash.DoubleHashB(buf[:])
	return binary.LittleEndian.Uint64(digest) &^ (uint64(1) << 63)
}

// HistoryBalance sums the output rows that have no matching spend row by
// checksum.
func HistoryBalance(history []HistoryEntry) uint64 {
	spent := make(map[uint64]int)
	for _, row := range history {
		if row.Kind == PointSpend {
			spent[row.Value]++
		}
	}

	var balance uint64
	for _, row := range history {
		if row.Kind != PointOutput {
			continue
		}
		sum := PointChecksum(&row.Point)
		if spent[sum] > 0 {
			spent[sum]--
			continue
		}
		balance += row.Value
	}
	return balance
}

// historyDB stores per-address credit/debit rows in a multimap keyed by
// the 20-byte address hash.  Rows are LIFO per address so a pop removes
// exactly the rows its push added, in reverse order.
type historyDB struct {
	lookupFile *mmstore.File
	rowsFile   *mmstore.File
	table      *mmstore.RecordTable
	alloc      *mmstore.RecordAllocator
	rows       *mmstore.RecordMultimap
}

func newHistoryDB(lookupFile, rowsFile *mmstore.File, buckets uint64) *historyDB {
	table := mmstore.NewRecordTable(lookupFile, buckets, AddressHashSize, 4)
	alloc := mmstore.NewRecordAllocator(rowsFile, 0, historyPayloadSize+4)
	return &historyDB{
		lookupFile: lookupFile,
		rowsFile:   rowsFile,
		table:      table,
		alloc:      alloc,
		rows:       mmstore.NewRecordMultimap(table, alloc, historyPayloadSize),
	}
}

func (db *historyDB) create() error {
	if err := db.table.Create(); err != nil {
		return err
	}
	return db.alloc.Create()
}

func (db *historyDB) start() error {
	if err := db.table.Start(); err != nil {
		return convertStoreErr("history lookup", err)
	}
	if err := db.alloc.Start(); err != nil {
		return convertStoreErr("history rows", err)
	}
	return nil
}

func (db *historyDB) sync() error {
	return db.rows.Sync()
}

func writeHistoryPayload(payload []byte, kind PointKind, point *wire.OutPoint,
	height int32, value uint64) {

	payload[0] = byte(kind)
	putPoint(payload[1:], &point.Hash, point.Index)
	binary.LittleEndian.PutUint32(payload[1+pointSize:], uint32(height))
	binary.LittleEndian.PutUint64(payload[1+pointSize+4:], value)
}

// addOutput appends an output row crediting the address.
func (db *historyDB) addOutput(addrHash []byte, outpoint *wire.OutPoint,
	height int32, value uint64) error {

	err := db.rows.AddRow(addrHash, func(payload []byte) {
		writeHistoryPayload(payload, PointOutput, outpoint, height, value)
	})
	if err != nil {
		return convertStoreErr("history add output", err)
	}
	return nil
}

// addSpend appends a spend row debiting the address.  The row's value
// field carries the checksum of the spent outpoint.
func (db *historyDB) addSpend(addrHash []byte, previous *wire.OutPoint,
	inpoint *wire.OutPoint, height int32) error {

	err := db.rows.AddRow(addrHash, func(payload []byte) {
		writeHistoryPayload(payload, PointSpend, inpoint, height,
			PointChecksum(previous))
	})
	if err != nil {
		return convertStoreErr("history add spend", err)
	}
	return nil
}

// deleteLastRow removes the most recently added row for the address.
func (db *historyDB) deleteLastRow(addrHash []byte) error {
	found, err := db.rows.DeleteLastRow(addrHash)
	if err != nil {
		return convertStoreErr("history delete", err)
	}
	if !found {
		return makeError(ErrStoreFailed, "expected history row missing on delete", nil)
	}
	return nil
}

// get returns up to limit rows for the address, newest first, skipping
// rows below fromHeight.  A zero limit means unlimited.
func (db *historyDB) get(addrHash []byte, limit uint64,
	fromHeight int32) ([]HistoryEntry, error) {

	var history []HistoryEntry
	err := db.rows.GetAll(addrHash, func(payload []byte) bool {
		if limit > 0 && uint64(len(history)) >= limit {
			return false
		}
		height := int32(binary.LittleEndian.Uint32(payload[1+pointSize:]))
		if height < fromHeight {
			return true
		}
		history = append(history, HistoryEntry{
			Kind:   PointKind(payload[0]),
			Point:  readPoint(payload[1:]),
			Height: height,
			Value:  binary.LittleEndian.Uint64(payload[1+pointSize+4:]),
		})
		return true
	})
	if err != nil {
		return nil, convertStoreErr("history get", err)
	}
	return history, nil
}
