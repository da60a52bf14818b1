// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gofrs/flock"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// Options tunes table geometry and indexing thresholds.  The zero value
// selects workable defaults.
type Options struct {
	// BlockBuckets, TxBuckets, SpendBuckets and HistoryBuckets set the
	// bucket counts of the respective hash tables.  Bucket counts are
	// fixed at creation.
	BlockBuckets   uint64
	TxBuckets      uint64
	SpendBuckets   uint64
	HistoryBuckets uint64

	// HistoryStartHeight disables address-history rows for blocks below
	// it.
	HistoryStartHeight int32

	// StealthStartHeight disables stealth rows for blocks below it.
	StealthStartHeight int32

	// BIP30Exceptions lists the blocks whose coinbase legitimately
	// duplicates an earlier transaction hash.  Nil selects the two
	// mainnet exception blocks.
	BIP30Exceptions []chaincfg.Checkpoint
}

func (o *Options) normalize() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.BlockBuckets == 0 {
		opts.BlockBuckets = 60013
	}
	if opts.TxBuckets == 0 {
		opts.TxBuckets = 100003
	}
	if opts.SpendBuckets == 0 {
		opts.SpendBuckets = 100003
	}
	if opts.HistoryBuckets == 0 {
		opts.HistoryBuckets = 60013
	}
	if opts.BIP30Exceptions == nil {
		opts.BIP30Exceptions = MainNetBIP30Exceptions()
	}
	return opts
}

// MainNetBIP30Exceptions returns the two mainnet blocks whose coinbase
// legitimately duplicates an earlier transaction hash.
// github.com/bitcoin/bips/blob/master/bip-0030.mediawiki#specification
func MainNetBIP30Exceptions() []chaincfg.Checkpoint {
	hash91842, _ := chainhash.NewHashFromStr(
		"00000000000a4d0a398161ffc163c503763b1f4360639393e0e4c8e300e0caec")
	hash91880, _ := chainhash.NewHashFromStr(
		"00000000000743f190a18c5577a3c2d2a1f610ae9601ac046a38084ccb7cd721")
	return []chaincfg.Checkpoint{
		{Height: 91842, Hash: hash91842},
		{Height: 91880, Hash: hash91880},
	}
}

// isAllowedDuplicate reports whether the block at the given height is a
// BIP30 exception whose coinbase must not touch the transaction table.
func (s *Store) isAllowedDuplicate(blockHash *chainhash.Hash, height int32) bool {
	for _, exception := range s.opts.BIP30Exceptions {
		if exception.Height == height && *exception.Hash == *blockHash {
			return true
		}
	}
	return false
}

// Store is the coordinated chain database.  One Store owns all of the
// table files under its directory; a process-level file lock refuses a
// second opener.
//
// All mutations happen through PushBlock and PopBlock, which the caller
// must serialize (the organizer runs them on a single writer strand).
// The Fetch methods run under the sequence-lock reader protocol and can
// be called from any goroutine.
type Store struct {
	dir    string
	params *chaincfg.Params
	opts   Options

	fileLock *flock.Flock
	lock     SequenceLock

	indexFile         *mmstore.File
	rowsFile          *mmstore.File
	lookupFile        *mmstore.File
	txsFile           *mmstore.File
	spendsFile        *mmstore.File
	historyLookupFile *mmstore.File
	historyRowsFile   *mmstore.File
	stealthIndexFile  *mmstore.File
	stealthRowsFile   *mmstore.File

	blocks  *blockDB
	txs     *txDB
	spends  *spendDB
	history *historyDB
	stealth *stealthDB
}

// NewStore opens (creating as needed) the store files under dir.  The
// returned store must be initialized with Create for a fresh directory
// or recovered with Start for an existing one.
func NewStore(dir string, params *chaincfg.Params, opts *Options) (*Store, error) {
	s := &Store{
		dir:      dir,
		params:   params,
		opts:     opts.normalize(),
		fileLock: flock.New(filepath.Join(dir, "db_lock")),
	}

	open := func(name string) (*mmstore.File, error) {
		return mmstore.OpenFile(filepath.Join(dir, name))
	}

	var err error
	if s.indexFile, err = open("block_index"); err != nil {
		return nil, err
	}
	if s.rowsFile, err = open("block_rows"); err != nil {
		return nil, err
	}
	if s.lookupFile, err = open("block_lookup"); err != nil {
		return nil, err
	}
	if s.txsFile, err = open("txs"); err != nil {
		return nil, err
	}
	if s.spendsFile, err = open("spends"); err != nil {
		return nil, err
	}
	if s.historyLookupFile, err = open("history_lookup"); err != nil {
		return nil, err
	}
	if s.historyRowsFile, err = open("history_rows"); err != nil {
		return nil, err
	}
	if s.stealthIndexFile, err = open("stealth_index"); err != nil {
		return nil, err
	}
	if s.stealthRowsFile, err = open("stealth_rows"); err != nil {
		return nil, err
	}

	s.blocks = newBlockDB(s.indexFile, s.rowsFile, s.lookupFile, s.opts.BlockBuckets)
	s.txs = newTxDB(s.txsFile, s.opts.TxBuckets)
	s.spends = newSpendDB(s.spendsFile, s.opts.SpendBuckets)
	s.history = newHistoryDB(s.historyLookupFile, s.historyRowsFile, s.opts.HistoryBuckets)
	s.stealth = newStealthDB(s.stealthIndexFile, s.stealthRowsFile)
	return s, nil
}

// Initialize creates a brand new store under dir and pushes the genesis
// block.  The store is started and ready for use.
func Initialize(dir string, params *chaincfg.Params, opts *Options,
	genesis *btcutil.Block) (*Store, error) {

	s, err := NewStore(dir, params, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Create(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.PushBlock(genesis); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Create initializes every table to its empty state.
func (s *Store) Create() error {
	if err := s.blocks.create(); err != nil {
		return convertStoreErr("create blocks", err)
	}
	if err := s.txs.create(); err != nil {
		return convertStoreErr("create txs", err)
	}
	if err := s.spends.create(); err != nil {
		return convertStoreErr("create spends", err)
	}
	if err := s.history.create(); err != nil {
		return convertStoreErr("create history", err)
	}
	if err := s.stealth.create(); err != nil {
		return convertStoreErr("create stealth", err)
	}
	return nil
}

// Start acquires the directory lock and reads every table's committed
// header state.
func (s *Store) Start() error {
	locked, err := s.fileLock.TryLock()
	if err != nil {
		return makeError(ErrBusy, "acquire store lock", err)
	}
	if !locked {
		return makeError(ErrBusy, "store is locked by another process", nil)
	}

	if err := s.blocks.start(); err != nil {
		return err
	}
	if err := s.txs.start(); err != nil {
		return err
	}
	if err := s.spends.start(); err != nil {
		return err
	}
	if err := s.history.start(); err != nil {
		return err
	}
	if err := s.stealth.start(); err != nil {
		return err
	}

	if top, ok := s.blocks.top(); ok {
		log.Infof("Store started at height %d", top)
	} else {
		log.Info("Store started empty")
	}
	return nil
}

// Flush synchronizes every mapping with its backing file.
func (s *Store) Flush() error {
	files := []*mmstore.File{
		s.spendsFile, s.txsFile, s.historyLookupFile, s.historyRowsFile,
		s.stealthIndexFile, s.stealthRowsFile, s.rowsFile, s.lookupFile,
		s.indexFile,
	}
	for _, file := range files {
		if err := file.Flush(); err != nil {
			return makeError(ErrStoreFailed, "flush mapping", err)
		}
	}
	return nil
}

// Close flushes and unmaps every file and releases the directory lock.
func (s *Store) Close() error {
	var firstErr error
	files := []*mmstore.File{
		s.spendsFile, s.txsFile, s.historyLookupFile, s.historyRowsFile,
		s.stealthIndexFile, s.stealthRowsFile, s.rowsFile, s.lookupFile,
		s.indexFile,
	}
	for _, file := range files {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.fileLock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// synchronize commits every table header, the block table last.  The
// block table commit is the store's durability point: a crash before it
// leaves the chain top unchanged and the earlier tables' tentative data
// unreachable.
func (s *Store) synchronize() error {
	if err := s.spends.sync(); err != nil {
		return err
	}
	if err := s.txs.sync(); err != nil {
		return err
	}
	if err := s.history.sync(); err != nil {
		return err
	}
	if err := s.stealth.sync(); err != nil {
		return err
	}
	return s.blocks.sync()
}

// nextHeight returns the height the next pushed block will occupy.
func (s *Store) nextHeight() int32 {
	top, ok := s.blocks.top()
	if !ok {
		return 0
	}
	return top + 1
}

// PushBlock writes the block to every table at the next height.  The
// caller is responsible for ordering: the block must extend the current
// top.
func (s *Store) PushBlock(block *btcutil.Block) error {
	height := s.nextHeight()
	blockHash := block.Hash()
	allowedDuplicate := s.isAllowedDuplicate(blockHash, height)

	s.lock.BeginWrite()
	defer s.lock.EndWrite()

	var stealthBatch []StealthRow
	transactions := block.Transactions()
	txHashes := make([]chainhash.Hash, len(transactions))

	for index, tx := range transactions {
		txHashes[index] = *tx.Hash()

		// Skip BIP30 allowed duplicates (coinbase txs of excepted
		// blocks); the previously stored transaction remains
		// authoritative.
		if index == 0 && allowedDuplicate {
			continue
		}

		msgTx := tx.MsgTx()
		if index != 0 {
			err := s.pushInputs(tx.Hash(), height, msgTx.TxIn)
			if err != nil {
				return err
			}
		}
		if err := s.pushOutputs(tx.Hash(), height, msgTx.TxOut); err != nil {
			return err
		}
		s.pushStealth(tx.Hash(), height, msgTx.TxOut, &stealthBatch)

		if err := s.txs.store(height, uint32(index), msgTx); err != nil {
			return err
		}
	}

	if height >= s.opts.StealthStartHeight {
		if err := s.stealth.store(stealthBatch); err != nil {
			return err
		}
	} else if err := s.stealth.store(nil); err != nil {
		return err
	}

	if err := s.blocks.store(&block.MsgBlock().Header, txHashes); err != nil {
		return err
	}

	log.Debugf("Pushed block %v at height %d", blockHash, height)
	return s.synchronize()
}

func (s *Store) pushInputs(txHash *chainhash.Hash, height int32,
	inputs []*wire.TxIn) error {

	for index, input := range inputs {
		inpoint := wire.OutPoint{Hash: *txHash, Index: uint32(index)}
		err := s.spends.store(&input.PreviousOutPoint, &inpoint)
		if err != nil {
			return err
		}

		if height < s.opts.HistoryStartHeight {
			continue
		}
		addrHash, ok := inputAddressHash(input.SignatureScript)
		if !ok {
			continue
		}
		err = s.history.addSpend(addrHash, &input.PreviousOutPoint,
			&inpoint, height)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) pushOutputs(txHash *chainhash.Hash, height int32,
	outputs []*wire.TxOut) error {

	if height < s.opts.HistoryStartHeight {
		return nil
	}

	for index, output := range outputs {
		outpoint := wire.OutPoint{Hash: *txHash, Index: uint32(index)}
		addrHash, ok := paymentAddressHash(output.PkScript, s.params)
		if !ok {
			continue
		}
		err := s.history.addOutput(addrHash, &outpoint, height,
			uint64(output.Value))
		if err != nil {
			return err
		}
	}
	return nil
}

// pushStealth collects stealth rows for adjacent output pairs where the
// first output publishes an ephemeral key and the second pays a
// recognizable address.
func (s *Store) pushStealth(txHash *chainhash.Hash, height int32,
	outputs []*wire.TxOut, batch *[]StealthRow) {

	if height < s.opts.StealthStartHeight {
		return
	}

	for index := 0; index+1 < len(outputs); index++ {
		ephemeral, ok := extractEphemeralKey(outputs[index].PkScript)
		if !ok {
			continue
		}
		addrHash, ok := paymentAddressHash(outputs[index+1].PkScript, s.params)
		if !ok || len(addrHash) != AddressHashSize {
			continue
		}

		var row StealthRow
		copy(row.Ephemeral[:], ephemeral)
		copy(row.AddressHash[:], addrHash)
		row.TxHash = *txHash
		*batch = append(*batch, row)
	}
}

// PopBlock removes the top block from every table, reversing the
// corresponding push, and returns the removed block.
func (s *Store) PopBlock() (*btcutil.Block, error) {
	top, ok := s.blocks.top()
	if !ok {
		return nil, makeError(ErrEmptyChain, "pop on empty chain", nil)
	}

	result, err := s.blocks.get(top)
	if err != nil {
		return nil, err
	}
	header, err := result.Header()
	if err != nil {
		return nil, err
	}
	blockHash := header.BlockHash()
	allowedDuplicate := s.isAllowedDuplicate(&blockHash, top)

	s.lock.BeginWrite()
	defer s.lock.EndWrite()

	count := result.TransactionCount()
	transactions := make([]*wire.MsgTx, count)

	// Loop backwards, reversing the order the push added things.
	for index := int(count) - 1; index >= 0; index-- {
		txHash := result.TransactionHash(uint32(index))
		txResult, err := s.txs.get(&txHash)
		if err != nil {
			return nil, makeError(ErrStoreFailed,
				"expected transaction missing on pop", err)
		}
		transactions[index] = txResult.Tx

		// The push of a BIP30 excepted block skipped its coinbase, so
		// the pop must leave the earlier transaction untouched.
		if index == 0 && allowedDuplicate {
			continue
		}

		if err := s.txs.remove(&txHash); err != nil {
			return nil, err
		}
		if err := s.popOutputs(txResult.Tx.TxOut, top); err != nil {
			return nil, err
		}
		if index != 0 {
			err := s.popInputs(txResult.Tx.TxIn, top)
			if err != nil {
				return nil, err
			}
		}
	}

	s.stealth.unlink(top)
	s.blocks.unlink(top)

	if err := s.synchronize(); err != nil {
		return nil, err
	}

	msgBlock := &wire.MsgBlock{Header: *header, Transactions: transactions}
	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(top)
	log.Debugf("Popped block %v from height %d", blockHash, top)
	return block, nil
}

func (s *Store) popInputs(inputs []*wire.TxIn, height int32) error {
	// Loop in reverse.
	for index := len(inputs) - 1; index >= 0; index-- {
		input := inputs[index]
		if err := s.spends.remove(&input.PreviousOutPoint); err != nil {
			return err
		}

		if height < s.opts.HistoryStartHeight {
			continue
		}
		if addrHash, ok := inputAddressHash(input.SignatureScript); ok {
			if err := s.history.deleteLastRow(addrHash); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) popOutputs(outputs []*wire.TxOut, height int32) error {
	if height < s.opts.HistoryStartHeight {
		return nil
	}

	// Loop in reverse.
	for index := len(outputs) - 1; index >= 0; index-- {
		addrHash, ok := paymentAddressHash(outputs[index].PkScript, s.params)
		if !ok {
			continue
		}
		if err := s.history.deleteLastRow(addrHash); err != nil {
			return err
		}
	}
	return nil
}
