// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
)

// invalidCacheSize bounds the cache of block hashes that already failed
// validation, so repeated submissions are rejected without revalidating.
const invalidCacheSize = 1000

// Config is a descriptor which specifies the blockchain instance
// configuration.
type Config struct {
	// Store is the started chain database.  This field is required.
	Store *database.Store

	// ChainParams identifies the chain the instance is associated
	// with.  This field is required.
	ChainParams *chaincfg.Params

	// Checkpoints holds caller-provided checkpoints the chain must
	// match.  This field can be nil.
	Checkpoints []chaincfg.Checkpoint

	// TimeSource defines the time source to use for the futuristic
	// timestamp check.  Nil selects the system clock.
	TimeSource TimeSource

	// TestNet selects the testnet difficulty relaxation (the
	// twenty-minute rule).
	TestNet bool

	// FlushReorganizations forces a full mapping flush after every
	// reorganization instead of relying on the shutdown flush.
	FlushReorganizations bool

	// BlockPoolCapacity bounds how far below the chain top a pooled
	// block may fall before pruning discards it.  Zero is unlimited.
	BlockPoolCapacity int32

	// PriorityThreads sizes the script-verification fan-out.  Zero
	// selects the number of CPUs.
	PriorityThreads int
}

// BlockChain provides functions for working with the bitcoin block
// chain: submitting blocks for organization, querying the confirmed
// chain, and subscribing to reorganization events.
type BlockChain struct {
	store           *database.Store
	params          *chaincfg.Params
	checkpoints     []chaincfg.Checkpoint
	timeSource      TimeSource
	testNet         bool
	flushReorgs     bool
	priorityThreads int

	// writeMtx is the writer strand: everything from pool admission to
	// reorganization runs under it, one organization at a time.
	writeMtx sync.Mutex

	pool         *BlockPool
	invalidCache lru.Cache

	stopped atomic.Bool

	reorganizeSubs  reorganizeSubscriber
	transactionSubs transactionSubscriber
	notifications   chan func()
	quit            chan struct{}
	wg              sync.WaitGroup
}

// New returns a BlockChain instance using the provided configuration
// details.
func New(config *Config) (*BlockChain, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("blockchain.New store is nil")
	}
	if config.ChainParams == nil {
		return nil, fmt.Errorf("blockchain.New chain parameters nil")
	}

	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = NewSystemTimeSource()
	}
	priorityThreads := config.PriorityThreads
	if priorityThreads <= 0 {
		priorityThreads = runtime.NumCPU()
	}

	c := &BlockChain{
		store:           config.Store,
		params:          config.ChainParams,
		checkpoints:     config.Checkpoints,
		timeSource:      timeSource,
		testNet:         config.TestNet,
		flushReorgs:     config.FlushReorganizations,
		priorityThreads: priorityThreads,
		pool:            NewBlockPool(config.BlockPoolCapacity),
		invalidCache:    lru.NewCache(invalidCacheSize),
		notifications:   make(chan func(), 64),
		quit:            make(chan struct{}),
	}

	c.wg.Add(1)
	go c.notificationDispatcher()

	if top, ok := c.store.Height(); ok {
		log.Infof("Chain initialized at height %d", top)
	}
	return c, nil
}

// Stop shuts the chain down: in-flight organizations finish, queued
// notifications drain, and further submissions fail with
// ErrServiceStopped.
func (c *BlockChain) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	close(c.quit)
	c.wg.Wait()
}

// Pool returns the chain's block pool.
func (c *BlockChain) Pool() *BlockPool {
	return c.pool
}

// BestHeight returns the height of the confirmed chain top.
func (c *BlockChain) BestHeight() (int32, error) {
	return c.store.FetchTop()
}

// BlockByHeight returns the confirmed block at the given height.
func (c *BlockChain) BlockByHeight(height int32) (*btcutil.Block, error) {
	return c.store.FetchBlockByHeight(height)
}

// BlockHashByHeight returns the hash of the confirmed block at the
// given height.
func (c *BlockChain) BlockHashByHeight(height int32) (*chainhash.Hash, error) {
	return c.store.FetchBlockHash(height)
}

// HeaderByHash returns the confirmed header with the given hash and its
// height.
func (c *BlockChain) HeaderByHash(hash *chainhash.Hash) (*wire.BlockHeader, int32, error) {
	return c.store.FetchBlockHeaderByHash(hash)
}

// TransactionByHash returns the confirmed transaction with the given
// hash.
func (c *BlockChain) TransactionByHash(hash *chainhash.Hash) (*database.TxResult, error) {
	return c.store.FetchTransaction(hash)
}

// SpendOf returns the inpoint that spent the given outpoint.
func (c *BlockChain) SpendOf(outpoint *wire.OutPoint) (*wire.OutPoint, error) {
	return c.store.FetchSpend(outpoint)
}

// HistoryOf returns up to limit history rows for the given address
// hash at or above fromHeight, newest first.
func (c *BlockChain) HistoryOf(addrHash []byte, limit uint64,
	fromHeight int32) ([]database.HistoryEntry, error) {

	return c.store.FetchHistory(addrHash, limit, fromHeight)
}

// StealthScan returns the stealth rows matching the scan prefix at or
// above fromHeight.
func (c *BlockChain) StealthScan(prefix uint32, fromHeight int32) ([]database.StealthRow, error) {
	return c.store.FetchStealth(prefix, fromHeight)
}

// BlockLocator returns a locator for the confirmed chain.
func (c *BlockChain) BlockLocator() ([]chainhash.Hash, error) {
	return c.store.BlockLocator()
}

// LocatorBlockHashes returns the confirmed hashes following the fork
// point implied by the locator.
func (c *BlockChain) LocatorBlockHashes(locator []chainhash.Hash,
	stopHash *chainhash.Hash, limit int) ([]chainhash.Hash, error) {

	return c.store.LocatorBlockHashes(locator, stopHash, limit)
}
