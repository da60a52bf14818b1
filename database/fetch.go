// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// The methods in this file come in two flavors.  The Fetch methods run
// under the sequence-lock reader protocol and may be called from any
// goroutine; an attempt that races the writer is discarded and retried.
// The remaining methods read the tables directly and are reserved for
// the writer strand itself (the organizer and validator), which is
// never concurrent with a write.

// Height returns the top height, or false when the store is empty.
// Writer-strand accessor.
func (s *Store) Height() (int32, bool) {
	return s.blocks.top()
}

// Header returns the block header stored at the given height.
// Writer-strand accessor.
func (s *Store) Header(height int32) (*wire.BlockHeader, error) {
	result, err := s.blocks.get(height)
	if err != nil {
		return nil, err
	}
	return result.Header()
}

// HasBlock reports whether the given hash is on the confirmed chain.
// Writer-strand accessor.
func (s *Store) HasBlock(hash *chainhash.Hash) bool {
	_, err := s.blocks.getByHash(hash)
	return err == nil
}

// BlockHeight returns the confirmed height of the given block hash.
// Writer-strand accessor.
func (s *Store) BlockHeight(hash *chainhash.Hash) (int32, error) {
	result, err := s.blocks.getByHash(hash)
	if err != nil {
		return 0, err
	}
	return result.Height(), nil
}

// Transaction returns the stored transaction with the given hash.
// Writer-strand accessor.
func (s *Store) Transaction(hash *chainhash.Hash) (*TxResult, error) {
	return s.txs.get(hash)
}

// HasTransaction reports whether a transaction with the given hash is
// stored.  Writer-strand accessor.
func (s *Store) HasTransaction(hash *chainhash.Hash) (bool, error) {
	return s.txs.exists(hash)
}

// Spend returns the inpoint that spent the given outpoint, when one is
// recorded.  Writer-strand accessor.
func (s *Store) Spend(outpoint *wire.OutPoint) (*wire.OutPoint, error) {
	return s.spends.get(outpoint)
}

// IsSpent reports whether the given outpoint has a spend record.
// Writer-strand accessor.
func (s *Store) IsSpent(outpoint *wire.OutPoint) bool {
	_, err := s.spends.get(outpoint)
	return err == nil
}

// blockAt assembles the full block at the given height from the block
// row and the transaction table.
func (s *Store) blockAt(height int32) (*btcutil.Block, error) {
	result, err := s.blocks.get(height)
	if err != nil {
		return nil, err
	}
	header, err := result.Header()
	if err != nil {
		return nil, err
	}

	count := result.TransactionCount()
	transactions := make([]*wire.MsgTx, count)
	for index := uint32(0); index < count; index++ {
		hash := result.TransactionHash(index)
		txResult, err := s.txs.get(&hash)
		if err != nil {
			return nil, makeError(ErrStoreFailed,
				"expected transaction missing in block fetch", err)
		}
		transactions[index] = txResult.Tx
	}

	block := btcutil.NewBlock(&wire.MsgBlock{
		Header:       *header,
		Transactions: transactions,
	})
	block.SetHeight(height)
	return block, nil
}

// FetchTop returns the current top height under the reader protocol.
func (s *Store) FetchTop() (int32, error) {
	var height int32
	err := s.lock.Read(func() error {
		top, ok := s.blocks.top()
		if !ok {
			return makeError(ErrEmptyChain, "store is empty", nil)
		}
		height = top
		return nil
	})
	return height, err
}

// FetchBlockHeaderByHeight returns the header at the given height under
// the reader protocol.
func (s *Store) FetchBlockHeaderByHeight(height int32) (*wire.BlockHeader, error) {
	var header *wire.BlockHeader
	err := s.lock.Read(func() error {
		var err error
		header, err = s.Header(height)
		return err
	})
	return header, err
}

// FetchBlockHeaderByHash returns the header with the given hash under
// the reader protocol.
func (s *Store) FetchBlockHeaderByHash(hash *chainhash.Hash) (*wire.BlockHeader, int32, error) {
	var header *wire.BlockHeader
	var height int32
	err := s.lock.Read(func() error {
		result, err := s.blocks.getByHash(hash)
		if err != nil {
			return err
		}
		height = result.Height()
		header, err = result.Header()
		return err
	})
	return header, height, err
}

// FetchBlockByHeight returns the full block at the given height under
// the reader protocol.
func (s *Store) FetchBlockByHeight(height int32) (*btcutil.Block, error) {
	var block *btcutil.Block
	err := s.lock.Read(func() error {
		var err error
		block, err = s.blockAt(height)
		return err
	})
	return block, err
}

// FetchBlockHash returns the hash of the block at the given height under
// the reader protocol.
func (s *Store) FetchBlockHash(height int32) (*chainhash.Hash, error) {
	header, err := s.FetchBlockHeaderByHeight(height)
	if err != nil {
		return nil, err
	}
	hash := header.BlockHash()
	return &hash, nil
}

// FetchTransaction returns the stored transaction with the given hash
// under the reader protocol.
func (s *Store) FetchTransaction(hash *chainhash.Hash) (*TxResult, error) {
	var result *TxResult
	err := s.lock.Read(func() error {
		var err error
		result, err = s.txs.get(hash)
		return err
	})
	return result, err
}

// FetchSpend returns the inpoint that spent the given outpoint under the
// reader protocol.
func (s *Store) FetchSpend(outpoint *wire.OutPoint) (*wire.OutPoint, error) {
	var inpoint *wire.OutPoint
	err := s.lock.Read(func() error {
		var err error
		inpoint, err = s.spends.get(outpoint)
		return err
	})
	return inpoint, err
}

// FetchHistory returns up to limit history rows for the 20-byte address
// hash, newest first, at or above fromHeight, under the reader protocol.
// A zero limit means unlimited.
func (s *Store) FetchHistory(addrHash []byte, limit uint64,
	fromHeight int32) ([]HistoryEntry, error) {

	var history []HistoryEntry
	err := s.lock.Read(func() error {
		var err error
		history, err = s.history.get(addrHash, limit, fromHeight)
		return err
	})
	return history, err
}

// FetchStealth returns the stealth rows with the given scan prefix at or
// above fromHeight, under the reader protocol.
func (s *Store) FetchStealth(prefix uint32, fromHeight int32) ([]StealthRow, error) {
	var rows []StealthRow
	err := s.lock.Read(func() error {
		var err error
		rows, err = s.stealth.scan(prefix, fromHeight)
		return err
	})
	return rows, err
}

// BlockLocator returns a thinning list of block hashes from the top
// backwards: the last ten, then doubling the step back to genesis.
func (s *Store) BlockLocator() ([]chainhash.Hash, error) {
	var locator []chainhash.Hash
	err := s.lock.Read(func() error {
		locator = locator[:0]
		top, ok := s.blocks.top()
		if !ok {
			return makeError(ErrEmptyChain, "store is empty", nil)
		}

		step := int32(1)
		for height := top; height > 0; height -= step {
			if len(locator) >= 10 {
				step *= 2
			}
			result, err := s.blocks.get(height)
			if err != nil {
				return err
			}
			header, err := result.Header()
			if err != nil {
				return err
			}
			locator = append(locator, header.BlockHash())
		}

		result, err := s.blocks.get(0)
		if err != nil {
			return err
		}
		header, err := result.Header()
		if err != nil {
			return err
		}
		locator = append(locator, header.BlockHash())
		return nil
	})
	return locator, err
}

// LocatorBlockHashes returns the hashes after the most recent locator
// hash present on the confirmed chain, walking forward until stopHash is
// included, the limit is reached, or the top is passed.  A zero stopHash
// means no stop and a zero limit means unlimited.
func (s *Store) LocatorBlockHashes(locator []chainhash.Hash,
	stopHash *chainhash.Hash, limit int) ([]chainhash.Hash, error) {

	var hashes []chainhash.Hash
	err := s.lock.Read(func() error {
		hashes = hashes[:0]
		top, ok := s.blocks.top()
		if !ok {
			return makeError(ErrEmptyChain, "store is empty", nil)
		}

		// Locate the fork point: the first locator entry found on the
		// confirmed chain.  An unknown locator starts from genesis.
		forkHeight := int32(-1)
		for i := range locator {
			result, err := s.blocks.getByHash(&locator[i])
			if err == nil {
				forkHeight = result.Height()
				break
			}
			if !IsNotFound(err) {
				return err
			}
		}

		var zero chainhash.Hash
		for height := forkHeight + 1; height <= top; height++ {
			if limit > 0 && len(hashes) >= limit {
				break
			}
			result, err := s.blocks.get(height)
			if err != nil {
				return err
			}
			header, err := result.Header()
			if err != nil {
				return err
			}
			hash := header.BlockHash()
			hashes = append(hashes, hash)
			if stopHash != nil && *stopHash != zero && hash == *stopHash {
				break
			}
		}
		return nil
	})
	return hashes, err
}
