// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/blockchain/internal/testhelper"
	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
)

// testTimeSource is frozen shortly after the regression test genesis so
// synthetic timestamps are never futuristic.
type testTimeSource struct {
	now time.Time
}

func (s testTimeSource) AdjustedTime() time.Time {
	return s.now
}

// chainSetup creates a new store and chain instance with the regression
// test genesis block already inserted.  The returned params copy has a
// coinbase maturity of one so tests can spend coinbases immediately.
func chainSetup(t *testing.T) (*BlockChain, *chaincfg.Params) {
	t.Helper()

	// Copy the chain params to ensure any modifications the tests do to
	// the chain parameters do not affect the global instance.
	paramsCopy := chaincfg.RegressionNetParams
	paramsCopy.CoinbaseMaturity = 1

	genesis := btcutil.NewBlock(paramsCopy.GenesisBlock)
	store, err := database.Initialize(t.TempDir(), &paramsCopy, &database.Options{
		BlockBuckets:   101,
		TxBuckets:      101,
		SpendBuckets:   101,
		HistoryBuckets: 101,
	}, genesis)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	chain, err := New(&Config{
		Store:       store,
		ChainParams: &paramsCopy,
		TimeSource: testTimeSource{
			now: paramsCopy.GenesisBlock.Header.Timestamp.Add(time.Hour),
		},
		BlockPoolCapacity: 100,
		PriorityThreads:   2,
	})
	require.NoError(t, err)
	t.Cleanup(chain.Stop)
	return chain, &paramsCopy
}

// newTestBlock creates a solved block that succeeds the previous block
// and spends the provided outputs.  The timestamp offset keeps sibling
// blocks at the same height distinct.
func newTestBlock(t *testing.T, prev *btcutil.Block, tsOffset time.Duration,
	spends ...*testhelper.SpendableOut) *btcutil.Block {
	t.Helper()
	return newTestBlockWithFee(t, prev, tsOffset, testhelper.LowFee, spends...)
}

// newTestBlockWithFee is newTestBlock with a caller-chosen fee, which
// also serves to vary otherwise identical spend transactions.
func newTestBlockWithFee(t *testing.T, prev *btcutil.Block,
	tsOffset time.Duration, fee btcutil.Amount,
	spends ...*testhelper.SpendableOut) *btcutil.Block {
	t.Helper()

	blockHeight := prev.Height() + 1
	txns := make([]*wire.MsgTx, 0, 1+len(spends))

	cb := testhelper.CreateCoinbaseTx(blockHeight, CalcBlockSubsidy(blockHeight))
	txns = append(txns, cb)

	for _, spend := range spends {
		cb.TxOut[0].Value += int64(fee)
		txns = append(txns, testhelper.CreateSpendTx(spend, fee))
	}

	utilTxns := make([]*btcutil.Tx, 0, len(txns))
	for _, tx := range txns {
		utilTxns = append(utilTxns, btcutil.NewTx(tx))
	}

	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  *prev.Hash(),
			MerkleRoot: CalcMerkleRoot(utilTxns),
			Timestamp: prev.MsgBlock().Header.Timestamp.
				Add(time.Second + tsOffset),
			Bits: prev.MsgBlock().Header.Bits,
		},
		Transactions: txns,
	}
	if !testhelper.SolveBlock(&msgBlock.Header) {
		t.Fatalf("unable to solve block at height %d", blockHeight)
	}

	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(blockHeight)
	return block
}

// extendChain organizes count successive blocks on top of prev and
// returns them.
func extendChain(t *testing.T, chain *BlockChain, prev *btcutil.Block,
	count int) []*btcutil.Block {
	t.Helper()

	blocks := make([]*btcutil.Block, 0, count)
	for i := 0; i < count; i++ {
		block := newTestBlock(t, prev, 0)
		require.NoError(t, chain.Organize(block),
			fmt.Sprintf("organizing height %d", block.Height()))
		blocks = append(blocks, block)
		prev = block
	}
	return blocks
}
