// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/blockchain/internal/testhelper"
)

func testParams() *chaincfg.Params {
	params := chaincfg.RegressionNetParams
	return &params
}

func frozenTime(params *chaincfg.Params) TimeSource {
	return testTimeSource{
		now: params.GenesisBlock.Header.Timestamp.Add(time.Hour),
	}
}

func TestCheckBlockSanityGenesis(t *testing.T) {
	params := testParams()
	genesis := btcutil.NewBlock(params.GenesisBlock)
	require.NoError(t, checkBlockSanity(genesis, params, frozenTime(params)))
}

func TestCheckBlockSanityRejections(t *testing.T) {
	params := testParams()
	genesis := btcutil.NewBlock(params.GenesisBlock)
	genesis.SetHeight(0)

	base := func() *wire.MsgBlock {
		block := newTestBlock(t, genesis, 0)
		copied := *block.MsgBlock()
		copied.Transactions = append([]*wire.MsgTx(nil),
			block.MsgBlock().Transactions...)
		return &copied
	}

	tests := []struct {
		name   string
		mutate func(*wire.MsgBlock)
		want   ErrorCode
	}{
		{
			name:   "no transactions",
			mutate: func(b *wire.MsgBlock) { b.Transactions = nil },
			want:   ErrSizeLimits,
		},
		{
			name: "merkle mismatch",
			mutate: func(b *wire.MsgBlock) {
				b.Header.MerkleRoot = chainhash.Hash{0x01}
			},
			want: ErrMerkleMismatch,
		},
		{
			name: "first not coinbase",
			mutate: func(b *wire.MsgBlock) {
				spend := testhelper.MakeSpendableOutForTx(b.Transactions[0], 0)
				tx := testhelper.CreateSpendTx(&spend, testhelper.LowFee)
				b.Transactions = []*wire.MsgTx{tx}
				utilTx := btcutil.NewTx(tx)
				b.Header.MerkleRoot = CalcMerkleRoot([]*btcutil.Tx{utilTx})
			},
			want: ErrFirstNotCoinbase,
		},
		{
			name: "extra coinbase",
			mutate: func(b *wire.MsgBlock) {
				extra := testhelper.CreateCoinbaseTx(2, CalcBlockSubsidy(2))
				b.Transactions = append(b.Transactions, extra)
				utilTxns := []*btcutil.Tx{
					btcutil.NewTx(b.Transactions[0]), btcutil.NewTx(extra),
				}
				b.Header.MerkleRoot = CalcMerkleRoot(utilTxns)
			},
			want: ErrExtraCoinbases,
		},
		{
			name: "duplicate transactions",
			mutate: func(b *wire.MsgBlock) {
				spend := testhelper.MakeSpendableOutForTx(b.Transactions[0], 0)
				tx := testhelper.CreateSpendTx(&spend, testhelper.LowFee)
				b.Transactions = append(b.Transactions, tx, tx)
				utilTxns := []*btcutil.Tx{
					btcutil.NewTx(b.Transactions[0]),
					btcutil.NewTx(tx), btcutil.NewTx(tx),
				}
				b.Header.MerkleRoot = CalcMerkleRoot(utilTxns)
			},
			want: ErrDuplicateTransaction,
		},
		{
			name: "futuristic timestamp",
			mutate: func(b *wire.MsgBlock) {
				b.Header.Timestamp = time.Unix(4000000000, 0)
			},
			want: ErrFuturisticTimestamp,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msgBlock := base()
			test.mutate(msgBlock)

			// Re-solve so the proof-of-work check, which runs before
			// the rule under test, keeps passing.
			testhelper.SolveBlock(&msgBlock.Header)

			err := checkBlockSanity(btcutil.NewBlock(msgBlock), params,
				frozenTime(params))
			require.True(t, IsRuleError(err, test.want), "got %v", err)
		})
	}
}

func TestCheckTransactionSanity(t *testing.T) {
	// Empty transactions are rejected.
	err := CheckTransactionSanity(btcutil.NewTx(wire.NewMsgTx(1)))
	require.True(t, IsRuleError(err, ErrEmptyTransaction), "got %v", err)

	// Output values above the money supply are rejected.
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}},
	})
	tx.AddTxOut(wire.NewTxOut(maxMoney+1, testhelper.OpTrueScript))
	err = CheckTransactionSanity(btcutil.NewTx(tx))
	require.True(t, IsRuleError(err, ErrOutputValueOverflow), "got %v", err)

	// A non-coinbase input must not reference the null outpoint.
	tx = wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}},
	})
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
	})
	tx.AddTxOut(wire.NewTxOut(1, testhelper.OpTrueScript))
	err = CheckTransactionSanity(btcutil.NewTx(tx))
	require.True(t, IsRuleError(err, ErrPreviousOutputNull), "got %v", err)

	// A coinbase script outside [2, 100] bytes is rejected.
	cb := testhelper.CreateCoinbaseTx(1, CalcBlockSubsidy(1))
	cb.TxIn[0].SignatureScript = make([]byte, 101)
	err = CheckTransactionSanity(btcutil.NewTx(cb))
	require.True(t, IsRuleError(err, ErrInvalidCoinbaseScriptSize), "got %v", err)
}

func TestCalcBlockSubsidy(t *testing.T) {
	require.Equal(t, int64(50e8), CalcBlockSubsidy(0))
	require.Equal(t, int64(50e8), CalcBlockSubsidy(209999))
	require.Equal(t, int64(25e8), CalcBlockSubsidy(210000))
	require.Equal(t, int64(125e7), CalcBlockSubsidy(420000))
	require.Equal(t, int64(0), CalcBlockSubsidy(210000*64))
}

func TestIsCoinBaseTx(t *testing.T) {
	cb := testhelper.CreateCoinbaseTx(5, CalcBlockSubsidy(5))
	require.True(t, IsCoinBaseTx(cb))

	spend := testhelper.MakeSpendableOutForTx(cb, 0)
	tx := testhelper.CreateSpendTx(&spend, testhelper.LowFee)
	require.False(t, IsCoinBaseTx(tx))
}

func TestExtractCoinbaseHeight(t *testing.T) {
	for _, height := range []int32{0, 1, 16, 17, 255, 300000, 237371} {
		cb := testhelper.CreateCoinbaseTx(height, 50e8)
		got, err := ExtractCoinbaseHeight(btcutil.NewTx(cb))
		require.NoError(t, err)
		require.Equal(t, height, got)
	}
}
