// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// testOptions keeps the hash tables small so test stores stay tiny.
func testOptions() *Options {
	return &Options{
		BlockBuckets:   101,
		TxBuckets:      101,
		SpendBuckets:   101,
		HistoryBuckets: 101,
	}
}

// testStore initializes a store seeded with the mainnet genesis block.
func testStore(t *testing.T, opts *Options) *Store {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	genesis := btcutil.NewBlock(chaincfg.MainNetParams.GenesisBlock)
	store, err := Initialize(t.TempDir(), &chaincfg.MainNetParams, opts, genesis)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// testPubKey returns a fake (but well-formed) compressed public key.
func testPubKey(seed byte) []byte {
	pubKey := make([]byte, 33)
	pubKey[0] = 0x02
	for i := 1; i < len(pubKey); i++ {
		pubKey[i] = seed + byte(i)
	}
	return pubKey
}

// p2pkhScript builds a canonical pay-to-pubkey-hash script for the given
// 20-byte hash.
func p2pkhScript(t *testing.T, addrHash []byte) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(addrHash).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)
	return script
}

// p2pkhSigScript builds a signature script whose final push is the
// public key, the shape the history index extracts addresses from.
func p2pkhSigScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()
	fakeSig := make([]byte, 9)
	script, err := txscript.NewScriptBuilder().
		AddData(fakeSig).AddData(pubKey).Script()
	require.NoError(t, err)
	return script
}

// makeCoinbaseTx builds a coinbase paying value to the given script.
// The height is encoded into the signature script so coinbases at
// different heights hash differently.
func makeCoinbaseTx(t *testing.T, height int32, value int64, pkScript []byte) *wire.MsgTx {
	t.Helper()
	sigScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).AddInt64(7).Script()
	require.NoError(t, err)

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: sigScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx
}

// makeSpendTx builds a transaction spending the given outpoint to the
// given script.
func makeSpendTx(prev *wire.OutPoint, sigScript []byte, value int64,
	pkScript []byte) *wire.MsgTx {

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *prev,
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx
}

// makeBlock assembles a block on the given parent.  The database layer
// performs no validation, so the header needs no solved proof of work
// and no merkle root.
func makeBlock(prev *chainhash.Hash, height int32, txns []*wire.MsgTx) *btcutil.Block {
	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: *prev,
			Timestamp: time.Unix(1300000000+int64(height)*600, 0),
			Bits:      0x1d00ffff,
			Nonce:     uint32(height),
		},
		Transactions: txns,
	}
	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(height)
	return block
}
