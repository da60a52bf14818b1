// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package testhelper

import (
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// OpTrueScript is a simple public key script that evaluates to
	// true, used by test transactions so spends need no signatures.
	OpTrueScript = []byte{txscript.OP_TRUE}

	// LowFee is a single satoshi and exists to make the test code more
	// readable.
	LowFee = btcutil.Amount(1)
)

// SpendableOut represents a transaction output that is spendable along
// with additional metadata such as the block its in and how much it
// pays.
type SpendableOut struct {
	PrevOut wire.OutPoint
	Amount  btcutil.Amount
}

// MakeSpendableOutForTx returns a spendable output for the given
// transaction and transaction output index within the transaction.
func MakeSpendableOutForTx(tx *wire.MsgTx, txOutIndex uint32) SpendableOut {
	return SpendableOut{
		PrevOut: wire.OutPoint{
			Hash:  tx.TxHash(),
			Index: txOutIndex,
		},
		Amount: btcutil.Amount(tx.TxOut[txOutIndex].Value),
	}
}

// standardCoinbaseScript returns a standard script suitable for use as
// the signature script of the coinbase transaction of a new block.  In
// particular, it starts with the block height that is required by
// version 2 blocks.
func standardCoinbaseScript(blockHeight int32, extraNonce uint64) ([]byte, error) {
	return txscript.NewScriptBuilder().AddInt64(int64(blockHeight)).
		AddInt64(int64(extraNonce)).Script()
}

// CreateCoinbaseTx returns a coinbase transaction paying an appropriate
// subsidy based on the passed block height to a script that evaluates
// to true.
func CreateCoinbaseTx(blockHeight int32, coinbaseVal int64) *wire.MsgTx {
	coinbaseScript, err := standardCoinbaseScript(blockHeight, 0)
	if err != nil {
		panic(err)
	}

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint
		// is zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    coinbaseVal,
		PkScript: OpTrueScript,
	})
	return tx
}

// CreateSpendTx creates a transaction that spends from the provided
// spendable output and includes an additional unique OP_RETURN output
// to ensure the transaction ends up with a unique hash.
func CreateSpendTx(spend *SpendableOut, fee btcutil.Amount) *wire.MsgTx {
	spendTx := wire.NewMsgTx(1)
	spendTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spend.PrevOut,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spendTx.AddTxOut(wire.NewTxOut(int64(spend.Amount-fee), OpTrueScript))
	opRetScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(spend.PrevOut.Hash[:]).Script()
	if err != nil {
		panic(err)
	}
	spendTx.AddTxOut(wire.NewTxOut(0, opRetScript))
	return spendTx
}

// SolveBlock attempts to find a nonce which makes the passed block
// header hash to a value less than the target difficulty.  When a
// successful solution is found, true is returned and the nonce field of
// the passed header is updated with the solution.  False is returned if
// no solution exists.
func SolveBlock(header *wire.BlockHeader) bool {
	targetDifficulty := compactToTarget(header.Bits)
	for nonce := uint32(0); nonce < math.MaxUint32; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if hashLessOrEqual(&hash, targetDifficulty) {
			return true
		}
	}
	return false
}

// compactToTarget expands compact difficulty bits to a 32-byte
// big-endian target.
func compactToTarget(bits uint32) []byte {
	target := make([]byte, 32)
	mantissa := bits & 0x007fffff
	exponent := int(bits >> 24)
	if exponent <= 3 {
		mantissa >>= 8 * uint(3-exponent)
		exponent = 3
	}
	for i := 0; i < 3; i++ {
		position := 32 - exponent + i
		if position >= 0 && position < 32 {
			target[position] = byte(mantissa >> (8 * uint(2-i)))
		}
	}
	return target
}

// hashLessOrEqual compares a little-endian hash against a big-endian
// target.
func hashLessOrEqual(hash *chainhash.Hash, target []byte) bool {
	for i := 0; i < 32; i++ {
		hashByte := hash[31-i]
		if hashByte < target[i] {
			return true
		}
		if hashByte > target[i] {
			return false
		}
	}
	return true
}
