// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxBlockSize is the maximum number of bytes in a serialized
	// block.
	MaxBlockSize = 1000000

	// MaxSigOpsPerBlock is the maximum number of signature operations
	// in a block.
	MaxSigOpsPerBlock = 20000

	// MinCoinbaseScriptLen and MaxCoinbaseScriptLen bound the length of
	// a coinbase input script.
	MinCoinbaseScriptLen = 2
	MaxCoinbaseScriptLen = 100

	// maxVersion1Height is the last height at which version 1 blocks
	// are accepted; version 2 blocks at or above it must commit to
	// their height.
	maxVersion1Height = 237370

	// medianTimeBlocks is the number of previous blocks whose
	// timestamps feed the timestamp-too-early check.
	medianTimeBlocks = 11

	// maxTimeOffset is how far a block timestamp may be in the future.
	maxTimeOffset = 2 * time.Hour

	// subsidyHalvingInterval is the number of blocks between subsidy
	// halvings.
	subsidyHalvingInterval = 210000

	// baseSubsidy is the starting subsidy in satoshis.
	baseSubsidy = 50 * btcutil.SatoshiPerBitcoin

	// maxMoney is the maximum transaction output value sum in satoshis.
	maxMoney = btcutil.MaxSatoshi
)

// zeroHash is the zero value for a chainhash.Hash and is defined as a
// package level variable to avoid the need to create a new instance
// every time a check is needed.
var zeroHash chainhash.Hash

// TimeSource provides the wall-clock time used by the futuristic
// timestamp check.
type TimeSource interface {
	// AdjustedTime returns the current time.
	AdjustedTime() time.Time
}

type systemTimeSource struct{}

func (systemTimeSource) AdjustedTime() time.Time {
	return time.Unix(time.Now().Unix(), 0)
}

// NewSystemTimeSource returns a TimeSource backed by the system clock.
func NewSystemTimeSource() TimeSource {
	return systemTimeSource{}
}

// IsCoinBaseTx determines whether or not a transaction is a coinbase: a
// single input whose previous outpoint is the null outpoint.
func IsCoinBaseTx(msgTx *wire.MsgTx) bool {
	if len(msgTx.TxIn) != 1 {
		return false
	}
	prevOut := &msgTx.TxIn[0].PreviousOutPoint
	return prevOut.Index == wire.MaxPrevOutIndex && prevOut.Hash == zeroHash
}

// IsCoinBase determines whether or not a transaction is a coinbase.
func IsCoinBase(tx *btcutil.Tx) bool {
	return IsCoinBaseTx(tx.MsgTx())
}

// CalcBlockSubsidy returns the subsidy for a block at the given height:
// 50 coins halved every 210,000 blocks, zero after 64 halvings.
func CalcBlockSubsidy(height int32) int64 {
	halvings := uint(height / subsidyHalvingInterval)
	if halvings >= 64 {
		return 0
	}
	return baseSubsidy >> halvings
}

// CheckTransactionSanity performs the context-free checks on a
// transaction.
func CheckTransactionSanity(tx *btcutil.Tx) error {
	msgTx := tx.MsgTx()

	// A transaction must have at least one input and one output.
	if len(msgTx.TxIn) == 0 || len(msgTx.TxOut) == 0 {
		return ruleError(ErrEmptyTransaction, "transaction has no inputs or outputs")
	}

	// The total output value must be in the money range.
	var total int64
	for _, txOut := range msgTx.TxOut {
		value := txOut.Value
		if value < 0 || value > maxMoney {
			return ruleError(ErrOutputValueOverflow, fmt.Sprintf(
				"transaction output value of %d is out of range", value))
		}
		total += value
		if total < 0 || total > maxMoney {
			return ruleError(ErrOutputValueOverflow, fmt.Sprintf(
				"total transaction output value of %d is out of range", total))
		}
	}

	if IsCoinBaseTx(msgTx) {
		// The coinbase script length must be in range.
		slen := len(msgTx.TxIn[0].SignatureScript)
		if slen < MinCoinbaseScriptLen || slen > MaxCoinbaseScriptLen {
			return ruleError(ErrInvalidCoinbaseScriptSize, fmt.Sprintf(
				"coinbase script length of %d is out of range", slen))
		}
	} else {
		// Previous outpoints of a non-coinbase must not be null.
		for _, txIn := range msgTx.TxIn {
			prevOut := &txIn.PreviousOutPoint
			if prevOut.Index == wire.MaxPrevOutIndex && prevOut.Hash == zeroHash {
				return ruleError(ErrPreviousOutputNull,
					"transaction input refers to a null previous output")
			}
		}
	}

	return nil
}

// CountSigOps counts a transaction's "legacy" signature operations: the
// sum over its input and output scripts, where the multisig opcodes
// count as 20 unless preceded by a small integer push.
func CountSigOps(tx *btcutil.Tx) int {
	msgTx := tx.MsgTx()

	numSigOps := 0
	for _, txIn := range msgTx.TxIn {
		numSigOps += txscript.GetSigOpCount(txIn.SignatureScript)
	}
	for _, txOut := range msgTx.TxOut {
		numSigOps += txscript.GetSigOpCount(txOut.PkScript)
	}
	return numSigOps
}

// checkBlockSanity performs the context-free checks on a block: checks
// that are independent of the blockchain and can run before an orphan
// is pooled.
func checkBlockSanity(block *btcutil.Block, chainParams *chaincfg.Params,
	timeSource TimeSource) error {

	msgBlock := block.MsgBlock()
	transactions := block.Transactions()

	// A block must have at least one transaction (the coinbase) and
	// must not exceed the maximum size.
	if len(transactions) == 0 {
		return ruleError(ErrSizeLimits, "block does not contain any transactions")
	}
	serializedSize := msgBlock.SerializeSizeStripped()
	if serializedSize > MaxBlockSize {
		return ruleError(ErrSizeLimits, fmt.Sprintf(
			"serialized block of %d bytes is too big", serializedSize))
	}

	// The header hash must satisfy the claimed target.
	header := &msgBlock.Header
	if err := checkProofOfWork(block.Hash(), header.Bits, chainParams.PowLimit); err != nil {
		return err
	}

	// The timestamp must not be too far in the future.
	maxTimestamp := timeSource.AdjustedTime().Add(maxTimeOffset)
	if header.Timestamp.After(maxTimestamp) {
		return ruleError(ErrFuturisticTimestamp, fmt.Sprintf(
			"block timestamp of %v is too far in the future", header.Timestamp))
	}

	// The first transaction must be a coinbase and no other may be.
	if !IsCoinBase(transactions[0]) {
		return ruleError(ErrFirstNotCoinbase, "first transaction in block is not the coinbase")
	}
	for i, tx := range transactions[1:] {
		if IsCoinBase(tx) {
			return ruleError(ErrExtraCoinbases, fmt.Sprintf(
				"block contains second coinbase at index %d", i+1))
		}
	}

	// Every transaction must be individually sane.
	for _, tx := range transactions {
		if err := CheckTransactionSanity(tx); err != nil {
			return err
		}
	}

	// All transaction hashes must be distinct.
	existing := make(map[chainhash.Hash]struct{}, len(transactions))
	for _, tx := range transactions {
		hash := tx.Hash()
		if _, ok := existing[*hash]; ok {
			return ruleError(ErrDuplicateTransaction, fmt.Sprintf(
				"block contains duplicate transaction %v", hash))
		}
		existing[*hash] = struct{}{}
	}

	// The legacy sigop count must be in range.
	totalSigOps := 0
	for _, tx := range transactions {
		totalSigOps += CountSigOps(tx)
		if totalSigOps > MaxSigOpsPerBlock {
			return ruleError(ErrTooManySigs, fmt.Sprintf(
				"block contains too many signature operations - got %d, max %d",
				totalSigOps, MaxSigOpsPerBlock))
		}
	}

	// The merkle root must match the transactions.
	calculated := CalcMerkleRoot(transactions)
	if !header.MerkleRoot.IsEqual(&calculated) {
		return ruleError(ErrMerkleMismatch, fmt.Sprintf(
			"block merkle root is invalid - got %v, want %v",
			header.MerkleRoot, calculated))
	}

	return nil
}

// ExtractCoinbaseHeight attempts to extract the height of the block from
// the coinbase input script as required by version 2 blocks (BIP34).
func ExtractCoinbaseHeight(coinbaseTx *btcutil.Tx) (int32, error) {
	sigScript := coinbaseTx.MsgTx().TxIn[0].SignatureScript
	if len(sigScript) < 1 {
		return 0, ruleError(ErrCoinbaseHeightMismatch,
			"the coinbase signature script must start with the serialized block height")
	}

	// Detect the case when the block height is a small integer encoded
	// with a single opcode.
	opcode := int(sigScript[0])
	if opcode == txscript.OP_0 {
		return 0, nil
	}
	if opcode >= txscript.OP_1 && opcode <= txscript.OP_16 {
		return int32(opcode - (txscript.OP_1 - 1)), nil
	}

	// Otherwise, the opcode is the length of the serialized height.
	serializedLen := opcode
	if len(sigScript[1:]) < serializedLen || serializedLen > 8 {
		return 0, ruleError(ErrCoinbaseHeightMismatch,
			"the coinbase signature script must start with the serialized block height")
	}

	serializedHeightBytes := make([]byte, 8)
	copy(serializedHeightBytes, sigScript[1:serializedLen+1])
	var serializedHeight uint64
	for i := 7; i >= 0; i-- {
		serializedHeight = serializedHeight<<8 | uint64(serializedHeightBytes[i])
	}
	return int32(serializedHeight), nil
}

// checkSerializedHeight checks the coinbase of a version 2 block begins
// with the block's serialized height.  Blocks below the switchover
// height with a spurious version 2 are ignored.
func checkSerializedHeight(coinbaseTx *btcutil.Tx, wantHeight int32) error {
	if wantHeight < maxVersion1Height {
		return nil
	}

	serializedHeight, err := ExtractCoinbaseHeight(coinbaseTx)
	if err != nil {
		return err
	}
	if serializedHeight != wantHeight {
		return ruleError(ErrCoinbaseHeightMismatch, fmt.Sprintf(
			"the coinbase signature script serialized block height is %d "+
				"when %d was expected", serializedHeight, wantHeight))
	}
	return nil
}

// isFinalizedTransaction determines whether a transaction is final at
// the given block height and time.
func isFinalizedTransaction(tx *btcutil.Tx, blockHeight int32, blockTime time.Time) bool {
	msgTx := tx.MsgTx()

	// Lock time of zero means the transaction is finalized.
	lockTime := msgTx.LockTime
	if lockTime == 0 {
		return true
	}

	// The lock time field is interpreted as a block height when it is
	// below the threshold, and a unix timestamp otherwise.
	var blockTimeOrHeight int64
	if lockTime < txscript.LockTimeThreshold {
		blockTimeOrHeight = int64(blockHeight)
	} else {
		blockTimeOrHeight = blockTime.Unix()
	}
	if int64(lockTime) < blockTimeOrHeight {
		return true
	}

	// At this point the transaction's lock time hasn't occurred yet,
	// but it might still be final if every input's sequence disables
	// the lock time.
	for _, txIn := range msgTx.TxIn {
		if txIn.Sequence != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}
