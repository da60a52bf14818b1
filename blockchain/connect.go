// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"
)

// BIP30 exception heights, where the duplicate-coinbase check is
// skipped.
const (
	bip30ExceptionHeight1 = 91842
	bip30ExceptionHeight2 = 91880
)

// scriptCheck is one deferred input-script verification.  Script checks
// are the expensive part of connecting a block, so they fan out onto
// the priority workers and join before the block is considered
// connected.
type scriptCheck struct {
	prevScript []byte
	prevValue  int64
	tx         *wire.MsgTx
	inputIndex int
}

// connectBlock performs the prevout-dependent checks on the block at
// the given index of the branch: input existence, coinbase maturity,
// double spends, precise script-hash sigops, script consensus, and the
// subsidy ceiling.
func (c *BlockChain) connectBlock(view *branchView, b *branch, index int) error {
	block := b.blocks[index]
	height := b.heightAt(index)
	transactions := block.Transactions()

	// BIP30: a transaction hash that already exists must have all of
	// its outputs spent.  The two exception blocks skip the check.
	if height != bip30ExceptionHeight1 && height != bip30ExceptionHeight2 {
		for _, tx := range transactions {
			spentDuplicate, err := c.isSpentDuplicate(view, tx)
			if err != nil {
				return err
			}
			if spentDuplicate {
				return ruleError(ErrDuplicateOrSpent, fmt.Sprintf(
					"duplicate transaction %v with unspent outputs", tx.Hash()))
			}
		}
	}

	// Script flags depend on the block timestamp (BIP16 activation).
	var scriptFlags txscript.ScriptFlags
	if block.MsgBlock().Header.Timestamp.After(txscript.Bip16Activation) {
		scriptFlags |= txscript.ScriptBip16
	}

	var fees int64
	totalSigOps := 0
	var checks []*scriptCheck

	// localSpent tracks outpoints consumed by earlier inputs of this
	// same block.
	localSpent := make(map[wire.OutPoint]struct{})

	for txIndex, tx := range transactions {
		// The legacy count was checked context-free; re-tally here so
		// the precise script-hash additions share the same budget.
		totalSigOps += CountSigOps(tx)
		if totalSigOps > MaxSigOpsPerBlock {
			return ruleError(ErrTooManySigs, fmt.Sprintf(
				"block contains too many signature operations - got %d, max %d",
				totalSigOps, MaxSigOpsPerBlock))
		}

		if txIndex == 0 {
			// Make the coinbase resolvable by later transactions of
			// this block.
			view.txs[*tx.Hash()] = branchTx{tx: tx.MsgTx(), height: height}
			continue
		}

		valueIn, err := c.connectTransaction(view, tx, height, localSpent,
			&totalSigOps, &checks)
		if err != nil {
			return err
		}
		view.txs[*tx.Hash()] = branchTx{tx: tx.MsgTx(), height: height}

		// Tally this transaction's fee.
		var valueOut int64
		for _, txOut := range tx.MsgTx().TxOut {
			valueOut += txOut.Value
		}
		if valueIn < valueOut {
			return ruleError(ErrFeesOutOfRange, fmt.Sprintf(
				"transaction %v spends %d with only %d in", tx.Hash(),
				valueOut, valueIn))
		}
		fees += valueIn - valueOut
		if fees < 0 || fees > maxMoney {
			return ruleError(ErrFeesOutOfRange, "block fees are out of range")
		}
	}

	// Fan the script checks out across the priority workers.
	if err := c.runScriptChecks(checks, scriptFlags); err != nil {
		return err
	}

	// The coinbase may claim no more than the subsidy plus fees.
	var coinbaseValue int64
	for _, txOut := range transactions[0].MsgTx().TxOut {
		coinbaseValue += txOut.Value
	}
	if coinbaseValue > CalcBlockSubsidy(height)+fees {
		return ruleError(ErrCoinbaseTooLarge, fmt.Sprintf(
			"coinbase claims %d which is more than the %d allowed",
			coinbaseValue, CalcBlockSubsidy(height)+fees))
	}

	return nil
}

// isSpentDuplicate reports whether the transaction's hash already
// exists with at least one unspent output.
func (c *BlockChain) isSpentDuplicate(view *branchView, tx *btcutil.Tx) (bool, error) {
	previous, _, found := view.fetchTransaction(tx.Hash())
	if !found {
		return false, nil
	}

	// Are all outputs spent?
	for outputIndex := range previous.TxOut {
		outpoint := wire.OutPoint{Hash: *tx.Hash(), Index: uint32(outputIndex)}
		if !view.isSpent(&outpoint) {
			return true, nil
		}
	}
	return false, nil
}

// connectTransaction validates the inputs of one non-coinbase
// transaction and returns the accumulated input value.  Script checks
// are appended to checks for deferred parallel execution.
func (c *BlockChain) connectTransaction(view *branchView, tx *btcutil.Tx,
	height int32, localSpent map[wire.OutPoint]struct{}, totalSigOps *int,
	checks *[]*scriptCheck) (int64, error) {

	var valueIn int64
	msgTx := tx.MsgTx()

	for inputIndex, txIn := range msgTx.TxIn {
		prevOut := &txIn.PreviousOutPoint

		// The previous output must exist in the branch, in earlier
		// transactions of this block, or on the persistent chain below
		// the fork.
		prevTx, prevHeight, found := view.fetchTransaction(&prevOut.Hash)
		if !found {
			return 0, ruleError(ErrInputNotFound, fmt.Sprintf(
				"input %v:%d references unknown transaction",
				tx.Hash(), inputIndex))
		}
		if prevOut.Index >= uint32(len(prevTx.TxOut)) {
			return 0, ruleError(ErrInputNotFound, fmt.Sprintf(
				"input %v:%d references nonexistent output",
				tx.Hash(), inputIndex))
		}
		prevTxOut := prevTx.TxOut[prevOut.Index]

		// Precise script-hash sigops join the block-wide budget.
		if txscript.IsPayToScriptHash(prevTxOut.PkScript) {
			*totalSigOps += txscript.GetPreciseSigOpCount(
				txIn.SignatureScript, prevTxOut.PkScript, true)
			if *totalSigOps > MaxSigOpsPerBlock {
				return 0, ruleError(ErrTooManySigs,
					"script-hash signature operations exceed the block maximum")
			}
		}

		// The output amount must be in range.
		if prevTxOut.Value < 0 || prevTxOut.Value > maxMoney {
			return 0, ruleError(ErrOutputValueOverflow, fmt.Sprintf(
				"referenced output value of %d is out of range", prevTxOut.Value))
		}

		// A coinbase output must have matured.
		if IsCoinBaseTx(prevTx) {
			if height-prevHeight < int32(c.params.CoinbaseMaturity) {
				return 0, ruleError(ErrCoinbaseMaturity, fmt.Sprintf(
					"coinbase output spent at height %d only %d after creation",
					height, height-prevHeight))
			}
		}

		// The outpoint must not be double spent: not by the branch, not
		// by the chain below the fork, and not by an earlier input of
		// this block.
		if _, ok := localSpent[*prevOut]; ok {
			return 0, ruleError(ErrDoubleSpend, fmt.Sprintf(
				"input %v:%d double spends within its block",
				tx.Hash(), inputIndex))
		}
		if view.isSpent(prevOut) {
			return 0, ruleError(ErrDoubleSpend, fmt.Sprintf(
				"input %v:%d double spends %v", tx.Hash(), inputIndex, prevOut))
		}
		localSpent[*prevOut] = struct{}{}

		// Defer the expensive script execution.
		*checks = append(*checks, &scriptCheck{
			prevScript: prevTxOut.PkScript,
			prevValue:  prevTxOut.Value,
			tx:         msgTx,
			inputIndex: inputIndex,
		})

		valueIn += prevTxOut.Value
		if valueIn > maxMoney {
			return 0, ruleError(ErrSpendExceedsValue,
				"accumulated input value exceeds the money range")
		}
	}

	return valueIn, nil
}

// runScriptChecks executes the deferred input-script verifications
// concurrently on up to the configured number of priority workers.
func (c *BlockChain) runScriptChecks(checks []*scriptCheck,
	flags txscript.ScriptFlags) error {

	if len(checks) == 0 {
		return nil
	}

	var group errgroup.Group
	group.SetLimit(c.priorityThreads)
	for _, check := range checks {
		check := check
		group.Go(func() error {
			if c.stopped.Load() {
				return ruleError(ErrServiceStopped, "script verification abandoned")
			}
			fetcher := txscript.NewCannedPrevOutputFetcher(
				check.prevScript, check.prevValue)
			vm, err := txscript.NewEngine(check.prevScript, check.tx,
				check.inputIndex, flags, nil, nil, check.prevValue, fetcher)
			if err != nil {
				return ruleError(ErrScriptValidation, fmt.Sprintf(
					"failed to create script engine: %v", err))
			}
			if err := vm.Execute(); err != nil {
				return ruleError(ErrScriptValidation, fmt.Sprintf(
					"input %v:%d script failed: %v",
					check.tx.TxHash(), check.inputIndex, err))
			}
			return nil
		})
	}
	return group.Wait()
}
