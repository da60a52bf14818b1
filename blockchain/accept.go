// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// acceptBlock performs the height-dependent checks on the block at the
// given index of the branch.  Header lookups above the fork resolve
// through the branch itself.
func (c *BlockChain) acceptBlock(view *branchView, b *branch, index int) error {
	block := b.blocks[index]
	height := b.heightAt(index)
	header := &block.MsgBlock().Header

	// The declared difficulty must be exactly the required difficulty.
	required, err := view.workRequired(height, header.Timestamp, c.testNet)
	if err != nil {
		return err
	}
	if header.Bits != required {
		return ruleError(ErrIncorrectProofOfWork, fmt.Sprintf(
			"block difficulty of %08x is not the expected %08x",
			header.Bits, required))
	}

	// The timestamp must be after the median of the last eleven.
	medianTime, err := view.medianTimePast(height)
	if err != nil {
		return err
	}
	if !header.Timestamp.After(medianTime) {
		return ruleError(ErrTimestampTooEarly, fmt.Sprintf(
			"block timestamp of %v is not after median time %v",
			header.Timestamp, medianTime))
	}

	// Every transaction must be final at this height and time.
	for _, tx := range block.Transactions() {
		if !isFinalizedTransaction(tx, height, header.Timestamp) {
			return ruleError(ErrNonFinalTransaction, fmt.Sprintf(
				"block contains unfinalized transaction %v", tx.Hash()))
		}
	}

	// The block must agree with every configured checkpoint.
	for _, checkpoint := range c.checkpoints {
		if checkpoint.Height == height && *checkpoint.Hash != *block.Hash() {
			return ruleError(ErrCheckpointsFailed, fmt.Sprintf(
				"block at height %d does not match checkpoint", height))
		}
	}

	// Reject version 1 blocks after the switchover point.
	if header.Version < 2 && height > maxVersion1Height {
		return ruleError(ErrOldVersionBlock, fmt.Sprintf(
			"old version block %d at height %d", header.Version, height))
	}

	// Version 2 blocks commit to their height in the coinbase (BIP34).
	if header.Version >= 2 {
		if err := checkSerializedHeight(block.Transactions()[0], height); err != nil {
			return err
		}
	}

	return nil
}
