// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

// branch is a sequence of pooled blocks, oldest first, that connects to
// the confirmed chain at the fork height.  The first block's previous
// hash is the confirmed block at forkHeight; block i sits at height
// forkHeight+1+i.
type branch struct {
	forkHeight int32
	blocks     []*btcutil.Block

	// threshold is the cumulative work of the confirmed chain above the
	// fork point that this branch must strictly exceed.
	threshold *big.Int
}

// size returns the number of blocks in the branch.
func (b *branch) size() int {
	return len(b.blocks)
}

// empty reports whether the branch has no blocks.
func (b *branch) empty() bool {
	return len(b.blocks) == 0
}

// heightAt returns the chain height of the block at the given index.
func (b *branch) heightAt(index int) int32 {
	return b.forkHeight + 1 + int32(index)
}

// work returns the cumulative proof of work of the branch's blocks.
func (b *branch) work() *big.Int {
	total := big.NewInt(0)
	for _, block := range b.blocks {
		total.Add(total, CalcWork(block.MsgBlock().Header.Bits))
	}
	return total
}

// setThreshold records the confirmed work the branch competes against.
func (b *branch) setThreshold(threshold *big.Int) {
	b.threshold = threshold
}

// isSufficient reports whether the branch's work strictly exceeds the
// recorded threshold.
func (b *branch) isSufficient() bool {
	return b.threshold != nil && b.work().Cmp(b.threshold) > 0
}

// pop removes the block at the given index and all of its descendants,
// returning the removed blocks.
func (b *branch) pop(index int) []*btcutil.Block {
	removed := b.blocks[index:]
	b.blocks = b.blocks[:index]
	return removed
}
