// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
)

// Organize submits a block for chain organization.  The block passes
// the context-free checks, joins the pool, and - when it completes a
// branch with strictly more work than the confirmed chain above its
// fork point - triggers a reorganization.
//
// A block that does not yet connect returns ErrOrphanBlock and waits in
// the pool for a parent.  A connected branch that does not beat the
// confirmed chain returns ErrInsufficientWork and likewise waits.
func (c *BlockChain) Organize(block *btcutil.Block) error {
	if c.stopped.Load() {
		return ruleError(ErrServiceStopped, "chain is stopping")
	}

	// Checks that are independent of chain state.
	if err := checkBlockSanity(block, c.params, c.timeSource); err != nil {
		return err
	}

	// Everything from here to the reorganization runs on the writer
	// strand.
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	if c.stopped.Load() {
		return ruleError(ErrServiceStopped, "chain is stopping")
	}

	blockHash := block.Hash()
	if c.invalidCache.Contains(*blockHash) {
		return ruleError(ErrDuplicateBlock, fmt.Sprintf(
			"block %v already failed validation", blockHash))
	}

	// Check the store and the pool for a duplicate block hash.
	if c.store.HasBlock(blockHash) {
		return ruleError(ErrDuplicateBlock, fmt.Sprintf(
			"block %v is already confirmed", blockHash))
	}

	height := unknownHeight
	if prevHeight, err := c.store.BlockHeight(&block.MsgBlock().Header.PrevBlock); err == nil {
		height = prevHeight + 1
	}
	if !c.pool.Add(block, height) {
		return ruleError(ErrDuplicateBlock, fmt.Sprintf(
			"block %v is already pooled", blockHash))
	}

	err := c.organizePooled(block)

	// A block that organized (or banked work) may have unblocked pooled
	// descendants that arrived before it; organize them now.
	if err == nil || IsRuleError(err, ErrInsufficientWork) {
		c.organizeDescendants(block)
	}
	return err
}

// organizeDescendants replays pooled children of newly organized
// blocks, breadth first, so orphans connect as soon as their ancestry
// resolves.
func (c *BlockChain) organizeDescendants(block *btcutil.Block) {
	queue := []*btcutil.Block{block}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, child := range c.pool.ChildrenOf(parent.Hash()) {
			err := c.organizePooled(child)
			if err == nil || IsRuleError(err, ErrInsufficientWork) {
				queue = append(queue, child)
			}
		}
	}
}

// organizePooled runs branch discovery, validation, and reorganization
// for a block that is already in the pool.  Callers hold the writer
// strand.
func (c *BlockChain) organizePooled(block *btcutil.Block) error {
	blockHash := block.Hash()

	// Find the longest path through the pool that connects the block
	// to the confirmed chain.
	path := c.pool.Trace(block)
	rootPrev := path[0].MsgBlock().Header.PrevBlock
	forkHeight, err := c.store.BlockHeight(&rootPrev)
	if err != nil {
		if database.IsNotFound(err) {
			// No link to the chain: the block waits as an orphan.
			return ruleError(ErrOrphanBlock, fmt.Sprintf(
				"block %v does not connect to the confirmed chain", blockHash))
		}
		return convertOrganizeErr(err)
	}

	b := &branch{forkHeight: forkHeight, blocks: path}

	// The branch must strictly out-work the confirmed chain above the
	// fork point.
	threshold, err := c.confirmedWork(forkHeight, b.work())
	if err != nil {
		return convertOrganizeErr(err)
	}
	b.setThreshold(threshold)
	if !b.isSufficient() {
		return ruleError(ErrInsufficientWork, fmt.Sprintf(
			"branch at fork height %d does not exceed the confirmed chain",
			forkHeight))
	}

	// Contextual validation along the branch, in order.  A failed block
	// takes its descendants out of the pool; a surviving prefix with
	// sufficient work still reorganizes.
	var validationErr error
	view := newBranchView(c.store, b, c.params)
	for index := 0; index < b.size(); index++ {
		if c.stopped.Load() {
			return ruleError(ErrServiceStopped, "chain is stopping")
		}

		err := c.acceptBlock(view, b, index)
		if err == nil {
			err = c.connectBlock(view, b, index)
		}
		if err != nil {
			if !isValidationError(err) {
				// Store failures are not validation failures.
				return convertOrganizeErr(err)
			}

			failed := b.blocks[index]
			log.Warnf("Block %v failed validation at height %d: %v",
				failed.Hash(), b.heightAt(index), err)
			c.invalidCache.Add(*failed.Hash())

			removed := b.pop(index)
			c.pool.Remove(removed)
			validationErr = err

			if b.empty() {
				return err
			}
			if !b.isSufficient() {
				return ruleError(ErrInsufficientWork,
					"remaining branch does not exceed the confirmed chain")
			}
			break
		}

		view.connect(b.blocks[index], b.heightAt(index))
		log.Debugf("Validated block %v at height %d",
			b.blocks[index].Hash(), b.heightAt(index))
	}

	if err := c.reorganize(b); err != nil {
		log.Criticalf("Failure writing reorganization, store is now "+
			"corrupt: %v", err)
		return err
	}

	return validationErr
}

// isValidationError distinguishes rule violations, which evict the
// offending block, from store failures, which abort the organization.
func isValidationError(err error) bool {
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return false
	}
	switch ruleErr.ErrorCode {
	case ErrServiceStopped, ErrOperationFailed:
		return false
	}
	return true
}

// convertOrganizeErr wraps unexpected store errors for organizer
// callers.
func convertOrganizeErr(err error) error {
	var ruleErr RuleError
	if errors.As(err, &ruleErr) {
		return err
	}
	return ruleError(ErrOperationFailed, fmt.Sprintf(
		"store failure during organization: %v", err))
}

// confirmedWork sums the work of the confirmed chain above the fork
// point, stopping early once it reaches the branch's work since the
// comparison is already decided.
func (c *BlockChain) confirmedWork(forkHeight int32, branchWork *big.Int) (*big.Int, error) {
	total := big.NewInt(0)
	top, ok := c.store.Height()
	if !ok {
		return nil, ruleError(ErrOperationFailed, "confirmed chain is empty")
	}

	for height := forkHeight + 1; height <= top; height++ {
		header, err := c.store.Header(height)
		if err != nil {
			return nil, err
		}
		total.Add(total, CalcWork(header.Bits))
		if total.Cmp(branchWork) >= 0 {
			break
		}
	}
	return total, nil
}

// reorganize pops the confirmed chain back to the branch's fork height
// and pushes the branch, then notifies subscribers.  The displaced
// blocks re-enter the pool so they can compete again later.
func (c *BlockChain) reorganize(b *branch) error {
	top, ok := c.store.Height()
	if !ok {
		return ruleError(ErrOperationFailed, "confirmed chain is empty")
	}

	var outgoing []*btcutil.Block
	for height := top; height > b.forkHeight; height-- {
		block, err := c.store.PopBlock()
		if err != nil {
			return err
		}
		// Popped newest-first; prepend to keep the list oldest-first.
		outgoing = append([]*btcutil.Block{block}, outgoing...)
	}

	for _, block := range b.blocks {
		if err := c.store.PushBlock(block); err != nil {
			return err
		}
	}

	if c.flushReorgs {
		if err := c.store.Flush(); err != nil {
			return err
		}
	}

	// The branch blocks are now confirmed and leave the pool; the
	// displaced blocks re-enter it at their former heights.
	c.pool.Remove(b.blocks)
	for i, block := range outgoing {
		c.pool.Add(block, b.forkHeight+1+int32(i))
	}

	newTop := b.heightAt(b.size() - 1)
	c.pool.Prune(newTop)

	if len(outgoing) > 0 {
		log.Infof("Reorganized chain at fork height %d: %d blocks in, "+
			"%d blocks out, new top %d", b.forkHeight, b.size(),
			len(outgoing), newTop)
	}

	c.notifyReorganize(&ReorganizeNotification{
		ForkHeight: b.forkHeight,
		Incoming:   append([]*btcutil.Block(nil), b.blocks...),
		Outgoing:   outgoing,
	})
	return nil
}
