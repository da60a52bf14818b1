// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// unknownHeight marks a pooled block whose height cannot be determined
// because nothing links it to the confirmed chain yet.
const unknownHeight = int32(-1)

type poolEntry struct {
	block  *btcutil.Block
	height int32
}

// BlockPool caches blocks that are not (or not yet) on the confirmed
// chain: orphans waiting for a parent and branch blocks waiting for
// enough work.  Entries are keyed by block hash with parent edges
// tracked by previous hash, so path discovery and pruning never chase
// object pointers.
//
// The pool is safe for concurrent use with shared readers and an
// exclusive writer.
type BlockPool struct {
	mtx sync.RWMutex

	// maxDepth bounds how far below the chain top a pooled block may
	// sit before pruning discards it.  Zero means unlimited.
	maxDepth int32

	entries  map[chainhash.Hash]*poolEntry
	children map[chainhash.Hash][]chainhash.Hash
}

// NewBlockPool returns an empty pool with the given retention depth.
func NewBlockPool(maxDepth int32) *BlockPool {
	return &BlockPool{
		maxDepth: maxDepth,
		entries:  make(map[chainhash.Hash]*poolEntry),
		children: make(map[chainhash.Hash][]chainhash.Hash),
	}
}

// Size returns the number of pooled blocks.
func (p *BlockPool) Size() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.entries)
}

// Exists reports whether the pool holds a block with the given hash.
func (p *BlockPool) Exists(hash *chainhash.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.entries[*hash]
	return ok
}

// Add inserts the block with its observed height, or unknownHeight when
// the caller cannot place it.  It returns false when the hash is
// already present.  When the block parents existing orphans of unknown
// height, their heights are resolved from the new entry.
func (p *BlockPool) Add(block *btcutil.Block, height int32) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	hash := *block.Hash()
	if _, ok := p.entries[hash]; ok {
		return false
	}

	// Resolve the height through a pooled parent when possible.
	if height == unknownHeight {
		prev := block.MsgBlock().Header.PrevBlock
		if parent, ok := p.entries[prev]; ok && parent.height != unknownHeight {
			height = parent.height + 1
		}
	}

	p.entries[hash] = &poolEntry{block: block, height: height}
	prev := block.MsgBlock().Header.PrevBlock
	p.children[prev] = append(p.children[prev], hash)

	if height != unknownHeight {
		p.resolveDescendants(hash, height)
	}
	return true
}

// resolveDescendants propagates known heights down the child edges.
// Callers must hold the write lock.
func (p *BlockPool) resolveDescendants(hash chainhash.Hash, height int32) {
	for _, childHash := range p.children[hash] {
		child, ok := p.entries[childHash]
		if !ok || child.height != unknownHeight {
			continue
		}
		child.height = height + 1
		p.resolveDescendants(childHash, height+1)
	}
}

// Remove deletes the given blocks from the pool.
func (p *BlockPool) Remove(blocks []*btcutil.Block) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, block := range blocks {
		p.remove(*block.Hash(), block.MsgBlock().Header.PrevBlock)
	}
}

// remove deletes one entry and its parent edge.  Callers must hold the
// write lock.
func (p *BlockPool) remove(hash, prev chainhash.Hash) {
	if _, ok := p.entries[hash]; !ok {
		return
	}
	delete(p.entries, hash)

	siblings := p.children[prev]
	for i, sibling := range siblings {
		if sibling == hash {
			p.children[prev] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(p.children[prev]) == 0 {
		delete(p.children, prev)
	}
}

// Trace returns the path of pooled blocks ending at the given block,
// oldest first, by walking previous hashes while they resolve inside
// the pool.  The caller decides whether the path's root connects to the
// confirmed chain.
func (p *BlockPool) Trace(block *btcutil.Block) []*btcutil.Block {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	path := []*btcutil.Block{block}
	current := block
	for {
		prev := current.MsgBlock().Header.PrevBlock
		entry, ok := p.entries[prev]
		if !ok {
			break
		}
		path = append([]*btcutil.Block{entry.block}, path...)
		current = entry.block
	}
	return path
}

// Prune discards entries whose height has fallen more than the
// retention depth below the new top.  Entries of unknown height are
// kept.  A subtree whose root survives the threshold is replanted as a
// new root even when its parent was discarded.
func (p *BlockPool) Prune(topHeight int32) {
	if p.maxDepth == 0 {
		return
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	threshold := topHeight - p.maxDepth
	for hash, entry := range p.entries {
		if entry.height == unknownHeight || entry.height >= threshold {
			continue
		}
		p.remove(hash, entry.block.MsgBlock().Header.PrevBlock)
	}
}

// ChildrenOf returns the pooled blocks whose previous hash is the given
// hash.
func (p *BlockPool) ChildrenOf(hash *chainhash.Hash) []*btcutil.Block {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	var blocks []*btcutil.Block
	for _, childHash := range p.children[*hash] {
		if entry, ok := p.entries[childHash]; ok {
			blocks = append(blocks, entry.block)
		}
	}
	return blocks
}

// Filter removes from the inventory every block entry whose hash is
// already pooled, preserving non-matching and non-block entries.
func (p *BlockPool) Filter(inv []*wire.InvVect) []*wire.InvVect {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	filtered := inv[:0]
	for _, entry := range inv {
		if entry.Type == wire.InvTypeBlock {
			if _, ok := p.entries[entry.Hash]; ok {
				continue
			}
		}
		filtered = append(filtered, entry)
	}
	return filtered
}
