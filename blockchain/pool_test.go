// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// newPoolBlock builds an unsolved block for pool tests; the pool never
// validates.
func newPoolBlock(prev *chainhash.Hash, height int32, nonce uint32) *btcutil.Block {
	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: *prev,
			Timestamp: time.Unix(1300000000+int64(height)*600, 0),
			Bits:      0x207fffff,
			Nonce:     nonce,
		},
		Transactions: []*wire.MsgTx{wire.NewMsgTx(1)},
	}
	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(height)
	return block
}

// newPoolChain builds a chain of length blocks rooted at an arbitrary
// unknown parent.
func newPoolChain(length int, seed uint32) []*btcutil.Block {
	root := chainhash.Hash{0xde, 0xad, byte(seed)}
	prev := &root
	blocks := make([]*btcutil.Block, 0, length)
	for i := 0; i < length; i++ {
		block := newPoolBlock(prev, int32(i+1), seed)
		blocks = append(blocks, block)
		prev = block.Hash()
	}
	return blocks
}

func TestPoolAddRemove(t *testing.T) {
	pool := NewBlockPool(0)
	blocks := newPoolChain(3, 1)

	for i, block := range blocks {
		require.True(t, pool.Add(block, int32(i+1)))
	}
	require.False(t, pool.Add(blocks[0], 1), "duplicate add must fail")
	require.Equal(t, 3, pool.Size())

	pool.Remove(blocks[:1])
	require.Equal(t, 2, pool.Size())
	require.False(t, pool.Exists(blocks[0].Hash()))
	require.True(t, pool.Exists(blocks[1].Hash()))
}

func TestPoolTrace(t *testing.T) {
	pool := NewBlockPool(0)
	blocks := newPoolChain(4, 2)

	// Insert out of order; trace still finds the full path.
	for _, i := range []int{2, 0, 1} {
		require.True(t, pool.Add(blocks[i], unknownHeight))
	}

	path := pool.Trace(blocks[3])
	require.Len(t, path, 4)
	for i, block := range blocks {
		require.Equal(t, *block.Hash(), *path[i].Hash())
	}

	// A block with no pooled ancestry traces to itself.
	lone := newPoolBlock(&chainhash.Hash{0x01}, 9, 7)
	require.Equal(t, 1, len(pool.Trace(lone)))
}

// TestPoolHeightPropagation verifies unknown heights resolve when an
// ancestor with a known height arrives.
func TestPoolHeightPropagation(t *testing.T) {
	pool := NewBlockPool(0)
	blocks := newPoolChain(3, 3)

	// Children first, with unknown heights.
	require.True(t, pool.Add(blocks[1], unknownHeight))
	require.True(t, pool.Add(blocks[2], unknownHeight))
	require.Equal(t, unknownHeight, pool.entries[*blocks[2].Hash()].height)

	// The root arrives with a known height and resolves the rest.
	require.True(t, pool.Add(blocks[0], 5))
	require.Equal(t, int32(6), pool.entries[*blocks[1].Hash()].height)
	require.Equal(t, int32(7), pool.entries[*blocks[2].Hash()].height)
}

// TestPoolPrune inserts fifteen chained blocks and prunes with a depth
// of ten, leaving only the blocks within depth of the top.
func TestPoolPrune(t *testing.T) {
	pool := NewBlockPool(10)
	blocks := newPoolChain(15, 4)

	for i, block := range blocks {
		require.True(t, pool.Add(block, int32(i+1)))
	}
	require.Equal(t, 15, pool.Size())

	// Entries below top - depth are discarded, the rest retained.
	pool.Prune(15)
	require.Equal(t, 11, pool.Size())
	for i, block := range blocks {
		height := int32(i + 1)
		if height < 15-10 {
			require.False(t, pool.Exists(block.Hash()),
				"height %d should be pruned", height)
		} else {
			require.True(t, pool.Exists(block.Hash()),
				"height %d should be retained", height)
		}
	}

	// The surviving subtree root is replanted: tracing from the tip
	// stops at the new root.
	path := pool.Trace(blocks[14])
	require.Len(t, path, 11)
	require.Equal(t, *blocks[4].Hash(), *path[0].Hash())
}

func TestPoolPruneKeepsUnknownHeights(t *testing.T) {
	pool := NewBlockPool(5)
	lone := newPoolBlock(&chainhash.Hash{0x44}, 0, 9)
	require.True(t, pool.Add(lone, unknownHeight))

	pool.Prune(1000)
	require.True(t, pool.Exists(lone.Hash()))
}

func TestPoolFilter(t *testing.T) {
	pool := NewBlockPool(0)
	blocks := newPoolChain(2, 5)
	require.True(t, pool.Add(blocks[0], 1))

	pooledInv := wire.NewInvVect(wire.InvTypeBlock, blocks[0].Hash())
	freshInv := wire.NewInvVect(wire.InvTypeBlock, blocks[1].Hash())
	txInv := wire.NewInvVect(wire.InvTypeTx, blocks[0].Hash())

	filtered := pool.Filter([]*wire.InvVect{pooledInv, freshInv, txInv})
	require.Equal(t, []*wire.InvVect{freshInv, txInv}, filtered)
}
