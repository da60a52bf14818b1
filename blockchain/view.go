// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
)

// Difficulty retargeting parameters (mainnet and testnet share them;
// testnet adds the twenty-minute relaxation).
const (
	// targetTimespan is the retarget window in seconds (two weeks).
	targetTimespan = 14 * 24 * 60 * 60

	// targetSpacing is the target seconds between blocks.
	targetSpacing = 10 * 60

	// retargetInterval is the number of blocks between difficulty
	// adjustments.
	retargetInterval = targetTimespan / targetSpacing
)

// branchTx locates a transaction inside a branch overlay.
type branchTx struct {
	tx     *wire.MsgTx
	height int32
}

// branchView resolves chain state for validation: header, transaction,
// and spend lookups above the fork point go through the branch being
// validated, while lookups at or below the fork resolve through the
// persistent store.  Persistent data above the fork belongs to the
// chain being competed against and is invisible.
type branchView struct {
	store  *database.Store
	branch *branch
	params *chaincfg.Params

	// txs indexes the transactions of already-connected branch blocks
	// plus earlier transactions of the block currently connecting.
	txs map[chainhash.Hash]branchTx

	// spent tracks outpoints consumed by the branch so far.
	spent map[wire.OutPoint]struct{}
}

func newBranchView(store *database.Store, branch *branch,
	params *chaincfg.Params) *branchView {

	return &branchView{
		store:  store,
		branch: branch,
		params: params,
		txs:    make(map[chainhash.Hash]branchTx),
		spent:  make(map[wire.OutPoint]struct{}),
	}
}

// header returns the block header at the given height, resolving above
// the fork through the branch.
func (v *branchView) header(height int32) (*wire.BlockHeader, error) {
	if height > v.branch.forkHeight {
		index := int(height - v.branch.forkHeight - 1)
		if index >= v.branch.size() {
			return nil, ruleError(ErrOperationFailed, "header height above branch top")
		}
		header := v.branch.blocks[index].MsgBlock().Header
		return &header, nil
	}
	return v.store.Header(height)
}

// bits returns the difficulty bits of the block at the given height.
func (v *branchView) bits(height int32) (uint32, error) {
	header, err := v.header(height)
	if err != nil {
		return 0, err
	}
	return header.Bits, nil
}

// timestamp returns the timestamp of the block at the given height.
func (v *branchView) timestamp(height int32) (time.Time, error) {
	header, err := v.header(height)
	if err != nil {
		return time.Time{}, err
	}
	return header.Timestamp, nil
}

// medianTimePast returns the median timestamp of the eleven blocks
// preceding the given height.
func (v *branchView) medianTimePast(height int32) (time.Time, error) {
	timestamps := make([]int64, 0, medianTimeBlocks)
	for i := int32(0); i < medianTimeBlocks && height-1-i >= 0; i++ {
		timestamp, err := v.timestamp(height - 1 - i)
		if err != nil {
			return time.Time{}, err
		}
		timestamps = append(timestamps, timestamp.Unix())
	}
	if len(timestamps) == 0 {
		return time.Time{}, nil
	}

	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})
	return time.Unix(timestamps[len(timestamps)/2], 0), nil
}

// workRequired computes the difficulty bits required of the block at
// the given height with the given timestamp.
func (v *branchView) workRequired(height int32, timestamp time.Time,
	testNet bool) (uint32, error) {

	powLimitBits := BigToCompact(v.params.PowLimit)
	if height == 0 {
		return powLimitBits, nil
	}

	if height%retargetInterval != 0 {
		if testNet {
			// The testnet twenty-minute rule: a block more than twice
			// the target spacing after its parent may use the minimum
			// difficulty.
			parentTime, err := v.timestamp(height - 1)
			if err != nil {
				return 0, err
			}
			if timestamp.After(parentTime.Add(2 * targetSpacing * time.Second)) {
				return powLimitBits, nil
			}

			// Otherwise the difficulty is the last non-minimum value,
			// or the last retarget value when every block since was
			// minimum difficulty.
			return v.lastNonMinimumBits(height - 1)
		}
		return v.bits(height - 1)
	}

	// Retarget boundary: scale the previous difficulty by the clamped
	// ratio of actual to target timespan over the last interval.
	firstTime, err := v.timestamp(height - retargetInterval)
	if err != nil {
		return 0, err
	}
	lastTime, err := v.timestamp(height - 1)
	if err != nil {
		return 0, err
	}

	actual := lastTime.Unix() - firstTime.Unix()
	if actual < targetTimespan/4 {
		actual = targetTimespan / 4
	}
	if actual > targetTimespan*4 {
		actual = targetTimespan * 4
	}

	previousBits, err := v.bits(height - 1)
	if err != nil {
		return 0, err
	}
	newTarget := CompactToBig(previousBits)
	newTarget.Mul(newTarget, big.NewInt(actual))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))
	if newTarget.Cmp(v.params.PowLimit) > 0 {
		newTarget.Set(v.params.PowLimit)
	}
	return BigToCompact(newTarget), nil
}

// lastNonMinimumBits walks backwards from the given height to the most
// recent block whose difficulty is not the minimum, stopping at the
// last retarget boundary.
func (v *branchView) lastNonMinimumBits(height int32) (uint32, error) {
	powLimitBits := BigToCompact(v.params.PowLimit)
	for height > 0 && height%retargetInterval != 0 {
		bits, err := v.bits(height)
		if err != nil {
			return 0, err
		}
		if bits != powLimitBits {
			return bits, nil
		}
		height--
	}
	return v.bits(height)
}

// fetchTransaction finds the named transaction in the branch overlay or
// the persistent chain at or below the fork point.
func (v *branchView) fetchTransaction(hash *chainhash.Hash) (*wire.MsgTx, int32, bool) {
	if entry, ok := v.txs[*hash]; ok {
		return entry.tx, entry.height, true
	}

	result, err := v.store.Transaction(hash)
	if err != nil || result.Height > v.branch.forkHeight {
		return nil, 0, false
	}
	return result.Tx, result.Height, true
}

// isSpent reports whether the outpoint was consumed by the branch or by
// the persistent chain at or below the fork point.
func (v *branchView) isSpent(outpoint *wire.OutPoint) bool {
	if _, ok := v.spent[*outpoint]; ok {
		return true
	}

	inpoint, err := v.store.Spend(outpoint)
	if err != nil {
		return false
	}

	// The spend table carries no heights, so resolve the spender
	// transaction; a spender above the fork belongs to the competing
	// chain and does not count.
	result, err := v.store.Transaction(&inpoint.Hash)
	if err != nil {
		return false
	}
	return result.Height <= v.branch.forkHeight
}

// connect folds a validated block's transactions and spends into the
// overlay so later branch blocks resolve against them.
func (v *branchView) connect(block *btcutil.Block, height int32) {
	for _, tx := range block.Transactions() {
		msgTx := tx.MsgTx()
		v.txs[*tx.Hash()] = branchTx{tx: msgTx, height: height}
		if IsCoinBaseTx(msgTx) {
			continue
		}
		for _, txIn := range msgTx.TxIn {
			v.spent[txIn.PreviousOutPoint] = struct{}{}
		}
	}
}
