// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestGenesisOnly initializes a store with the mainnet genesis block and
// checks the resulting state.
func TestGenesisOnly(t *testing.T) {
	store := testStore(t, nil)

	top, err := store.FetchTop()
	require.NoError(t, err)
	require.Equal(t, int32(0), top)

	hash, err := store.FetchBlockHash(0)
	require.NoError(t, err)
	require.Equal(t, *chaincfg.MainNetParams.GenesisHash, *hash)

	// The genesis coinbase is in the transaction table.
	coinbaseHash := chaincfg.MainNetParams.GenesisBlock.Transactions[0].TxHash()
	result, err := store.FetchTransaction(&coinbaseHash)
	require.NoError(t, err)
	require.Equal(t, int32(0), result.Height)
	require.Equal(t, uint32(0), result.Index)
	require.Equal(t, coinbaseHash, result.Tx.TxHash())
}

// TestPushPopRoundTrip pushes two blocks with a spend between them and
// verifies pop restores every table to its prior state.
func TestPushPopRoundTrip(t *testing.T) {
	opts := testOptions()
	opts.HistoryStartHeight = 0
	store := testStore(t, opts)

	pubKey := testPubKey(5)
	addrHash := btcutil.Hash160(pubKey)
	pkScript := p2pkhScript(t, addrHash)

	// Block 1: a coinbase paying the address.
	cb1 := makeCoinbaseTx(t, 1, 50e8, pkScript)
	genesisHash := chaincfg.MainNetParams.GenesisHash
	block1 := makeBlock(genesisHash, 1, []*wire.MsgTx{cb1})
	require.NoError(t, store.PushBlock(block1))

	history, err := store.FetchHistory(addrHash, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, PointOutput, history[0].Kind)
	require.Equal(t, uint64(50e8), HistoryBalance(history))

	// Block 2: a coinbase plus a transaction spending block 1's output
	// back to the same address.
	cb2 := makeCoinbaseTx(t, 2, 50e8, p2pkhScript(t, btcutil.Hash160(testPubKey(6))))
	prev := wire.OutPoint{Hash: cb1.TxHash(), Index: 0}
	spend := makeSpendTx(&prev, p2pkhSigScript(t, pubKey), 50e8, pkScript)
	block2 := makeBlock(block1.Hash(), 2, []*wire.MsgTx{cb2, spend})
	require.NoError(t, store.PushBlock(block2))

	// The spend table maps the outpoint to the consuming inpoint.
	inpoint, err := store.FetchSpend(&prev)
	require.NoError(t, err)
	require.Equal(t, spend.TxHash(), inpoint.Hash)
	require.Equal(t, uint32(0), inpoint.Index)

	// The address saw: output(1), spend(2), output(2) - newest first.
	history, err = store.FetchHistory(addrHash, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, PointOutput, history[0].Kind)
	require.Equal(t, int32(2), history[0].Height)
	require.Equal(t, PointSpend, history[1].Kind)

	// The spend row's value field is the spent outpoint's checksum.
	require.Equal(t, PointChecksum(&prev), history[1].Value)
	require.Equal(t, uint64(50e8), HistoryBalance(history))

	// Pop block 2 and verify the state matches the post-block-1 state.
	popped, err := store.PopBlock()
	require.NoError(t, err)
	require.Equal(t, *block2.Hash(), *popped.Hash())
	require.Len(t, popped.Transactions(), 2)

	top, err := store.FetchTop()
	require.NoError(t, err)
	require.Equal(t, int32(1), top)

	_, err = store.FetchSpend(&prev)
	require.True(t, IsNotFound(err))

	spendHash := spend.TxHash()
	_, err = store.FetchTransaction(&spendHash)
	require.True(t, IsNotFound(err))

	history, err = store.FetchHistory(addrHash, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, int32(1), history[0].Height)

	// And pop block 1 back to genesis.
	popped, err = store.PopBlock()
	require.NoError(t, err)
	require.Equal(t, *block1.Hash(), *popped.Hash())

	top, err = store.FetchTop()
	require.NoError(t, err)
	require.Equal(t, int32(0), top)

	history, err = store.FetchHistory(addrHash, 0, 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

// TestStoreReopen verifies that pushed state survives a close/reopen
// cycle.
func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()
	genesis := btcutil.NewBlock(chaincfg.MainNetParams.GenesisBlock)
	store, err := Initialize(dir, &chaincfg.MainNetParams, testOptions(), genesis)
	require.NoError(t, err)

	cb1 := makeCoinbaseTx(t, 1, 50e8, p2pkhScript(t, btcutil.Hash160(testPubKey(1))))
	block1 := makeBlock(chaincfg.MainNetParams.GenesisHash, 1, []*wire.MsgTx{cb1})
	require.NoError(t, store.PushBlock(block1))
	require.NoError(t, store.Close())

	store, err = NewStore(dir, &chaincfg.MainNetParams, testOptions())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Start())

	top, err := store.FetchTop()
	require.NoError(t, err)
	require.Equal(t, int32(1), top)

	hash, err := store.FetchBlockHash(1)
	require.NoError(t, err)
	require.Equal(t, *block1.Hash(), *hash)

	block, err := store.FetchBlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, *block1.Hash(), *block.Hash())
}

// TestStoreLocking verifies the directory lock refuses a second opener.
func TestStoreLocking(t *testing.T) {
	dir := t.TempDir()
	genesis := btcutil.NewBlock(chaincfg.MainNetParams.GenesisBlock)
	store, err := Initialize(dir, &chaincfg.MainNetParams, testOptions(), genesis)
	require.NoError(t, err)
	defer store.Close()

	second, err := NewStore(dir, &chaincfg.MainNetParams, testOptions())
	require.NoError(t, err)
	err = second.Start()
	var dbErr Error
	require.ErrorAs(t, err, &dbErr)
	require.Equal(t, ErrBusy, dbErr.ErrorCode)
}

// TestBIP30Replay verifies that an excepted block's duplicate coinbase
// neither overwrites the earlier transaction on push nor removes it on
// pop.
func TestBIP30Replay(t *testing.T) {
	// Build the chain first so the exception can name the real hash.
	pkScript := p2pkhScript(t, btcutil.Hash160(testPubKey(9)))
	duplicateCb := makeCoinbaseTx(t, 1, 50e8, pkScript)

	genesisHash := chaincfg.MainNetParams.GenesisHash
	block1 := makeBlock(genesisHash, 1, []*wire.MsgTx{duplicateCb})

	// Block 2 re-uses block 1's coinbase transaction verbatim.
	block2 := makeBlock(block1.Hash(), 2, []*wire.MsgTx{duplicateCb})

	opts := testOptions()
	opts.BIP30Exceptions = []chaincfg.Checkpoint{
		{Height: 2, Hash: block2.Hash()},
	}
	store := testStore(t, opts)

	require.NoError(t, store.PushBlock(block1))
	require.NoError(t, store.PushBlock(block2))

	// The earlier transaction remains authoritative.
	cbHash := duplicateCb.TxHash()
	result, err := store.FetchTransaction(&cbHash)
	require.NoError(t, err)
	require.Equal(t, int32(1), result.Height)

	// Popping the excepted block must not remove the earlier tx.
	popped, err := store.PopBlock()
	require.NoError(t, err)
	require.Equal(t, *block2.Hash(), *popped.Hash())
	require.Len(t, popped.Transactions(), 1)

	result, err = store.FetchTransaction(&cbHash)
	require.NoError(t, err)
	require.Equal(t, int32(1), result.Height)
}

// TestStealthRows pushes a block containing a stealth output pair and
// verifies scan and unlink behavior.
func TestStealthRows(t *testing.T) {
	opts := testOptions()
	store := testStore(t, opts)

	// Ephemeral key with a recognizable prefix.
	ephemeral := make([]byte, 32)
	for i := range ephemeral {
		ephemeral[i] = 0xa0 + byte(i)
	}
	markerScript := append([]byte{0x6a, 0x20}, ephemeral...) // OP_RETURN PUSH32

	addrHash := btcutil.Hash160(testPubKey(3))
	payScript := p2pkhScript(t, addrHash)

	cb := makeCoinbaseTx(t, 1, 50e8, p2pkhScript(t, btcutil.Hash160(testPubKey(4))))
	stealthTx := wire.NewMsgTx(1)
	stealthTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: cb.TxHash(), Index: 0},
		SignatureScript:  p2pkhSigScript(t, testPubKey(4)),
		Sequence:         wire.MaxTxInSequenceNum,
	})
	stealthTx.AddTxOut(wire.NewTxOut(0, markerScript))
	stealthTx.AddTxOut(wire.NewTxOut(49e8, payScript))

	block1 := makeBlock(chaincfg.MainNetParams.GenesisHash, 1,
		[]*wire.MsgTx{cb, stealthTx})
	require.NoError(t, store.PushBlock(block1))

	var row StealthRow
	copy(row.Ephemeral[:], ephemeral)
	prefix := row.Prefix()

	rows, err := store.FetchStealth(prefix, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, stealthTx.TxHash(), rows[0].TxHash)
	require.Equal(t, addrHash, rows[0].AddressHash[:])

	// Scans beginning above the block see nothing.
	rows, err = store.FetchStealth(prefix, 2)
	require.NoError(t, err)
	require.Empty(t, rows)

	// Unlink via pop discards the block's rows.
	_, err = store.PopBlock()
	require.NoError(t, err)

	rows, err = store.FetchStealth(prefix, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

// TestBlockLocator checks the thinning shape of the locator and the
// walk-forward query it feeds.
func TestBlockLocator(t *testing.T) {
	store := testStore(t, nil)

	prev := *chaincfg.MainNetParams.GenesisHash
	blocks := make([]*btcutil.Block, 0, 24)
	for height := int32(1); height <= 24; height++ {
		cb := makeCoinbaseTx(t, height, 50e8,
			p2pkhScript(t, btcutil.Hash160(testPubKey(byte(height)))))
		block := makeBlock(&prev, height, []*wire.MsgTx{cb})
		require.NoError(t, store.PushBlock(block))
		blocks = append(blocks, block)
		prev = *block.Hash()
	}

	locator, err := store.BlockLocator()
	require.NoError(t, err)
	// The last ten heights singly, then doubling steps, then genesis.
	require.Equal(t, *blocks[23].Hash(), locator[0])
	require.Equal(t, *chaincfg.MainNetParams.GenesisHash,
		locator[len(locator)-1])
	require.Greater(t, len(locator), 10)
	require.Less(t, len(locator), 24)

	// A locator naming block 20 yields the hashes above it.
	after, err := store.LocatorBlockHashes(
		[]chainhash.Hash{*blocks[19].Hash()}, nil, 0)
	require.NoError(t, err)
	require.Len(t, after, 4)
	require.Equal(t, *blocks[20].Hash(), after[0])
	require.Equal(t, *blocks[23].Hash(), after[3])
}
