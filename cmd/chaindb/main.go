// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
)

func main() {
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}

func realMain() error {
	cfg, args, params, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogRotator(filepath.Join(cfg.DataDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logRotator.Close()

	if err := setLogLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	command, args := args[0], args[1:]
	opts := &database.Options{
		HistoryStartHeight: cfg.HistoryStartHeight,
		StealthStartHeight: cfg.StealthStartHeight,
	}

	if command == "init" {
		return initStore(cfg, params, opts)
	}

	store, err := database.NewStore(cfg.DataDir, params, opts)
	if err != nil {
		log.Errorf("Unable to open store: %v", err)
		return err
	}
	defer store.Close()
	if err := store.Start(); err != nil {
		log.Errorf("Unable to start store: %v", err)
		return err
	}

	switch command {
	case "top":
		return printTop(store)
	case "block":
		if len(args) != 1 {
			return fmt.Errorf("block requires a height or hash argument")
		}
		return printBlock(store, args[0])
	case "tx":
		if len(args) != 1 {
			return fmt.Errorf("tx requires a hash argument")
		}
		return printTx(store, args[0])
	case "locator":
		return printLocator(store)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func initStore(cfg *config, params *chaincfg.Params, opts *database.Options) error {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Errorf("Unable to create data directory: %v", err)
		return err
	}

	genesis := btcutil.NewBlock(params.GenesisBlock)
	store, err := database.Initialize(cfg.DataDir, params, opts, genesis)
	if err != nil {
		log.Errorf("Unable to initialize store: %v", err)
		return err
	}
	defer store.Close()

	log.Infof("Initialized store in %s with genesis %v", cfg.DataDir,
		params.GenesisHash)
	return nil
}

func printTop(store *database.Store) error {
	height, err := store.FetchTop()
	if err != nil {
		log.Errorf("Unable to fetch top: %v", err)
		return err
	}
	hash, err := store.FetchBlockHash(height)
	if err != nil {
		log.Errorf("Unable to fetch top hash: %v", err)
		return err
	}
	fmt.Printf("height %d hash %v\n", height, hash)
	return nil
}

func printBlock(store *database.Store, arg string) error {
	var header *headerSummary
	if height, err := strconv.ParseInt(arg, 10, 32); err == nil {
		blockHeader, err := store.FetchBlockHeaderByHeight(int32(height))
		if err != nil {
			log.Errorf("Unable to fetch block %d: %v", height, err)
			return err
		}
		header = summarize(blockHeader, int32(height))
	} else {
		hash, err := chainhash.NewHashFromStr(arg)
		if err != nil {
			return fmt.Errorf("invalid block height or hash %q", arg)
		}
		blockHeader, height, err := store.FetchBlockHeaderByHash(hash)
		if err != nil {
			log.Errorf("Unable to fetch block %v: %v", hash, err)
			return err
		}
		header = summarize(blockHeader, height)
	}

	fmt.Printf("height    %d\nhash      %v\nprevious  %v\nmerkle    %v\n"+
		"time      %v\nbits      %08x\nnonce     %d\n",
		header.height, header.hash, header.previous, header.merkle,
		header.timestamp, header.bits, header.nonce)
	return nil
}

type headerSummary struct {
	height    int32
	hash      chainhash.Hash
	previous  chainhash.Hash
	merkle    chainhash.Hash
	timestamp string
	bits      uint32
	nonce     uint32
}

func summarize(header *wire.BlockHeader, height int32) *headerSummary {
	return &headerSummary{
		height:    height,
		hash:      header.BlockHash(),
		previous:  header.PrevBlock,
		merkle:    header.MerkleRoot,
		timestamp: header.Timestamp.String(),
		bits:      header.Bits,
		nonce:     header.Nonce,
	}
}

func printTx(store *database.Store, arg string) error {
	hash, err := chainhash.NewHashFromStr(arg)
	if err != nil {
		return fmt.Errorf("invalid transaction hash %q", arg)
	}
	result, err := store.FetchTransaction(hash)
	if err != nil {
		log.Errorf("Unable to fetch transaction %v: %v", hash, err)
		return err
	}
	fmt.Printf("hash %v height %d index %d inputs %d outputs %d\n", hash,
		result.Height, result.Index, len(result.Tx.TxIn), len(result.Tx.TxOut))
	return nil
}

func printLocator(store *database.Store) error {
	locator, err := store.BlockLocator()
	if err != nil {
		log.Errorf("Unable to build locator: %v", err)
		return err
	}
	for _, hash := range locator {
		fmt.Println(hash)
	}
	return nil
}
