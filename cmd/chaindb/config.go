// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const defaultLogFilename = "chaindb.log"

var defaultDataDir = btcutil.AppDataDir("chaindb", false)

// config defines the configuration options for chaindb.
//
// See loadConfig for details on the configuration load process.
type config struct {
	DataDir            string `short:"b" long:"datadir" description:"Directory containing the chain database files"`
	TestNet            bool   `long:"testnet" description:"Use the test network rules and parameters"`
	DebugLevel         string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	HistoryStartHeight int32  `long:"historystart" description:"Height below which address history rows are not indexed"`
	StealthStartHeight int32  `long:"stealthstart" description:"Height below which stealth rows are not indexed"`
}

// loadConfig initializes and parses the config using command line
// options.
func loadConfig() (*config, []string, *chaincfg.Params, error) {
	cfg := config{
		DataDir:    defaultDataDir,
		DebugLevel: "info",
	}

	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] <command> [args]\n\n" +
		"Commands:\n" +
		"  init                 create a new store seeded with the genesis block\n" +
		"  top                  print the confirmed chain top\n" +
		"  block <height|hash>  print a confirmed block's summary\n" +
		"  tx <hash>            print a confirmed transaction's location\n" +
		"  locator              print the chain's block locator"
	remaining, err := parser.Parse()
	if err != nil {
		return nil, nil, nil, err
	}

	params := &chaincfg.MainNetParams
	if cfg.TestNet {
		params = &chaincfg.TestNet3Params
		cfg.DataDir = filepath.Join(cfg.DataDir, "testnet")
	}

	if len(remaining) == 0 {
		fmt.Fprintln(os.Stderr, "no command specified")
		parser.WriteHelp(os.Stderr)
		return nil, nil, nil, fmt.Errorf("no command specified")
	}

	return &cfg, remaining, params, nil
}
