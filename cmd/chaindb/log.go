// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/blockchain"
	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database"
	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// logWriter implements an io.Writer that outputs to both standard
// output and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.  The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences
	// will occur.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log      = backendLog.Logger("MAIN")
	dbLog    = backendLog.Logger("DTBS")
	chainLog = backendLog.Logger("CHAN")
)

func init() {
	database.UseLogger(dbLog)
	mmstore.UseLogger(dbLog)
	blockchain.UseLogger(chainLog)
}

// initLogRotator initializes the logging rotator to write logs to
// logFile and create roll files in the same directory.  It must be
// called before the package-global log rotator variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevels sets the log level for all subsystem loggers.
func setLogLevels(levelName string) error {
	level, ok := btclog.LevelFromString(levelName)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelName)
	}
	for _, logger := range []btclog.Logger{log, dbLog, chainLog} {
		logger.SetLevel(level)
	}
	return nil
}
