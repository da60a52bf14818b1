// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"errors"

	"github.com/libbitcoin/libbitcoin-blockchain-sub000/database/mmstore"
)

// ErrorCode identifies a kind of database error.
type ErrorCode int

// These constants are used to identify a specific database Error.
const (
	// ErrNotFound indicates a requested entry does not exist.
	ErrNotFound ErrorCode = iota

	// ErrEmptyChain indicates an operation that requires at least one
	// stored block was attempted on an empty store.
	ErrEmptyChain

	// ErrBusy indicates the store directory is locked by another
	// process.
	ErrBusy

	// ErrCorruption indicates a structural invariant of the store does
	// not hold.  The store must be treated as unusable.
	ErrCorruption

	// ErrStoreFailed indicates an unexpected internal failure such as a
	// missing record that a prior existence check guaranteed.  Callers
	// should surface it; the store is considered corrupt.
	ErrStoreFailed
)

// Map of ErrorCode values back to their constant names for pretty
// printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrNotFound:    "ErrNotFound",
	ErrEmptyChain:  "ErrEmptyChain",
	ErrBusy:        "ErrBusy",
	ErrCorruption:  "ErrCorruption",
	ErrStoreFailed: "ErrStoreFailed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return "Unknown ErrorCode"
}

// Error provides a single type for errors that can occur in the
// database.  It is used to indicate several types of failures including
// errors with caller requests such as missing entries as well as
// corruption of the store itself.
type Error struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// IsNotFound returns whether err is a database Error with ErrNotFound.
func IsNotFound(err error) bool {
	var dbErr Error
	return errors.As(err, &dbErr) && dbErr.ErrorCode == ErrNotFound
}

// convertStoreErr maps low-level mmstore failures onto database error
// codes.  Chain self-links and header mismatches are corruption;
// anything else is an unexpected store failure.
func convertStoreErr(desc string, err error) Error {
	if errors.Is(err, mmstore.ErrCorruption) {
		return makeError(ErrCorruption, desc, err)
	}
	return makeError(ErrStoreFailed, desc, err)
}
