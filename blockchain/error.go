// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of block-processing error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrServiceStopped indicates the chain is shutting down and the
	// operation was abandoned.
	ErrServiceStopped ErrorCode = iota

	// ErrDuplicateBlock indicates a block with the same hash is already
	// on the chain or in the pool.
	ErrDuplicateBlock

	// ErrOrphanBlock indicates the block does not connect to the chain
	// through the pool.  The block is retained for a future parent.
	ErrOrphanBlock

	// ErrInsufficientWork indicates the block's branch does not
	// accumulate more work than the confirmed chain above the fork.
	ErrInsufficientWork

	// ErrOperationFailed indicates an unexpected store invariant break.
	ErrOperationFailed

	// -------------------------------------------------------------------
	// Context-free check failures.

	// ErrSizeLimits indicates the block has no transactions or its
	// serialization exceeds the maximum block size.
	ErrSizeLimits

	// ErrProofOfWork indicates the header hash does not satisfy its
	// claimed target, or the target itself is out of range.
	ErrProofOfWork

	// ErrFuturisticTimestamp indicates the header timestamp is more
	// than two hours in the future.
	ErrFuturisticTimestamp

	// ErrFirstNotCoinbase indicates the first transaction is not a
	// coinbase.
	ErrFirstNotCoinbase

	// ErrExtraCoinbases indicates a transaction after the first is a
	// coinbase.
	ErrExtraCoinbases

	// ErrDuplicateTransaction indicates two transactions in the block
	// share a hash.
	ErrDuplicateTransaction

	// ErrTooManySigs indicates the block exceeds the signature
	// operation limit.
	ErrTooManySigs

	// ErrMerkleMismatch indicates the header merkle root does not match
	// the transactions.
	ErrMerkleMismatch

	// ErrEmptyTransaction indicates a transaction has no inputs or no
	// outputs.
	ErrEmptyTransaction

	// ErrOutputValueOverflow indicates a transaction's outputs exceed
	// the maximum money supply.
	ErrOutputValueOverflow

	// ErrInvalidCoinbaseScriptSize indicates a coinbase input script
	// outside the 2 to 100 byte range.
	ErrInvalidCoinbaseScriptSize

	// ErrPreviousOutputNull indicates a non-coinbase input with a null
	// previous outpoint.
	ErrPreviousOutputNull

	// -------------------------------------------------------------------
	// Accept (height-dependent) failures.

	// ErrIncorrectProofOfWork indicates the header bits do not match
	// the required difficulty for the height.
	ErrIncorrectProofOfWork

	// ErrTimestampTooEarly indicates the timestamp is not after the
	// median of the previous eleven blocks.
	ErrTimestampTooEarly

	// ErrNonFinalTransaction indicates a transaction is not final at
	// the block's height and timestamp.
	ErrNonFinalTransaction

	// ErrCheckpointsFailed indicates the block contradicts a configured
	// checkpoint.
	ErrCheckpointsFailed

	// ErrOldVersionBlock indicates a version 1 block after the version
	// switchover height.
	ErrOldVersionBlock

	// ErrCoinbaseHeightMismatch indicates a version 2 block whose
	// coinbase script does not begin with the serialized height.
	ErrCoinbaseHeightMismatch

	// -------------------------------------------------------------------
	// Connect (prevout-dependent) failures.

	// ErrDuplicateOrSpent indicates a transaction hash that already
	// exists with unspent outputs (BIP30).
	ErrDuplicateOrSpent

	// ErrValidateInputsFailed indicates a transaction's inputs failed
	// validation.
	ErrValidateInputsFailed

	// ErrInputNotFound indicates a referenced previous output does not
	// exist.
	ErrInputNotFound

	// ErrCoinbaseMaturity indicates a spend of a coinbase output before
	// it matured.
	ErrCoinbaseMaturity

	// ErrDoubleSpend indicates an input spends an outpoint already
	// spent.
	ErrDoubleSpend

	// ErrSpendExceedsValue indicates input value accumulation exceeded
	// the maximum money supply.
	ErrSpendExceedsValue

	// ErrFeesOutOfRange indicates a transaction's fee tally is
	// negative or overflows.
	ErrFeesOutOfRange

	// ErrCoinbaseTooLarge indicates the coinbase claims more than the
	// subsidy plus fees.
	ErrCoinbaseTooLarge

	// ErrScriptValidation indicates an input script failed consensus
	// verification.
	ErrScriptValidation
)

// Map of ErrorCode values back to their constant names for pretty
// printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrServiceStopped:            "ErrServiceStopped",
	ErrDuplicateBlock:            "ErrDuplicateBlock",
	ErrOrphanBlock:               "ErrOrphanBlock",
	ErrInsufficientWork:          "ErrInsufficientWork",
	ErrOperationFailed:           "ErrOperationFailed",
	ErrSizeLimits:                "ErrSizeLimits",
	ErrProofOfWork:               "ErrProofOfWork",
	ErrFuturisticTimestamp:       "ErrFuturisticTimestamp",
	ErrFirstNotCoinbase:          "ErrFirstNotCoinbase",
	ErrExtraCoinbases:            "ErrExtraCoinbases",
	ErrDuplicateTransaction:      "ErrDuplicateTransaction",
	ErrTooManySigs:               "ErrTooManySigs",
	ErrMerkleMismatch:            "ErrMerkleMismatch",
	ErrEmptyTransaction:          "ErrEmptyTransaction",
	ErrOutputValueOverflow:       "ErrOutputValueOverflow",
	ErrInvalidCoinbaseScriptSize: "ErrInvalidCoinbaseScriptSize",
	ErrPreviousOutputNull:        "ErrPreviousOutputNull",
	ErrIncorrectProofOfWork:      "ErrIncorrectProofOfWork",
	ErrTimestampTooEarly:         "ErrTimestampTooEarly",
	ErrNonFinalTransaction:       "ErrNonFinalTransaction",
	ErrCheckpointsFailed:         "ErrCheckpointsFailed",
	ErrOldVersionBlock:           "ErrOldVersionBlock",
	ErrCoinbaseHeightMismatch:    "ErrCoinbaseHeightMismatch",
	ErrDuplicateOrSpent:          "ErrDuplicateOrSpent",
	ErrValidateInputsFailed:      "ErrValidateInputsFailed",
	ErrInputNotFound:             "ErrInputNotFound",
	ErrCoinbaseMaturity:          "ErrCoinbaseMaturity",
	ErrDoubleSpend:               "ErrDoubleSpend",
	ErrSpendExceedsValue:         "ErrSpendExceedsValue",
	ErrFeesOutOfRange:            "ErrFeesOutOfRange",
	ErrCoinbaseTooLarge:          "ErrCoinbaseTooLarge",
	ErrScriptValidation:          "ErrScriptValidation",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block failed due to one of the many validation rules.
// The caller can use type assertions to detect a failure and access the
// ErrorCode to discriminate between rules.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) error {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsRuleError returns whether err is a RuleError with the given code.
func IsRuleError(err error, code ErrorCode) bool {
	var ruleErr RuleError
	return errors.As(err, &ruleErr) && ruleErr.ErrorCode == code
}
