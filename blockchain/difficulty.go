// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// oneLsh256 is 1 shifted left 256 bits.  It is defined here to
	// avoid the overhead of creating it multiple times.
	oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

	// bigOne is 1 represented as a big.Int.
	bigOne = big.NewInt(1)
)

// HashToBig converts a chainhash.Hash into a big.Int that can be used to
// perform math comparisons.
func HashToBig(hash *chainhash.Hash) *big.Int {
	// A Hash is in little-endian, but the big package wants the bytes
	// in big-endian, so reverse them.
	buf := *hash
	blen := len(buf)
	for i := 0; i < blen/2; i++ {
		buf[i], buf[blen-1-i] = buf[blen-1-i], buf[i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// CompactToBig converts a compact representation of a whole number N,
// packed into an unsigned 32-bit number, to a big integer.  The
// representation is similar to IEEE754
// floating point:
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// The sign bit has no meaning for difficulty targets but is honored so
// out-of-range encodings round-trip.
func CompactToBig(compact uint32) *big.Int {
	// Extract the mantissa, sign bit, and exponent.
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	// Since the base for the exponent is 256, the exponent can be
	// treated as the number of bytes to represent the full 256-bit
	// number.
	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a whole number N to a compact representation
// using an unsigned 32-bit number.  The compact representation only
// provides 23 bits of precision, so values larger than (2^23 - 1) only
// encode the most significant digits of the number.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	// Since the base for the exponent is 256, the exponent can be
	// treated as the number of bytes.  So, shift the number right or
	// left accordingly.
	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// When the mantissa already has the sign bit set, the number is too
	// large to fit into the available 23-bits, so divide the number by
	// 256 and increment the exponent accordingly.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork calculates a work value from difficulty bits.  Bitcoin
// increases the difficulty for generating a block by decreasing the
// value which the generated hash must be less than.
//
// The work is 2^256 / (target+1).
func CalcWork(bits uint32) *big.Int {
	// Return a work value of zero if the passed difficulty bits
	// represent a negative number.
	difficultyNum := CompactToBig(bits)
	if difficultyNum.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(difficultyNum, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// checkProofOfWork ensures the block header bits encode a target in
// range and that the block hash is less than or equal to it.
func checkProofOfWork(hash *chainhash.Hash, bits uint32, powLimit *big.Int) error {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return ruleError(ErrProofOfWork, "block target difficulty is not positive")
	}
	if target.Cmp(powLimit) > 0 {
		return ruleError(ErrProofOfWork, "block target difficulty is higher than max")
	}
	if HashToBig(hash).Cmp(target) > 0 {
		return ruleError(ErrProofOfWork, "block hash is higher than expected max")
	}
	return nil
}
