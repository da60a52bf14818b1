// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// paymentAddressHash extracts the 20-byte address hash paid by a public
// key script, when the script has a recognizable single-address form.
func paymentAddressHash(pkScript []byte, params *chaincfg.Params) ([]byte, bool) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return nil, false
	}

	switch class {
	case txscript.PubKeyHashTy, txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy:
		return addrs[0].ScriptAddress(), true

	case txscript.PubKeyTy:
		pubKey, ok := addrs[0].(*btcutil.AddressPubKey)
		if !ok {
			return nil, false
		}
		return pubKey.AddressPubKeyHash().ScriptAddress(), true
	}
	return nil, false
}

// inputAddressHash extracts the address hash implied by a signature
// script.  The final data push of a pay-to-pubkey-hash spend is the
// public key, which hashes to the spending address.  Scripts that do not
// follow that shape yield no address and the input is simply not indexed.
func inputAddressHash(sigScript []byte) ([]byte, bool) {
	pushes, err := txscript.PushedData(sigScript)
	if err != nil || len(pushes) == 0 {
		return nil, false
	}
	last := pushes[len(pushes)-1]
	if len(last) == 33 || len(last) == 65 {
		return btcutil.Hash160(last), true
	}
	return nil, false
}

// extractEphemeralKey pulls the 32-byte ephemeral key out of a stealth
// marker script, an OP_RETURN whose first push carries at least 32
// bytes.
func extractEphemeralKey(pkScript []byte) ([]byte, bool) {
	if len(pkScript) == 0 || pkScript[0] != txscript.OP_RETURN {
		return nil, false
	}
	pushes, err := txscript.PushedData(pkScript)
	if err != nil || len(pushes) == 0 || len(pushes[0]) < 32 {
		return nil, false
	}
	return pushes[0][:32], true
}
