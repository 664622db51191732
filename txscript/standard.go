// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

const (
	// P2PKHScriptSize is the size of a pay-to-pubkey-hash output script.
	P2PKHScriptSize = 25

	// P2SHScriptSize is the size of a pay-to-script-hash output script.
	P2SHScriptSize = 23

	// RedeemP2PKHSigScriptSize is the worst case size of a signature script
	// spending a pay-to-pubkey-hash output with a compressed key: a 72 byte
	// push of a low-S DER signature with its hash type and a 33 byte push
	// of the key.
	RedeemP2PKHSigScriptSize = 1 + 72 + 1 + 33
)

// ScriptClass is an enumeration for the list of standard types of script.
type ScriptClass byte

// Classes of script payment known about in the blockchain.
const (
	NonStandardTy ScriptClass = iota // None of the recognized forms.
	PubKeyHashTy                     // Pay pubkey hash.
	ScriptHashTy                     // Pay to script hash.
	PubKeyTy                         // Pay to pubkey.
	NullDataTy                       // Empty data-only (provably prunable).
)

// scriptClassToName houses the human-readable strings which describe each
// script class.
var scriptClassToName = []string{
	NonStandardTy: "nonstandard",
	PubKeyHashTy:  "pubkeyhash",
	ScriptHashTy:  "scripthash",
	PubKeyTy:      "pubkey",
	NullDataTy:    "nulldata",
}

// String implements the Stringer interface by returning the name of
// the enum script class. If the enum is invalid then "Invalid" will be
// returned.
func (t ScriptClass) String() string {
	if int(t) >= len(scriptClassToName) {
		return "Invalid"
	}
	return scriptClassToName[t]
}

// isPubKeyHash returns true if the script passed is a pay-to-pubkey-hash
// transaction, false otherwise.
func isPubKeyHash(pops []parsedOpcode) bool {
	return len(pops) == 5 &&
		pops[0].opcode == OpDup &&
		pops[1].opcode == OpHash160 &&
		pops[2].opcode == OpData20 &&
		pops[3].opcode == OpEqualVerify &&
		pops[4].opcode == OpCheckSig
}

// isScriptHash returns true if the script passed is a pay-to-script-hash
// transaction, false otherwise.
func isScriptHash(pops []parsedOpcode) bool {
	return len(pops) == 3 &&
		pops[0].opcode == OpHash160 &&
		pops[1].opcode == OpData20 &&
		pops[2].opcode == OpEqual
}

// isPubKey returns true if the script passed is a pay-to-pubkey
// transaction, false otherwise.
func isPubKey(pops []parsedOpcode) bool {
	return len(pops) == 2 &&
		(len(pops[0].data) == 33 || len(pops[0].data) == 65) &&
		pops[1].opcode == OpCheckSig
}

// isNullData returns true if the passed script is a null data transaction,
// false otherwise.
func isNullData(pops []parsedOpcode) bool {
	return len(pops) >= 1 && pops[0].opcode == OpReturn && isPushOnly(pops[1:])
}

// typeOfScript returns the type of the script being inspected from the known
// standard types.
func typeOfScript(pops []parsedOpcode) ScriptClass {
	switch {
	case isPubKeyHash(pops):
		return PubKeyHashTy
	case isScriptHash(pops):
		return ScriptHashTy
	case isPubKey(pops):
		return PubKeyTy
	case isNullData(pops):
		return NullDataTy
	}
	return NonStandardTy
}

// GetScriptClass returns the class of the script passed.
//
// NonStandardTy will be returned when the script does not parse.
func GetScriptClass(script []byte) ScriptClass {
	pops, err := parseScript(script)
	if err != nil {
		return NonStandardTy
	}
	return typeOfScript(pops)
}

// IsPayToPubKeyHash returns true if the script is in the standard
// pay-to-pubkey-hash format.
func IsPayToPubKeyHash(script []byte) bool {
	return GetScriptClass(script) == PubKeyHashTy
}

// IsPayToScriptHash returns true if the script is in the standard
// pay-to-script-hash format.
func IsPayToScriptHash(script []byte) bool {
	return GetScriptClass(script) == ScriptHashTy
}

// payToPubKeyHashScript creates a new script to pay a transaction
// output to a 20-byte pubkey hash. It is expected that the input is a valid
// hash.
func payToPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(OpDup).AddOp(OpHash160).
		AddData(pubKeyHash).AddOp(OpEqualVerify).AddOp(OpCheckSig).
		Script()
}

// payToScriptHashScript creates a new script to pay a transaction output to a
// script hash. It is expected that the input is a valid hash.
func payToScriptHashScript(scriptHash []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(OpHash160).AddData(scriptHash).
		AddOp(OpEqual).Script()
}

// PayToAddrScript creates a new script to pay a transaction output to a the
// specified address.
func PayToAddrScript(addr address.Address) ([]byte, error) {
	switch addr := addr.(type) {
	case *address.AddressPubKeyHash:
		if addr == nil {
			return nil, errors.New("unable to generate payment script for nil address")
		}
		return payToPubKeyHashScript(addr.ScriptAddress())

	case *address.AddressScriptHash:
		if addr == nil {
			return nil, errors.New("unable to generate payment script for nil address")
		}
		return payToScriptHashScript(addr.ScriptAddress())
	}

	return nil, errors.Errorf("unable to generate payment script for unsupported "+
		"address type %T", addr)
}

// NullDataScript creates a provably-prunable script containing OP_RETURN
// followed by the passed data.
func NullDataScript(data []byte) ([]byte, error) {
	return NewScriptBuilder().AddOp(OpReturn).AddData(data).Script()
}

// ExtractPkScriptAddr returns the class of the passed script and the address
// it pays to. Scripts paying to a raw public key are reported as the P2PKH
// address of that key. Non-standard scripts return a nil address.
func ExtractPkScriptAddr(pkScript []byte, params *chaincfg.Params) (ScriptClass, address.Address, error) {
	pops, err := parseScript(pkScript)
	if err != nil {
		return NonStandardTy, nil, err
	}

	class := typeOfScript(pops)
	switch class {
	case PubKeyHashTy:
		addr, err := address.NewAddressPubKeyHash(pops[2].data, params)
		if err != nil {
			return class, nil, err
		}
		return class, addr, nil

	case ScriptHashTy:
		addr, err := address.NewAddressScriptHashFromHash(pops[1].data, params)
		if err != nil {
			return class, nil, err
		}
		return class, addr, nil

	case PubKeyTy:
		addr, err := address.NewAddressPubKey(pops[0].data, params)
		if err != nil {
			return class, nil, err
		}
		return class, addr, nil
	}

	return class, nil, nil
}

// ExtractScriptHash160 returns the 20 byte hash a P2PKH or P2SH script
// commits to.
func ExtractScriptHash160(pkScript []byte) (chainhash.Hash160, bool) {
	pops, err := parseScript(pkScript)
	if err != nil {
		return chainhash.Hash160{}, false
	}
	var hash chainhash.Hash160
	switch typeOfScript(pops) {
	case PubKeyHashTy:
		copy(hash[:], pops[2].data)
	case ScriptHashTy:
		copy(hash[:], pops[1].data)
	default:
		return chainhash.Hash160{}, false
	}
	return hash, true
}

// ExtractSigScriptPubKey returns the public key pushed by a standard P2PKH
// signature script, or nil when sigScript has another shape.
func ExtractSigScriptPubKey(sigScript []byte) []byte {
	pops, err := parseScript(sigScript)
	if err != nil || len(pops) != 2 || !isPushOnly(pops) {
		return nil
	}
	pubKey := pops[1].data
	if len(pubKey) != 33 && len(pubKey) != 65 {
		return nil
	}
	return pubKey
}
