// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/keychain"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by KeyDB implementations that do not own the
// requested address.
var ErrKeyNotFound = errors.New("no key for address")

// RawTxInSignature returns the serialized ECDSA signature for the input idx of
// the given transaction, with hashType appended to it.
func RawTxInSignature(tx *wire.MsgTx, idx int, subScript []byte, hashType SigHashType,
	key *keychain.PrivateKey) ([]byte, error) {

	hash, err := CalcSignatureHash(subScript, hashType, tx, idx)
	if err != nil {
		return nil, err
	}
	signature := key.Sign(&hash)

	return append(signature, byte(hashType)), nil
}

// SignatureScript creates an input signature script for tx to spend Dash sent
// from a previous output to the owner of privKey. tx must include all
// transaction inputs and outputs, however txin scripts are allowed to be filled
// or empty. The returned script is calculated to be used as the idx'th txin
// sigscript for tx. subscript is the PkScript of the previous output being used
// as the idx'th input. The public key is pushed compressed, matching the
// addresses the wallet hands out.
func SignatureScript(tx *wire.MsgTx, idx int, subscript []byte, hashType SigHashType,
	privKey *keychain.PrivateKey) ([]byte, error) {

	sig, err := RawTxInSignature(tx, idx, subscript, hashType, privKey)
	if err != nil {
		return nil, err
	}

	pkData := privKey.PublicKey().SerializeCompressed()
	return NewScriptBuilder().AddData(sig).AddData(pkData).Script()
}

func sign(params *chaincfg.Params, tx *wire.MsgTx, idx int,
	subScript []byte, hashType SigHashType, kdb KeyDB, sdb ScriptDB) (
	[]byte, ScriptClass, address.Address, error) {

	class, addr, err := ExtractPkScriptAddr(subScript, params)
	if err != nil {
		return nil, NonStandardTy, nil, err
	}

	switch class {
	case PubKeyHashTy:
		// look up key for address
		key, err := kdb.GetKey(addr)
		if err != nil {
			return nil, class, nil, err
		}

		signedScript, err := SignatureScript(tx, idx, subScript, hashType, key)
		if err != nil {
			return nil, class, nil, err
		}

		return signedScript, class, addr, nil
	case ScriptHashTy:
		script, err := sdb.GetScript(addr)
		if err != nil {
			return nil, class, nil, err
		}

		return script, class, addr, nil
	default:
		return nil, class, nil, errors.Errorf("can't sign %s outputs", class)
	}
}

// mergeScripts merges sigScript and prevScript assuming they are both
// partial solutions for pkScript spending output idx of tx. class is the
// result of extracting the address from pkScript. The return value is the
// best effort merging of the two scripts.
func mergeScripts(params *chaincfg.Params, tx *wire.MsgTx, idx int,
	class ScriptClass, sigScript, prevScript []byte) ([]byte, error) {

	switch class {
	case ScriptHashTy:
		// Remove the last push in the script and then recurse.
		sigPops, err := parseScript(sigScript)
		if err != nil || len(sigPops) == 0 {
			return prevScript, nil
		}
		prevPops, err := parseScript(prevScript)
		if err != nil || len(prevPops) == 0 {
			return sigScript, nil
		}

		// assume that script in sigPops is the correct one, we just
		// made it.
		script := sigPops[len(sigPops)-1].data

		// We already know this information somewhere up the stack.
		class, _, _ := ExtractPkScriptAddr(script, params)

		// regenerate scripts.
		sigScript, _ := unparseScript(sigPops[:len(sigPops)-1])
		prevScript, _ := unparseScript(prevPops[:len(prevPops)-1])

		// Merge
		mergedScript, err := mergeScripts(params, tx, idx, class, sigScript, prevScript)
		if err != nil {
			return nil, err
		}

		// Reappend the script and return the result.
		builder := NewScriptBuilder()
		builder.AddOps(mergedScript)
		builder.AddData(script)
		return builder.Script()

	// It doesn't actually make sense to merge anything other than
	// scripthash. Everything else has either zero signature, can't be
	// spent, or has a single signature which is either present or not.
	// In the conflict case here we just assume the longest is correct.
	default:
		if len(sigScript) > len(prevScript) {
			return sigScript, nil
		}
		return prevScript, nil
	}
}

// KeyDB is an interface type provided to SignTxOutput, it encapsulates
// any user state required to get the private keys for an address.
type KeyDB interface {
	GetKey(address.Address) (*keychain.PrivateKey, error)
}

// KeyClosure implements KeyDB with a closure.
type KeyClosure func(address.Address) (*keychain.PrivateKey, error)

// GetKey implements KeyDB by returning the result of calling the closure.
func (kc KeyClosure) GetKey(address address.Address) (*keychain.PrivateKey, error) {
	return kc(address)
}

// ScriptDB is an interface type provided to SignTxOutput, it encapsulates any
// user state required to get the scripts for an pay-to-script-hash address.
type ScriptDB interface {
	GetScript(address.Address) ([]byte, error)
}

// ScriptClosure implements ScriptDB with a closure.
type ScriptClosure func(address.Address) ([]byte, error)

// GetScript implements ScriptDB by returning the result of calling the closure.
func (sc ScriptClosure) GetScript(address address.Address) ([]byte, error) {
	return sc(address)
}

// SignTxOutput signs output idx of the given tx to resolve the script given in
// pkScript with a signature type of hashType. Any keys required will be
// looked up by calling getKey() with the string of the given address.
// Any pay-to-script-hash signatures will be similarly looked up by calling
// getScript. If previousScript is provided then the results in previousScript
// will be merged in a type-dependent manner with the newly generated.
// signature script.
func SignTxOutput(params *chaincfg.Params, tx *wire.MsgTx, idx int,
	pkScript []byte, hashType SigHashType, kdb KeyDB, sdb ScriptDB,
	previousScript []byte) ([]byte, error) {

	sigScript, class, _, err := sign(params, tx, idx, pkScript, hashType, kdb, sdb)
	if err != nil {
		return nil, err
	}

	if class == ScriptHashTy {
		realSigScript, _, _, err := sign(params, tx, idx, sigScript, hashType, kdb, sdb)
		if err != nil {
			return nil, err
		}

		// Append the p2sh script as the last push in the script.
		builder := NewScriptBuilder()
		builder.AddOps(realSigScript)
		builder.AddData(sigScript)

		sigScript, _ = builder.Script()
	}

	// Merge scripts. with any previous data, if any.
	return mergeScripts(params, tx, idx, class, sigScript, previousScript)
}
