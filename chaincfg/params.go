// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// These variables are the chain proof-of-work limit parameters for each default
// network.
var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a Dash block can
	// have for the main network. It is the value 2^236 - 1, with the
	// precision lost to the compact encoding 0x1e0fffff.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	// regressionPowLimit is the highest proof of work value a Dash block
	// can have for the regression test network. It is the value 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

const (
	targetSpacing = 150 * time.Second
	dgwPastBlocks = 24

	// maxTimeOffset is how far in the future a block timestamp may be
	// before the block is considered invalid.
	maxTimeOffset = 2 * time.Hour
)

// Checkpoint identifies a known good point in the block chain. Headers at a
// checkpoint height must carry the checkpoint hash.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// Params defines a Dash network by its parameters. These parameters may be
// used by Dash applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.DashNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// DNSSeeds defines a list of DNS seeds for the network that are used
	// as one method to discover peers.
	DNSSeeds []string

	// AcceptUnroutable specifies whether this network accepts unroutable
	// IP addresses, such as 10.0.0.0/8
	AcceptUnroutable bool

	// GenesisHeader is the header of the first block of the chain.
	GenesisHeader *wire.BlockHeader

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowHash computes block hashes. Dash networks hash headers with X11;
	// the zero value falls back to double SHA-256.
	PowHash chainhash.PowHashFunc

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// TargetSpacing is the desired amount of time to generate each block.
	TargetSpacing time.Duration

	// DGWHeight is the first height whose difficulty is computed with
	// Dark Gravity Wave. Earlier targets are not recomputed.
	DGWHeight int32

	// DGWPastBlocks is the size of the Dark Gravity Wave averaging window.
	DGWPastBlocks int32

	// AllowMinDifficultyBlocks lets a block take a reduced difficulty
	// when its predecessor is older than four target spacings.
	AllowMinDifficultyBlocks bool

	// NoRetargeting keeps every block at its predecessor's difficulty.
	NoRetargeting bool

	// MaxTimeOffset is how far ahead of the local clock a block timestamp
	// may be.
	MaxTimeOffset time.Duration

	// Checkpoints ordered from oldest to newest.
	Checkpoints []Checkpoint

	// Address encoding magics
	PubKeyHashAddrID byte // First byte of a P2PKH address
	ScriptHashAddrID byte // First byte of a P2SH address
	PrivateKeyID     byte // First byte of a WIF private key

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// HDCoinType is the BIP44 coin type used in the hierarchical
	// deterministic path for address generation.
	HDCoinType uint32
}

// BlockHash returns the hash identifying header on this network.
func (p *Params) BlockHash(header *wire.BlockHeader) chainhash.Hash {
	return header.BlockHash(p.powHash())
}

func (p *Params) powHash() chainhash.PowHashFunc {
	if p.PowHash == nil {
		return chainhash.DoubleHashH
	}
	return p.PowHash
}

// LatestCheckpoint returns the most recent checkpoint, or nil if there are
// none.
func (p *Params) LatestCheckpoint() *Checkpoint {
	if len(p.Checkpoints) == 0 {
		return nil
	}
	return &p.Checkpoints[len(p.Checkpoints)-1]
}

// CheckpointAt returns the checkpoint at height, if one exists.
func (p *Params) CheckpointAt(height int32) (*Checkpoint, bool) {
	for i := range p.Checkpoints {
		if p.Checkpoints[i].Height == height {
			return &p.Checkpoints[i], true
		}
	}
	return nil, false
}

// MainNetParams defines the network parameters for the main Dash network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "9999",
	DNSSeeds: []string{
		"dnsseed.dash.org",
		"dnsseed.dashdot.io",
	},

	// Chain parameters
	GenesisHeader:            &genesisHeader,
	GenesisHash:              &genesisHash,
	PowLimit:                 mainPowLimit,
	PowLimitBits:             0x1e0fffff,
	TargetSpacing:            targetSpacing,
	DGWHeight:                34140,
	DGWPastBlocks:            dgwPastBlocks,
	AllowMinDifficultyBlocks: false,
	NoRetargeting:            false,
	MaxTimeOffset:            maxTimeOffset,

	// Checkpoints ordered from oldest to newest.
	Checkpoints: []Checkpoint{
		{1500, newHashFromStr("000000aaf0300f59f49bc3e970bad15c11f961fe2347accffff19d96ec9778e3")},
		{4991, newHashFromStr("000000003b01809551952460744d5dbb8fcbd6cbae3c220267bf7fa43f837367")},
		{9918, newHashFromStr("00000000213e229f332c0ffbe34defdaa9e74de87f2d8d1f01af8d121c3c170b")},
		{16912, newHashFromStr("00000000075c0d10371d55a60634da70f197548dbbfa4123e12abfcbc5738af9")},
		{23912, newHashFromStr("0000000000335eac6703f3b1732ec8b2f89c3ba3a7889e5767b090556bb9a276")},
		{35457, newHashFromStr("0000000000b0ae211be59b048df14820475ad0dd53b9ff83b010f71a77342d9f")},
		{45479, newHashFromStr("000000000063d411655d590590e16960f15ceea4257122ac430c6fbe39fbf02d")},
		{55895, newHashFromStr("0000000000ae4c53a43639a4ca027282f69da9c67ba951768a20415b6439a2d7")},
		{68899, newHashFromStr("0000000000194ab4d3d9eeb1f2f792f21bb39ff767cb547fe977640f969d77b7")},
		{74619, newHashFromStr("000000000011d28f38f05d01650a502cc3f4d0e793fbc26e2a2ca71f07dc3842")},
		{75095, newHashFromStr("0000000000193d12f6ad352a9996ee58ef8bdc4946818a5fec5ce99c11b87f0d")},
		{88805, newHashFromStr("00000000001392f1652e9bf45cd8bc79dc60fe935277cd11538565b4a94fa85f")},
		{107996, newHashFromStr("00000000000a23840ac16115407488267aa3da2b9bc843e301185b7d17e4dc40")},
		{137993, newHashFromStr("00000000000cf69ce152b1bffdeddc59188d7a80879210d6e5c9503011929c3c")},
		{167996, newHashFromStr("000000000009486020a80f7f2cc065342b0c2fb59af5e090cd813dba68ab0fed")},
		{207992, newHashFromStr("00000000000d85c22be098f74576ef00b7aa00c05777e966aff68a270f1e01a5")},
		{312645, newHashFromStr("0000000000059dcb71ad35a9e40526c44e7aae6c99169a9e7017b7d84b1c2daf")},
	},

	// Address encoding magics
	PubKeyHashAddrID: 0x4c, // starts with X
	ScriptHashAddrID: 0x10, // starts with 7
	PrivateKeyID:     0xcc, // starts with 7 (uncompressed) or X (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4}, // starts with xprv
	HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e}, // starts with xpub

	// BIP44 coin type used in the hierarchical deterministic path for
	// address generation.
	HDCoinType: 5,
}

// TestNetParams defines the network parameters for the test Dash network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         wire.TestNet,
	DefaultPort: "19999",
	DNSSeeds: []string{
		"testnet-seed.dashdot.io",
	},

	// Chain parameters
	GenesisHeader:            &testNetGenesisHeader,
	GenesisHash:              &testNetGenesisHash,
	PowLimit:                 mainPowLimit,
	PowLimitBits:             0x1e0fffff,
	TargetSpacing:            targetSpacing,
	DGWHeight:                4001,
	DGWPastBlocks:            dgwPastBlocks,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            false,
	MaxTimeOffset:            maxTimeOffset,

	Checkpoints: []Checkpoint{
		{261, newHashFromStr("00000c26026d0815a7e2ce4fa270775f61403c040647ff2c3091f99e894a4618")},
		{1999, newHashFromStr("00000052e538d27fa53693efe6fb6892a0c1d26c0235f599171c48a3cce553b1")},
		{2999, newHashFromStr("0000024bc3f4f4cb30d29827c13d921ad77d2c6072e586c7f60d83c2722cdcc5")},
	},

	// Address encoding magics
	PubKeyHashAddrID: 0x8c, // starts with y
	ScriptHashAddrID: 0x13, // starts with 8 or 9
	PrivateKeyID:     0xef, // starts with 9 (uncompressed) or c (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // starts with tprv
	HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // starts with tpub

	HDCoinType: 1,
}

// RegressionNetParams defines the network parameters for the regression test
// Dash network. Not to be confused with the test Dash network, this network
// is sometimes simply called "regtest".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         wire.RegTest,
	DefaultPort: "19899",
	DNSSeeds:    []string{}, // NOTE: There must NOT be any seeds.

	AcceptUnroutable: true,

	// Chain parameters
	GenesisHeader:            &regTestGenesisHeader,
	GenesisHash:              &regTestGenesisHash,
	PowLimit:                 regressionPowLimit,
	PowLimitBits:             0x207fffff,
	TargetSpacing:            targetSpacing,
	DGWHeight:                34140,
	DGWPastBlocks:            dgwPastBlocks,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            true,
	MaxTimeOffset:            maxTimeOffset,

	Checkpoints: nil,

	// Address encoding magics
	PubKeyHashAddrID: 0x8c, // starts with y
	ScriptHashAddrID: 0x13, // starts with 8 or 9
	PrivateKeyID:     0xef, // starts with 9 (uncompressed) or c (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // starts with tprv
	HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // starts with tpub

	HDCoinType: 1,
}

// DevNetParams defines the network parameters for a Dash development
// network. Devnets share the regtest genesis block.
var DevNetParams = Params{
	Name:        "devnet",
	Net:         wire.DevNet,
	DefaultPort: "19799",
	DNSSeeds:    []string{}, // NOTE: There must NOT be any seeds.

	AcceptUnroutable: true,

	// Chain parameters
	GenesisHeader:            &regTestGenesisHeader,
	GenesisHash:              &regTestGenesisHash,
	PowLimit:                 mainPowLimit,
	PowLimitBits:             0x1e0fffff,
	TargetSpacing:            targetSpacing,
	DGWHeight:                4001,
	DGWPastBlocks:            dgwPastBlocks,
	AllowMinDifficultyBlocks: true,
	NoRetargeting:            false,
	MaxTimeOffset:            maxTimeOffset,

	Checkpoints: nil,

	// Address encoding magics
	PubKeyHashAddrID: 0x8c, // starts with y
	ScriptHashAddrID: 0x13, // starts with 8 or 9
	PrivateKeyID:     0xef, // starts with 9 (uncompressed) or c (compressed)

	// BIP32 hierarchical deterministic extended key magics
	HDPrivateKeyID: [4]byte{0x04, 0x35, 0x83, 0x94}, // starts with tprv
	HDPublicKeyID:  [4]byte{0x04, 0x35, 0x87, 0xcf}, // starts with tpub

	HDCoinType: 1,
}

var (
	// ErrDuplicateNet describes an error where the parameters for a Dash
	// network could not be set due to the network already being a standard
	// network or previously-registered into this package.
	ErrDuplicateNet = errors.New("duplicate Dash network")

	// ErrUnknownNet describes an error where the parameters for a network
	// were requested but the network was never registered.
	ErrUnknownNet = errors.New("unknown Dash network")

	// ErrUnknownHDKeyID describes an error where the provided id which
	// is intended to identify the network for a hierarchical deterministic
	// private extended key is not registered.
	ErrUnknownHDKeyID = errors.New("unknown hd private extended key bytes")
)

var (
	registeredNets    = make(map[wire.DashNet]*Params)
	hdPrivToPubKeyIDs = make(map[[4]byte][4]byte)
	hdPubKeyIDs       = make(map[[4]byte]struct{})
)

// Register registers the network parameters for a Dash network. This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks).
//
// Network parameters should be registered into this package by a main package
// as early as possible. Then, library packages may lookup networks or network
// parameters based on inputs and work regardless of the network being standard
// or not.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	registeredNets[params.Net] = params
	hdPrivToPubKeyIDs[params.HDPrivateKeyID] = params.HDPublicKeyID
	hdPubKeyIDs[params.HDPublicKeyID] = struct{}{}
	return nil
}

// HDPrivateKeyToPublicKeyID accepts a private hierarchical deterministic
// extended key id and returns the associated public key id. When the
// provided id is not registered, the ErrUnknownHDKeyID error will be
// returned.
func HDPrivateKeyToPublicKeyID(id [4]byte) ([4]byte, error) {
	pubBytes, ok := hdPrivToPubKeyIDs[id]
	if !ok {
		return [4]byte{}, ErrUnknownHDKeyID
	}
	return pubBytes, nil
}

// IsHDPrivateKeyID returns whether id is a registered private extended key
// version.
func IsHDPrivateKeyID(id [4]byte) bool {
	_, ok := hdPrivToPubKeyIDs[id]
	return ok
}

// IsHDPublicKeyID returns whether id is a registered public extended key
// version.
func IsHDPublicKeyID(id [4]byte) bool {
	_, ok := hdPubKeyIDs[id]
	return ok
}

// ParamsForNet returns the registered parameters for net.
func ParamsForNet(net wire.DashNet) (*Params, error) {
	params, ok := registeredNets[net]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNet, "network %s", net)
	}
	return params, nil
}

// mustRegister performs the same function as Register except it panics if there
// is an error. This should only be called from package init functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash. It only differs from the one available in chainhash in that
// it panics on an error since it will only (and must only) be called with
// hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams)
	mustRegister(&TestNetParams)
	mustRegister(&RegressionNetParams)
	mustRegister(&DevNetParams)
}
