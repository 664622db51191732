// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
)

// genesisMerkleRoot is the hash of the first transaction in the genesis block
// for all Dash networks.
var genesisMerkleRoot = *newHashFromStr("e0028eb9648db56b1ac77cf090b99048a8007e2bb64b68f092c03c7f56a662c7")

// genesisHeader defines the genesis block header of the block chain which
// serves as the public transaction ledger for the main network.
var genesisHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1390095618, 0), // 2014-01-19 01:40:18 +0000 UTC
	Bits:       0x1e0ffff0,
	Nonce:      28917698,
}

// genesisHash is the hash of the first block in the block chain for the main
// network (genesis block).
var genesisHash = *newHashFromStr("00000ffd590b1485b3caadc19b22e6379c733355108f107a430458cdf3407ab6")

// testNetGenesisHeader defines the genesis block header of the block chain
// which serves as the public transaction ledger for the test network.
var testNetGenesisHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1390666206, 0), // 2014-01-25 16:10:06 +0000 UTC
	Bits:       0x1e0ffff0,
	Nonce:      3861367235,
}

// testNetGenesisHash is the hash of the first block in the block chain for
// the test network.
var testNetGenesisHash = *newHashFromStr("00000bafbc94add76cb75e2ec92894837288a481e5c005f6563d91623bf8bc2c")

// regTestGenesisHeader defines the genesis block header of the block chain
// which serves as the public transaction ledger for the regression test
// network.
var regTestGenesisHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1417713337, 0), // 2014-12-04 17:15:37 +0000 UTC
	Bits:       0x207fffff,
	Nonce:      1096447,
}

// regTestGenesisHash is the hash of the first block in the block chain for the
// regression test network.
var regTestGenesisHash = *newHashFromStr("000008ca1832a4baf228eb1553c03d3a2c8e02399550dd6ea8d65cec3ef23d2e")
