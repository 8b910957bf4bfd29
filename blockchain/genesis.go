package blockchain

import (
	"time"
)

var genesisTimestamp = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// GenesisHash is the hash of the fixed first block every chain starts from.
var GenesisHash = Genesis().Hash

// Genesis returns a fresh copy of the genesis block. It carries no
// transactions and is exempt from proof of work.
func Genesis() *Block {
	b := &Block{
		Index:        0,
		Timestamp:    genesisTimestamp,
		Transactions: []Transaction{},
		PreviousHash: ZeroHash,
		Nonce:        0,
	}
	b.Hash = ComputeHash(b)
	return b
}

// IsGenesis reports whether b is byte-for-byte the genesis block.
func IsGenesis(b *Block) bool {
	return b.Index == 0 &&
		b.PreviousHash == ZeroHash &&
		b.Hash == GenesisHash &&
		ComputeHash(b) == GenesisHash
}
