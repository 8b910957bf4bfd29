package store

import (
	"errors"

	"peerledger/blockchain"
)

var (
	ErrBlockNotFound = errors.New("block not found")

	// ErrCorruptChain is returned at open time when the persisted blocks do
	// not form a valid chain.
	ErrCorruptChain = errors.New("persisted chain is corrupt")
)

// ChainStore holds the local chain. Readers get immutable snapshots served
// from memory, so reads cannot fail; AddBlock and ReplaceChain are the only
// mutations and each is atomic.
type ChainStore interface {
	// AddBlock links a validated block onto the tip.
	AddBlock(block *blockchain.Block) error
	// ReplaceChain swaps in a fully validated chain.
	ReplaceChain(chain *blockchain.Chain) error

	GetBlockByHash(hash blockchain.Hash32) (*blockchain.Block, error)
	GetHeadBlock() *blockchain.Block
	GetChainHeight() uint64
	GetChain() *blockchain.Chain

	Close() error
}

// Backend persists the chain as an ordered sequence of blocks.
type Backend interface {
	// Load returns every stored block in index order.
	Load() ([]*blockchain.Block, error)
	Append(block *blockchain.Block) error
	// Replace atomically overwrites the stored chain with blocks.
	Replace(blocks []*blockchain.Block) error
	Close() error
}
