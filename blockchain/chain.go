package blockchain

import (
	"fmt"
	"slices"
	"sync"
)

// Chain is an immutable sequence of blocks rooted at the genesis block.
// Append returns a new Chain and leaves the receiver untouched, so a *Chain
// can be handed to concurrent readers without copying.
type Chain struct {
	blocks []*Block
	txs    *txIndex
}

// txIndex maps transaction IDs to the index of the block recording them. It
// is shared by a chain and the chains appended onto it; each chain only
// trusts entries below its own length.
type txIndex struct {
	mu     sync.RWMutex
	ids    map[Hash32]uint64
	height int
}

func newTxIndex(ids map[Hash32]uint64, height int) *txIndex {
	if ids == nil {
		ids = make(map[Hash32]uint64)
	}
	return &txIndex{ids: ids, height: height}
}

// NewChain returns a chain holding only the genesis block.
func NewChain() *Chain {
	return &Chain{blocks: []*Block{Genesis()}, txs: newTxIndex(nil, 1)}
}

func (c *Chain) Len() int { return len(c.blocks) }

func (c *Chain) Tip() *Block { return c.blocks[len(c.blocks)-1] }

// At returns the block with the given index.
func (c *Chain) At(index uint64) (*Block, bool) {
	if index >= uint64(len(c.blocks)) {
		return nil, false
	}
	return c.blocks[index], true
}

// Blocks returns a copy of the block list. The blocks themselves are shared.
func (c *Chain) Blocks() []*Block {
	return slices.Clone(c.blocks)
}

func (c *Chain) BlockByHash(hash Hash32) (*Block, bool) {
	for _, b := range c.blocks {
		if b.Hash == hash {
			return b, true
		}
	}
	return nil, false
}

// ContainsTransaction reports whether a transaction with this ID is already
// recorded in any block.
func (c *Chain) ContainsTransaction(id Hash32) bool {
	_, ok := c.TransactionBlock(id)
	return ok
}

// TransactionBlock returns the index of the block recording the transaction
// with this ID.
func (c *Chain) TransactionBlock(id Hash32) (uint64, bool) {
	c.txs.mu.RLock()
	defer c.txs.mu.RUnlock()

	at, ok := c.txs.ids[id]
	if !ok || at >= uint64(len(c.blocks)) {
		return 0, false
	}
	return at, true
}

// Append links b onto the tip. It checks only the link (index and previous
// hash); callers validate the block itself first.
func (c *Chain) Append(b *Block) (*Chain, error) {
	if b.Index != uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: index %d, expected %d", ErrLinkMismatch, b.Index, len(c.blocks))
	}

	tipHash := ComputeHash(c.Tip())
	if b.PreviousHash != tipHash {
		return nil, fmt.Errorf("%w: previous hash %s, tip is %s", ErrLinkMismatch, b.PreviousHash.Short(), tipHash.Short())
	}

	ids := make([]Hash32, len(b.Transactions))
	for i := range b.Transactions {
		ids[i] = b.Transactions[i].ID()
	}

	return &Chain{blocks: append(slices.Clip(c.blocks), b), txs: c.extendIndex(b.Index, ids)}, nil
}

// extendIndex records ids at index. The shared index is extended in place
// when c is its newest chain; a second append onto c gets its own copy so
// sibling branches never see each other's transactions.
func (c *Chain) extendIndex(index uint64, ids []Hash32) *txIndex {
	idx := c.txs
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.height != len(c.blocks) {
		own := make(map[Hash32]uint64, len(idx.ids))
		for id, at := range idx.ids {
			if at < uint64(len(c.blocks)) {
				own[id] = at
			}
		}
		idx = newTxIndex(own, len(c.blocks))
	}

	for _, id := range ids {
		if _, ok := idx.ids[id]; !ok {
			idx.ids[id] = index
		}
	}
	idx.height = len(c.blocks) + 1
	return idx
}
