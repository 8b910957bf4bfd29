// Package mempool holds validated transactions waiting to be mined.
package mempool

import (
	"errors"
	"sync"

	"peerledger/blockchain"
)

var (
	ErrDuplicate = errors.New("transaction already pending")
	ErrPoolFull  = errors.New("transaction pool is full")
)

const DefaultCapacity = 10000

// Pool is a thread-safe FIFO of pending transactions keyed by ID.
type Pool struct {
	mu       sync.Mutex
	capacity int
	order    []blockchain.Hash32
	txs      map[blockchain.Hash32]blockchain.Transaction
}

// New creates an empty pool holding at most capacity transactions.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		capacity: capacity,
		txs:      make(map[blockchain.Hash32]blockchain.Transaction),
	}
}

// Add queues tx. Callers validate it first.
func (p *Pool) Add(tx blockchain.Transaction) error {
	id := tx.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.txs[id]; ok {
		return ErrDuplicate
	}
	if len(p.txs) >= p.capacity {
		return ErrPoolFull
	}

	p.txs[id] = tx
	p.order = append(p.order, id)
	return nil
}

func (p *Pool) Contains(id blockchain.Hash32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[id]
	return ok
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// Pending returns up to max transactions in arrival order without removing
// them. max <= 0 returns all of them.
func (p *Pool) Pending(max int) []blockchain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if max <= 0 || max > len(p.order) {
		max = len(p.order)
	}

	out := make([]blockchain.Transaction, 0, max)
	for _, id := range p.order[:max] {
		out = append(out, p.txs[id])
	}
	return out
}

// Prune drops every pending transaction already recorded in chain.
func (p *Pool) Prune(chain *blockchain.Chain) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.order[:0]
	removed := 0
	for _, id := range p.order {
		if chain.ContainsTransaction(id) {
			delete(p.txs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
	return removed
}
