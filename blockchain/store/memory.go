package store

import (
	"errors"
	"fmt"
	"sync"

	"peerledger/blockchain"
)

// MemoryChainStore keeps the chain in memory behind a reader-writer lock and
// optionally writes every mutation through to a Backend.
type MemoryChainStore struct {
	chain   *blockchain.Chain
	backend Backend
	mu      sync.RWMutex
}

// NewMemoryChainStore returns a store holding only the genesis block.
func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{chain: blockchain.NewChain()}
}

// Open loads the chain persisted in backend and validates it in full.
// An empty backend is seeded with the genesis block. A persisted chain that
// fails validation is reported as ErrCorruptChain.
func Open(backend Backend, v *blockchain.Validator) (*MemoryChainStore, error) {
	if backend == nil {
		return NewMemoryChainStore(), nil
	}

	blocks, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}

	if len(blocks) == 0 {
		chain := blockchain.NewChain()
		if err := backend.Replace(chain.Blocks()); err != nil {
			return nil, fmt.Errorf("failed to persist genesis block: %w", err)
		}
		return &MemoryChainStore{chain: chain, backend: backend}, nil
	}

	chain, err := v.ValidateChain(blocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptChain, err)
	}

	return &MemoryChainStore{chain: chain, backend: backend}, nil
}

func (m *MemoryChainStore) AddBlock(block *blockchain.Block) error {
	if block == nil {
		return errors.New("cannot add nil block")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.chain.Append(block)
	if err != nil {
		return err
	}

	if m.backend != nil {
		if err := m.backend.Append(block); err != nil {
			return fmt.Errorf("failed to persist block %d: %w", block.Index, err)
		}
	}

	m.chain = next
	return nil
}

// ReplaceChain atomically replaces the entire chain. The new chain must
// already be validated.
func (m *MemoryChainStore) ReplaceChain(newChain *blockchain.Chain) error {
	if newChain == nil {
		return errors.New("cannot replace with nil chain")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Replace(newChain.Blocks()); err != nil {
			return fmt.Errorf("failed to persist chain: %w", err)
		}
	}

	m.chain = newChain
	return nil
}

func (m *MemoryChainStore) GetChain() *blockchain.Chain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chain
}

func (m *MemoryChainStore) GetHeadBlock() *blockchain.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chain.Tip()
}

func (m *MemoryChainStore) GetBlockByHash(hash blockchain.Hash32) (*blockchain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.chain.BlockByHash(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	return b, nil
}

// GetChainHeight returns the number of blocks, genesis included.
func (m *MemoryChainStore) GetChainHeight() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(m.chain.Len())
}

func (m *MemoryChainStore) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
