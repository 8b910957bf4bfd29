package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/blockchain"
	"peerledger/mocks"
)

func TestPoolAdd(t *testing.T) {
	pool := New(2)
	a := *mocks.GenerateRandomTransaction(1)
	b := *mocks.GenerateRandomTransaction(2)

	require.NoError(t, pool.Add(a))
	assert.ErrorIs(t, pool.Add(a), ErrDuplicate)
	require.NoError(t, pool.Add(b))
	assert.ErrorIs(t, pool.Add(*mocks.GenerateRandomTransaction(3)), ErrPoolFull)

	assert.Equal(t, 2, pool.Len())
	assert.True(t, pool.Contains(a.ID()))
	assert.Equal(t, []blockchain.Transaction{a, b}, pool.Pending(0))
	assert.Equal(t, []blockchain.Transaction{a}, pool.Pending(1))
}

func TestPoolPrune(t *testing.T) {
	pool := New(0)
	blocks := mocks.MustGenerateChain(3, 0)
	chain, err := blockchain.NewValidator(0).ValidateChain(blocks)
	require.NoError(t, err)

	onChain := blocks[2].Transactions[0]
	pending := *mocks.GenerateRandomTransaction(7)
	require.NoError(t, pool.Add(onChain))
	require.NoError(t, pool.Add(pending))

	assert.Equal(t, 1, pool.Prune(chain))
	assert.Equal(t, []blockchain.Transaction{pending}, pool.Pending(0))
	assert.False(t, pool.Contains(onChain.ID()))

	// Room is freed for new transactions.
	require.NoError(t, pool.Add(onChain))
}
