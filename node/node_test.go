package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/blockchain"
	"peerledger/blockchain/store"
	"peerledger/client"
	"peerledger/config"
	"peerledger/mocks"
)

const (
	testDifficulty = 2
	eventually     = 10 * time.Second
	tick           = 20 * time.Millisecond
)

func testConfig(id string, seeds ...string) config.NodeConfig {
	cfg := config.Default()
	cfg.NodeID = id
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.APIAddress = "127.0.0.1:0"
	cfg.StorageBackend = store.BackendMemory
	cfg.PersistencePath = ""
	cfg.DifficultyTarget = testDifficulty
	cfg.MiningWorkers = 2
	cfg.PeerAddresses = seeds
	return cfg
}

func startNode(t *testing.T, cfg config.NodeConfig) *FullNode {
	t.Helper()
	n, err := NewFullNode(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func tip(n *FullNode) blockchain.Hash32 {
	return n.Processor().GetChain().Tip().Hash
}

func mine(t *testing.T, n *FullNode, count int) {
	t.Helper()
	for range count {
		_, err := n.Processor().Mine(context.Background())
		require.NoError(t, err)
	}
}

func TestNodeLifecycle(t *testing.T) {
	n, err := NewFullNode(testConfig("solo"))
	require.NoError(t, err)
	assert.Empty(t, n.P2PAddr())

	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	assert.ErrorIs(t, n.Start(ctx), ErrAlreadyStarted)
	assert.Contains(t, n.P2PAddr(), "ws://127.0.0.1:")
	assert.Contains(t, n.APIAddr(), "http://127.0.0.1:")

	c := client.New(n.APIAddr(), client.WithRetryMax(0))
	height, err := c.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, height)

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())

	_, err = c.Height(ctx)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	n, err := NewFullNode(testConfig("runner"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return n.APIAddr() != "" }, eventually, tick)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("node did not stop")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := testConfig("bad")
	cfg.StorageBackend = "tape"
	_, err := NewFullNode(cfg)
	assert.Error(t, err)
}

func TestBlockPropagation(t *testing.T) {
	a := startNode(t, testConfig("a"))
	b := startNode(t, testConfig("b", a.P2PAddr()))
	c := startNode(t, testConfig("c", b.P2PAddr()))

	require.Eventually(t, func() bool {
		return a.P2P().PeerCount() == 1 && b.P2P().PeerCount() == 2 && c.P2P().PeerCount() == 1
	}, eventually, tick)

	mine(t, a, 1)
	want := tip(a)

	for _, n := range []*FullNode{b, c} {
		require.Eventually(t, func() bool { return tip(n) == want }, eventually, tick)
	}
}

func TestTransactionPropagatesAndIsMined(t *testing.T) {
	a := startNode(t, testConfig("a"))
	b := startNode(t, testConfig("b", a.P2PAddr()))
	require.Eventually(t, func() bool { return a.P2P().PeerCount() == 1 }, eventually, tick)

	ctx := context.Background()
	tx := mocks.GenerateRandomTransaction(25)
	_, err := client.New(a.APIAddr()).SubmitTransaction(ctx, tx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(b.Processor().PendingTransactions()) == 1
	}, eventually, tick)

	mined, err := b.Processor().Mine(ctx)
	require.NoError(t, err)
	require.Len(t, mined.Transactions, 1)

	// Once the block reaches a, its pool no longer holds the transaction.
	require.Eventually(t, func() bool {
		return tip(a) == mined.Hash && len(a.Processor().PendingTransactions()) == 0
	}, eventually, tick)
	assert.True(t, a.Processor().GetChain().ContainsTransaction(tx.ID()))
}

func TestForkResolution(t *testing.T) {
	a := startNode(t, testConfig("a"))
	b := startNode(t, testConfig("b"))

	// Partitioned: both extend genesis independently.
	mine(t, a, 3)
	mine(t, b, 1)
	require.NotEqual(t, tip(a), tip(b))

	require.NoError(t, client.New(b.APIAddr()).AddPeer(context.Background(), a.P2PAddr()))

	require.Eventually(t, func() bool { return tip(a) == tip(b) }, eventually, tick)
	assert.Equal(t, 4, b.Processor().GetChain().Len())
	assert.Equal(t, 4, a.Processor().GetChain().Len(), "longer chain wins")
}

func TestEqualLengthForksKeepLocalChain(t *testing.T) {
	a := startNode(t, testConfig("a"))
	b := startNode(t, testConfig("b"))

	mine(t, a, 2)
	mine(t, b, 2)
	tipA, tipB := tip(a), tip(b)

	require.NoError(t, b.P2P().Connect(context.Background(), a.P2PAddr()))
	require.Eventually(t, func() bool { return a.P2P().PeerCount() == 1 }, eventually, tick)

	// Give the tip exchange time to play out; neither side may switch.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, tipA, tip(a))
	assert.Equal(t, tipB, tip(b))

	// The next block on either side breaks the tie for both.
	mine(t, a, 1)
	require.Eventually(t, func() bool { return tip(b) == tip(a) }, eventually, tick)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	for _, backend := range []string{store.BackendLevelDB, store.BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig("persistent")
			cfg.StorageBackend = backend
			cfg.PersistencePath = t.TempDir()

			n, err := NewFullNode(cfg)
			require.NoError(t, err)
			mine(t, n, 3)
			want := tip(n)
			require.NoError(t, n.Stop())

			reopened, err := NewFullNode(cfg)
			require.NoError(t, err)
			defer reopened.Stop()
			assert.Equal(t, 4, reopened.Processor().GetChain().Len())
			assert.Equal(t, want, tip(reopened))
		})
	}
}

func TestCorruptPersistedChainIsFatal(t *testing.T) {
	dir := t.TempDir()
	backend, err := store.NewLevelDBBackend(filepath.Join(dir, "chain.ldb"))
	require.NoError(t, err)

	blocks := mocks.MustGenerateChain(3, 0)
	blocks[2] = mocks.CloneBlock(blocks[2])
	blocks[2].Transactions[0].Amount++
	require.NoError(t, backend.Replace(blocks))
	require.NoError(t, backend.Close())

	cfg := testConfig("corrupt")
	cfg.StorageBackend = store.BackendLevelDB
	cfg.PersistencePath = dir
	cfg.DifficultyTarget = 0

	_, err = NewFullNode(cfg)
	assert.ErrorIs(t, err, store.ErrCorruptChain)
}
