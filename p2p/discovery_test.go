package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryRedialsSeeds(t *testing.T) {
	a := newTestNode(t, "a", nil)
	b := newTestNode(t, "b", nil)

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDiscovery(DiscoveryConfig{
		SeedPeers: []string{a.url},
		Server:    b.server,
		Interval:  20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return b.server.PeerCount() == 1 }, eventually, 10*time.Millisecond)
	first := b.server.Peers()[0].ConnectedAt

	// Dropping the session from the seed side makes discovery dial again.
	for _, p := range a.server.peers.Snapshot() {
		p.Close()
	}
	require.Eventually(t, func() bool {
		peers := b.server.Peers()
		return len(peers) == 1 && peers[0].ConnectedAt.After(first)
	}, eventually, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("discovery did not stop")
	}
}

func TestDiscoveryUnreachableSeed(t *testing.T) {
	b := newTestNode(t, "b", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	d := NewDiscovery(DiscoveryConfig{
		SeedPeers: []string{"ws://127.0.0.1:1/p2p"},
		Server:    b.server,
		Interval:  50 * time.Millisecond,
	})
	assert.NoError(t, d.Run(ctx))
	assert.Zero(t, b.server.PeerCount())
}
