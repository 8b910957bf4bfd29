package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"peerledger/logger"
)

func newTestPeer(id, address string, inbound bool, queue int) *Peer {
	return &Peer{
		ID:          id,
		Address:     address,
		Inbound:     inbound,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, queue),
		done:        make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Inf, 1),
		log:         logger.With("peer", id),
	}
}

func TestPeerSet(t *testing.T) {
	ps := NewPeerSet(2)
	a := newTestPeer("a", "ws://a/p2p", false, 1)
	b := newTestPeer("b", "10.0.0.2:5000", true, 1)

	require.True(t, ps.Add(a))
	assert.False(t, ps.Add(a), "duplicate id")
	require.True(t, ps.Add(b))
	assert.True(t, ps.Full())
	assert.False(t, ps.Add(newTestPeer("c", "", true, 1)), "set is full")
	assert.Equal(t, 2, ps.Len())

	assert.True(t, ps.HasAddress("ws://a/p2p"))
	assert.False(t, ps.HasAddress("10.0.0.2:5000"), "inbound peers are not dial targets")

	got, ok := ps.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	// A stale session with a reused id must not evict the current one.
	stale := newTestPeer("a", "ws://a/p2p", false, 1)
	assert.False(t, ps.Remove(stale))
	assert.True(t, ps.Remove(a))
	assert.False(t, ps.Remove(a))
	assert.Len(t, ps.Snapshot(), 1)
}

func TestPeerSend(t *testing.T) {
	p := newTestPeer("a", "", true, 1)

	assert.True(t, p.Send([]byte("one")))
	assert.False(t, p.Send([]byte("two")), "queue full")

	p.Close()
	p.Close()
	<-p.Done()
	<-p.send
	assert.False(t, p.Send([]byte("three")), "closed peer")
}

func TestPeerInfo(t *testing.T) {
	p := newTestPeer("a", "ws://a/p2p", false, 1)
	before := p.Info().LastSeen

	time.Sleep(time.Millisecond)
	p.touch()

	info := p.Info()
	assert.Equal(t, "a", info.ID)
	assert.False(t, info.Inbound)
	assert.True(t, info.LastSeen.After(before))
}
