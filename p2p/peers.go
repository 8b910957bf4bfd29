package p2p

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Peer is one open websocket session. Outbound frames go through a bounded
// queue drained by the peer's write goroutine.
type Peer struct {
	ID          string
	Address     string
	Inbound     bool
	ConnectedAt time.Time

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	mu       sync.Mutex
	lastSeen time.Time
}

// PeerInfo is a point-in-time description of a peer.
type PeerInfo struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Inbound     bool      `json:"inbound"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

func (p *Peer) Info() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		ID:          p.ID,
		Address:     p.Address,
		Inbound:     p.Inbound,
		ConnectedAt: p.ConnectedAt,
		LastSeen:    p.lastSeen,
	}
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// Send queues a frame without blocking. It reports false when the peer is
// closed or its queue is full; the frame is dropped in that case.
func (p *Peer) Send(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the peer's goroutines. The write goroutine closes the socket.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *Peer) Done() <-chan struct{} { return p.done }

// PeerSet tracks open peer sessions. It is safe for concurrent use.
type PeerSet struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	maxPeers int
}

func NewPeerSet(maxPeers int) *PeerSet {
	return &PeerSet{
		peers:    make(map[string]*Peer),
		maxPeers: maxPeers,
	}
}

// Add registers p. It returns false if the set is full or p.ID is taken.
func (ps *PeerSet) Add(p *Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.maxPeers > 0 && len(ps.peers) >= ps.maxPeers {
		return false
	}
	if _, ok := ps.peers[p.ID]; ok {
		return false
	}

	ps.peers[p.ID] = p
	return true
}

// Remove drops p if it is still the registered session for its ID.
func (ps *PeerSet) Remove(p *Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if cur, ok := ps.peers[p.ID]; !ok || cur != p {
		return false
	}
	delete(ps.peers, p.ID)
	return true
}

func (ps *PeerSet) Get(id string) (*Peer, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.peers[id]
	return p, ok
}

// HasAddress reports whether an outbound session to address is open.
func (ps *PeerSet) HasAddress(address string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.peers {
		if !p.Inbound && p.Address == address {
			return true
		}
	}
	return false
}

// Snapshot returns the current peers. Callers may iterate it without
// holding any lock.
func (ps *PeerSet) Snapshot() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, p)
	}
	return out
}

func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

func (ps *PeerSet) Full() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.maxPeers > 0 && len(ps.peers) >= ps.maxPeers
}
