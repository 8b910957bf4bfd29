package p2p

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"peerledger/blockchain"
	"peerledger/logger"
	"peerledger/metrics"
	"peerledger/retry"
)

var (
	// ErrPeerUnreachable is returned when dialing a peer fails after retries.
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrTooManyPeers    = errors.New("peer limit reached")
	ErrServerStopped   = errors.New("p2p server stopped")
)

const (
	defaultMaxPeers        = 32
	defaultSendQueueSize   = 256
	defaultMaxMessageSize  = 32 << 20
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMessageRate     = 50
	defaultMessageBurst    = 100
	defaultRecentBlocksTTL = 5 * time.Minute
	defaultCleanupInterval = 30 * time.Second
	defaultDialAttempts    = 5
	defaultDialDelay       = 500 * time.Millisecond
)

// Ledger is the chain surface the protocol drives. Origins are peer IDs.
type Ledger interface {
	GetChain() *blockchain.Chain
	AcceptBlock(ctx context.Context, block *blockchain.Block, origin string) error
	AcceptTransaction(ctx context.Context, tx *blockchain.Transaction, origin string) error
	ResolveChain(ctx context.Context, blocks []*blockchain.Block, origin string) (bool, error)
}

// Config holds P2P server configuration. Zero fields take defaults.
type Config struct {
	NodeID          string
	MaxPeers        int
	SendQueueSize   int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MessageRate     rate.Limit
	MessageBurst    int
	RecentBlocksTTL time.Duration
	CleanupInterval time.Duration
	DialAttempts    uint
	DialDelay       time.Duration
	Metrics         *metrics.Metrics
	Logger          *zap.SugaredLogger
}

func (c *Config) setDefaults() {
	if c.MaxPeers == 0 {
		c.MaxPeers = defaultMaxPeers
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MessageRate <= 0 {
		c.MessageRate = defaultMessageRate
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = defaultMessageBurst
	}
	if c.RecentBlocksTTL <= 0 {
		c.RecentBlocksTTL = defaultRecentBlocksTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = defaultDialAttempts
	}
	if c.DialDelay <= 0 {
		c.DialDelay = defaultDialDelay
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.Logger == nil {
		c.Logger = logger.With("component", "p2p")
	}
}

// Server runs the peer synchronization protocol over websockets. It
// accepts inbound sessions through ServeHTTP and opens outbound ones with
// Connect.
type Server struct {
	config   Config
	ledger   Ledger
	peers    *PeerSet
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	recentBlocks   map[blockchain.Hash32]time.Time
	recentBlocksMu sync.Mutex

	// lifecycleMu orders cancel against wg.Add, so no goroutine is added
	// once Stop has begun waiting.
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewServer(config Config, ledger Ledger) *Server {
	config.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config: config,
		ledger: ledger,
		peers:  NewPeerSet(config.MaxPeers),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers are nodes, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		log:          config.Logger.With("node", config.NodeID),
		metrics:      config.Metrics,
		recentBlocks: make(map[blockchain.Hash32]time.Time),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches background maintenance. Peer sessions are accepted as soon
// as the server is mounted, Start is not required for that.
func (s *Server) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go s.periodicCleanup()
}

// Stop closes every peer session and waits for their goroutines.
func (s *Server) Stop() {
	s.lifecycleMu.Lock()
	s.cancel()
	s.lifecycleMu.Unlock()

	for _, p := range s.peers.Snapshot() {
		p.Close()
	}
	s.wg.Wait()
}

func (s *Server) Peers() []PeerInfo {
	snapshot := s.peers.Snapshot()
	out := make([]PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, p.Info())
	}
	return out
}

func (s *Server) PeerCount() int { return s.peers.Len() }

// ServeHTTP upgrades an inbound request to a peer session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, ErrServerStopped.Error(), http.StatusServiceUnavailable)
		return
	}
	if s.peers.Full() {
		http.Error(w, ErrTooManyPeers.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.log.Debugw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if err := s.addPeer(conn, r.RemoteAddr, true); err != nil {
		s.log.Infow("rejected inbound peer", "remote", r.RemoteAddr, "error", err)
	}
}

// Connect dials a peer's websocket URL, retrying with backoff. Connecting
// to an address that already has an outbound session is a no-op.
func (s *Server) Connect(ctx context.Context, address string) error {
	if s.peers.HasAddress(address) {
		return nil
	}

	r := retry.New(
		retry.WithAttempts(s.config.DialAttempts),
		retry.WithDelay(s.config.DialDelay),
		retry.WithMaxDelay(8*s.config.DialDelay),
		retry.WithOnRetry(func(attempt uint, err error) {
			s.log.Debugw("dial failed, retrying", "address", address, "attempt", attempt, "error", err)
		}),
	)

	var conn *websocket.Conn
	err := r.Execute(ctx, func() error {
		c, resp, err := s.dialer.DialContext(ctx, address, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, address, err)
	}

	return s.addPeer(conn, address, false)
}

func (s *Server) addPeer(conn *websocket.Conn, address string, inbound bool) error {
	now := time.Now()
	p := &Peer{
		ID:          conn.RemoteAddr().String(),
		Address:     address,
		Inbound:     inbound,
		ConnectedAt: now,
		conn:        conn,
		send:        make(chan []byte, s.config.SendQueueSize),
		done:        make(chan struct{}),
		limiter:     rate.NewLimiter(s.config.MessageRate, s.config.MessageBurst),
		lastSeen:    now,
	}
	if !inbound {
		// Keep outbound IDs distinct from an inbound session from the same host.
		p.ID = "out:" + p.ID
	}
	p.log = s.log.With("peer", p.ID)

	s.lifecycleMu.Lock()
	if s.ctx.Err() != nil {
		s.lifecycleMu.Unlock()
		_ = conn.Close()
		return ErrServerStopped
	}
	if !s.peers.Add(p) {
		s.lifecycleMu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrTooManyPeers.Error()),
			time.Now().Add(s.config.WriteWait))
		_ = conn.Close()
		return ErrTooManyPeers
	}
	s.wg.Add(2)
	s.lifecycleMu.Unlock()

	s.metrics.SetPeerCount(s.peers.Len())
	p.log.Infow("peer connected", "address", address, "inbound", inbound)

	go s.writePump(p)
	go s.readPump(p)

	announceTip(s, p)
	return nil
}

func (s *Server) removePeer(p *Peer) {
	if s.peers.Remove(p) {
		s.metrics.SetPeerCount(s.peers.Len())
		p.log.Infow("peer disconnected")
	}
}

// readPump reads frames until the session ends. Each frame is handled in
// order on this goroutine; a bad frame is dropped and the session kept.
func (s *Server) readPump(p *Peer) {
	defer s.wg.Done()
	defer func() {
		s.removePeer(p)
		p.Close()
	}()

	p.conn.SetReadLimit(s.config.MaxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	p.conn.SetPongHandler(func(string) error {
		p.touch()
		return p.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Infow("peer read failed", "error", err)
			}
			return
		}

		p.touch()
		_ = p.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))

		if !p.limiter.Allow() {
			s.metrics.MessageDropped("rate_limited")
			p.log.Debugw("dropping message over rate limit")
			continue
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			s.metrics.MessageDropped("malformed")
			p.log.Warnw("dropping malformed message", "error", err)
			continue
		}

		ProcessMessage(s, p, msg)
	}
}

// writePump drains the send queue and keeps the session alive with pings.
// It owns the socket and closes it on exit.
func (s *Server) writePump(p *Peer) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.log.Debugw("peer write failed", "error", err)
				p.Close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.Close()
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.config.WriteWait))
			return
		}
	}
}

// send encodes msg and queues it for p.
func (s *Server) send(p *Peer, msg *Message) bool {
	data, err := msg.Encode()
	if err != nil {
		p.log.Errorw("failed to encode message", "type", msg.Type, "error", err)
		return false
	}
	if !p.Send(data) {
		s.metrics.MessageDropped("send_queue_full")
		p.log.Warnw("send queue full, dropping message", "type", msg.Type)
		return false
	}
	return true
}

// markSeen records hash and reports whether it was already seen within
// the TTL.
func (s *Server) markSeen(hash blockchain.Hash32) bool {
	s.recentBlocksMu.Lock()
	defer s.recentBlocksMu.Unlock()

	if added, ok := s.recentBlocks[hash]; ok && time.Since(added) <= s.config.RecentBlocksTTL {
		return true
	}
	s.recentBlocks[hash] = time.Now()
	return false
}

func (s *Server) forget(hash blockchain.Hash32) {
	s.recentBlocksMu.Lock()
	delete(s.recentBlocks, hash)
	s.recentBlocksMu.Unlock()
}

func (s *Server) periodicCleanup() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.cleanRecentBlocks(now)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) cleanRecentBlocks(now time.Time) {
	s.recentBlocksMu.Lock()
	defer s.recentBlocksMu.Unlock()

	cleaned := 0
	for hash, added := range s.recentBlocks {
		if now.Sub(added) > s.config.RecentBlocksTTL {
			delete(s.recentBlocks, hash)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.log.Debugw("cleaned recent blocks", "count", cleaned)
	}
}
