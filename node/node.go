package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"peerledger/api"
	"peerledger/blockchain"
	"peerledger/blockchain/processing"
	"peerledger/blockchain/store"
	"peerledger/config"
	"peerledger/logger"
	"peerledger/mempool"
	"peerledger/metrics"
	"peerledger/p2p"
)

// P2PPath is where peers open their websocket sessions.
const P2PPath = "/p2p"

var ErrAlreadyStarted = errors.New("node already started")

// FullNode wires persistence, block processing, peer sync and the HTTP API
// together.
type FullNode struct {
	config config.NodeConfig
	log    *zap.SugaredLogger

	store     *store.MemoryChainStore
	pool      *mempool.Pool
	metrics   *metrics.Metrics
	processor *processing.BlockProcessor
	p2pServer *p2p.Server
	discovery *p2p.Discovery
	api       *api.Server

	mu          sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	group       *errgroup.Group
	p2pListener net.Listener
	apiListener net.Listener
}

// NewFullNode opens the configured chain store and builds every component.
// A persisted chain that cannot be opened or fails validation is fatal.
func NewFullNode(cfg config.NodeConfig) (*FullNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.With("node", cfg.NodeID)
	validator := blockchain.NewValidator(cfg.DifficultyTarget)

	chainStore, err := openStore(cfg, validator)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	pool := mempool.New(cfg.MempoolSize)

	opts := []processing.Option{
		processing.WithMetrics(m),
		processing.WithLogger(log.With("component", "processor")),
	}
	if cfg.MiningWorkers > 0 {
		opts = append(opts, processing.WithMiningWorkers(cfg.MiningWorkers))
	}
	processor := processing.NewBlockProcessor(chainStore, validator, pool, opts...)

	p2pServer := p2p.NewServer(p2p.Config{
		NodeID:   cfg.NodeID,
		MaxPeers: cfg.MaxPeers,
		Metrics:  m,
		Logger:   logger.With("component", "p2p"),
	}, processor)
	processor.SetBroadcaster(p2pServer)

	n := &FullNode{
		config:    cfg,
		log:       log,
		store:     chainStore,
		pool:      pool,
		metrics:   m,
		processor: processor,
		p2pServer: p2pServer,
		discovery: p2p.NewDiscovery(p2p.DiscoveryConfig{
			SeedPeers: cfg.PeerAddresses,
			Server:    p2pServer,
		}),
		api: api.NewServer(processor, p2pServer, m),
	}

	log.Infow("node initialized", "height", processor.GetChain().Len(),
		"tip", processor.GetChain().Tip().Hash.Short(),
		"difficulty", cfg.DifficultyTarget, "storage", cfg.StorageBackend)
	return n, nil
}

func openStore(cfg config.NodeConfig, v *blockchain.Validator) (*store.MemoryChainStore, error) {
	var path string
	switch cfg.StorageBackend {
	case store.BackendLevelDB:
		path = filepath.Join(cfg.PersistencePath, "chain.ldb")
	case store.BackendBolt:
		path = filepath.Join(cfg.PersistencePath, "chain.db")
	}
	if path != "" {
		if err := os.MkdirAll(cfg.PersistencePath, 0o700); err != nil {
			return nil, fmt.Errorf("create persistence directory: %w", err)
		}
	}

	backend, err := store.OpenBackend(cfg.StorageBackend, path)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageBackend, err)
	}

	chainStore, err := store.Open(backend, v)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
		}
		return nil, fmt.Errorf("open chain: %w", err)
	}
	return chainStore, nil
}

// Start binds both listeners and launches the peer server, the API and
// seed dialing. It returns once the node accepts connections.
func (n *FullNode) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}

	p2pListener, err := net.Listen("tcp", n.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen for peers on %s: %w", n.config.ListenAddress, err)
	}
	apiListener, err := net.Listen("tcp", n.config.APIAddress)
	if err != nil {
		_ = p2pListener.Close()
		return fmt.Errorf("listen for API on %s: %w", n.config.APIAddress, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	n.p2pServer.Start()

	router := mux.NewRouter()
	router.Handle(P2PPath, n.p2pServer)
	peerHTTP := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		if err := peerHTTP.Serve(p2pListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("peer server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return peerHTTP.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return n.api.Serve(gctx, apiListener)
	})
	group.Go(func() error {
		return n.discovery.Run(gctx)
	})

	n.started = true
	n.cancel = cancel
	n.group = group
	n.p2pListener = p2pListener
	n.apiListener = apiListener

	n.log.Infow("node started", "p2p", n.p2pAddrLocked(), "api", n.apiAddrLocked(),
		"seeds", len(n.config.PeerAddresses))
	return nil
}

// Stop shuts every component down and closes the store. It is safe to call
// more than once.
func (n *FullNode) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	cancel, group := n.cancel, n.group
	n.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		// Hijacked websocket sessions outlive http.Server.Shutdown.
		n.p2pServer.Stop()
		if err := group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	n.log.Infow("node stopped")
	return errors.Join(errs...)
}

// Run starts the node and blocks until ctx is done or a component fails,
// then stops it.
func (n *FullNode) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}

	n.mu.Lock()
	group := n.group
	n.mu.Unlock()

	failed := make(chan error, 1)
	go func() { failed <- group.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-failed:
		n.log.Errorw("node component failed", "error", runErr)
	}

	stopErr := n.Stop()
	if runErr != nil {
		return runErr
	}
	return stopErr
}

// P2PAddr is the websocket URL peers dial to reach this node.
func (n *FullNode) P2PAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.p2pAddrLocked()
}

// APIAddr is the base URL of the HTTP API.
func (n *FullNode) APIAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.apiAddrLocked()
}

func (n *FullNode) p2pAddrLocked() string {
	if n.p2pListener == nil {
		return ""
	}
	return "ws://" + dialable(n.p2pListener.Addr()) + P2PPath
}

func (n *FullNode) apiAddrLocked() string {
	if n.apiListener == nil {
		return ""
	}
	return "http://" + dialable(n.apiListener.Addr())
}

// dialable replaces an unspecified listen host with loopback.
func dialable(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort("127.0.0.1", fmt.Sprint(tcp.Port))
}

func (n *FullNode) Processor() *processing.BlockProcessor { return n.processor }

func (n *FullNode) P2P() *p2p.Server { return n.p2pServer }

func (n *FullNode) Metrics() *metrics.Metrics { return n.metrics }
