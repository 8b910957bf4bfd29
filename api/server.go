package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"peerledger/api/handlers"
	"peerledger/logger"
	"peerledger/metrics"
)

// Server is the node's HTTP API.
type Server struct {
	ledger  handlers.Ledger
	peers   handlers.PeerManager
	metrics *metrics.Metrics
	router  *mux.Router
	http    *http.Server
	log     *zap.SugaredLogger
}

func NewServer(ledger handlers.Ledger, peers handlers.PeerManager, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		ledger:  ledger,
		peers:   peers,
		metrics: m,
		router:  mux.NewRouter(),
		log:     logger.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	// Transaction endpoints
	s.router.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandlePostTransaction(w, r, s.ledger)
	}).Methods(http.MethodPost)

	// Block endpoints
	s.router.HandleFunc("/api/blocks", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandlePostBlock(w, r, s.ledger)
	}).Methods(http.MethodPost)
	s.router.HandleFunc("/api/blocks/{hash}", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleGetBlockByHash(w, r, s.ledger)
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/mine", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleMine(w, r, s.ledger)
	}).Methods(http.MethodPost)

	// Chain endpoints
	s.router.HandleFunc("/api/chain", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleGetChain(w, r, s.ledger)
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/chain/height", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleChainHeight(w, r, s.ledger)
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/chain/head", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleChainHead(w, r, s.ledger)
	}).Methods(http.MethodGet)

	// Peer endpoints
	s.router.HandleFunc("/api/peers", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleGetPeers(w, r, s.peers)
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/peers", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandlePostPeer(w, r, s.peers)
	}).Methods(http.MethodPost)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debugw("api request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
