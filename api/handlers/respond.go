package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"peerledger/blockchain"
	"peerledger/blockchain/processing"
	"peerledger/logger"
	"peerledger/mempool"
	"peerledger/p2p"
)

// MaxBodyBytes bounds request bodies. A full chain is never posted, so one
// block with its transactions is the largest legitimate body.
const MaxBodyBytes = 8 << 20

// Ledger is the node surface the handlers drive.
type Ledger interface {
	GetChain() *blockchain.Chain
	SubmitTransaction(ctx context.Context, tx *blockchain.Transaction) error
	SubmitBlock(ctx context.Context, block *blockchain.Block) error
	Mine(ctx context.Context) (*blockchain.Block, error)
}

// PeerManager lists and dials peers.
type PeerManager interface {
	Peers() []p2p.PeerInfo
	Connect(ctx context.Context, address string) error
}

// Response is the body of every non-data reply.
type Response struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(context.Background(), "failed to write response", "error", err)
	}
}

func writeRejection(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{Status: "rejected", Reason: reasonOf(err), Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// reasonOf names the rejection cause for API clients.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, mempool.ErrDuplicate), errors.Is(err, processing.ErrBlockKnown):
		return "duplicate"
	case errors.Is(err, mempool.ErrPoolFull):
		return "pool_full"
	case errors.Is(err, p2p.ErrPeerUnreachable):
		return "peer_unreachable"
	}
	return blockchain.Reason(err)
}

// statusOf maps a submission error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, mempool.ErrDuplicate), errors.Is(err, processing.ErrBlockKnown),
		errors.Is(err, blockchain.ErrLinkMismatch):
		return http.StatusConflict
	case errors.Is(err, mempool.ErrPoolFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	var verr *blockchain.ValidationError
	if errors.As(err, &verr) || errors.Is(err, blockchain.ErrMalformedBlock) ||
		errors.Is(err, blockchain.ErrMalformedTransaction) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
