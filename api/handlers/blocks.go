package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"peerledger/blockchain"
	"peerledger/logger"
)

// HandlePostBlock appends an externally mined block to the local chain.
func HandlePostBlock(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	var block blockchain.Block
	if err := decodeBody(w, r, &block); err != nil {
		writeRejection(w, http.StatusBadRequest, asMalformedBlock(err))
		return
	}

	if err := ledger.SubmitBlock(r.Context(), &block); err != nil {
		logger.Debug(r.Context(), "block rejected", "index", block.Index, "error", err)
		writeRejection(w, statusOf(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{Status: "accepted", Hash: block.Hash.String()})
}

func HandleGetBlockByHash(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	hash, err := blockchain.ParseHash(mux.Vars(r)["hash"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Error: "block hash must be 64 hex characters"})
		return
	}

	block, ok := ledger.GetChain().BlockByHash(hash)
	if !ok {
		writeJSON(w, http.StatusNotFound, Response{Status: "error", Error: "block not found"})
		return
	}

	writeJSON(w, http.StatusOK, block)
}

// HandleMine mines pending transactions into a new block on top of the tip.
func HandleMine(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	block, err := ledger.Mine(r.Context())
	if err != nil {
		logger.Warn(r.Context(), "mining failed", "error", err)
		writeRejection(w, statusOf(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, block)
}

func asMalformedBlock(err error) error {
	if errors.Is(err, blockchain.ErrMalformedBlock) {
		return err
	}
	return fmt.Errorf("%w: %w", blockchain.ErrMalformedBlock, err)
}

func asMalformedTransaction(err error) error {
	if errors.Is(err, blockchain.ErrMalformedTransaction) {
		return err
	}
	return fmt.Errorf("%w: %w", blockchain.ErrMalformedTransaction, err)
}
