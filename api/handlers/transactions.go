package handlers

import (
	"net/http"

	"peerledger/blockchain"
	"peerledger/logger"
)

// HandlePostTransaction validates a signed transaction, queues it for
// mining and gossips it to peers.
func HandlePostTransaction(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	var tx blockchain.Transaction
	if err := decodeBody(w, r, &tx); err != nil {
		writeRejection(w, http.StatusBadRequest, asMalformedTransaction(err))
		return
	}

	if err := ledger.SubmitTransaction(r.Context(), &tx); err != nil {
		logger.Debug(r.Context(), "transaction rejected", "error", err)
		writeRejection(w, statusOf(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, Response{Status: "accepted", ID: tx.ID().String()})
}
