package handlers

import (
	"net/http"

	"peerledger/logger"
	"peerledger/validator"
)

type connectRequest struct {
	Address string `json:"address" validate:"required,url,startswith=ws"`
}

func HandleGetPeers(w http.ResponseWriter, r *http.Request, peers PeerManager) {
	writeJSON(w, http.StatusOK, peers.Peers())
}

// HandlePostPeer dials a websocket peer address, for example
// ws://10.0.0.2:6001/p2p.
func HandlePostPeer(w http.ResponseWriter, r *http.Request, peers PeerManager) {
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Error: err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Error: err.Error()})
		return
	}

	if err := peers.Connect(r.Context(), req.Address); err != nil {
		logger.Info(r.Context(), "peer connect failed", "address", req.Address, "error", err)
		writeJSON(w, http.StatusBadGateway, Response{Status: "error", Reason: reasonOf(err), Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, Response{Status: "connected"})
}
