package handlers

import (
	"net/http"
)

// HandleGetChain returns the whole local chain in the same form peers
// exchange it.
func HandleGetChain(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	writeJSON(w, http.StatusOK, ledger.GetChain().Blocks())
}

func HandleChainHeight(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	writeJSON(w, http.StatusOK, map[string]int{"height": ledger.GetChain().Len()})
}

func HandleChainHead(w http.ResponseWriter, r *http.Request, ledger Ledger) {
	writeJSON(w, http.StatusOK, ledger.GetChain().Tip())
}
