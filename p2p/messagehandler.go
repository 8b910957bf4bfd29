package p2p

import (
	"errors"

	"peerledger/blockchain"
	"peerledger/blockchain/processing"
	"peerledger/mempool"
)

// ProcessMessage dispatches a decoded frame from peer. Handlers never close
// the session; failures are logged and the frame is dropped.
func ProcessMessage(server *Server, peer *Peer, msg *Message) {
	switch msg.Type {
	case MessageTypeNewBlock:
		handleNewBlock(server, peer, msg.Block)
	case MessageTypeChainRequest:
		handleChainRequest(server, peer)
	case MessageTypeChainResponse:
		handleChainResponse(server, peer, msg.Chain)
	case MessageTypeNewTransaction:
		handleNewTransaction(server, peer, msg.Transaction)
	default:
		peer.log.Warnw("unknown message type", "type", msg.Type)
	}
}

// handleNewBlock appends an announced block when it extends the tip. A block
// that does not link and is not behind us means the peer has a chain we lack,
// so the full chain is requested.
func handleNewBlock(server *Server, peer *Peer, block *blockchain.Block) {
	if server.markSeen(block.Hash) {
		peer.log.Debugw("ignoring recently seen block", "hash", block.Hash.Short())
		return
	}

	err := server.ledger.AcceptBlock(server.ctx, block, peer.ID)
	if err != nil && !errors.Is(err, processing.ErrBlockKnown) {
		// The hash is only claimed until the block is accepted; a rejected
		// copy must not shadow a valid block carrying the same hash.
		server.forget(block.Hash)
	}

	switch {
	case err == nil:
		peer.log.Infow("accepted block from peer", "index", block.Index, "hash", block.Hash.Short())
	case errors.Is(err, processing.ErrBlockKnown):
	case errors.Is(err, blockchain.ErrLinkMismatch):
		if block.Index < uint64(server.ledger.GetChain().Len()) {
			peer.log.Debugw("ignoring stale block", "index", block.Index, "hash", block.Hash.Short())
			return
		}
		peer.log.Infow("block does not extend tip, requesting chain", "index", block.Index, "hash", block.Hash.Short())
		requestChain(server, peer)
	default:
		peer.log.Warnw("rejected block from peer", "index", block.Index, "hash", block.Hash.Short(),
			"reason", blockchain.Reason(err), "error", err)
	}
}

func handleChainRequest(server *Server, peer *Peer) {
	blocks := server.ledger.GetChain().Blocks()
	if server.send(peer, ChainResponseMessage(blocks)) {
		peer.log.Debugw("sent chain", "length", len(blocks))
	}
}

func handleChainResponse(server *Server, peer *Peer, blocks []*blockchain.Block) {
	replaced, err := server.ledger.ResolveChain(server.ctx, blocks, peer.ID)
	if err != nil {
		peer.log.Warnw("rejected chain from peer", "length", len(blocks),
			"reason", blockchain.Reason(err), "error", err)
		return
	}
	if !replaced {
		peer.log.Debugw("kept local chain", "candidate_length", len(blocks))
		return
	}
	peer.log.Infow("adopted chain from peer", "length", len(blocks))
}

func handleNewTransaction(server *Server, peer *Peer, tx *blockchain.Transaction) {
	err := server.ledger.AcceptTransaction(server.ctx, tx, peer.ID)
	switch {
	case err == nil:
	case errors.Is(err, mempool.ErrDuplicate):
	default:
		peer.log.Debugw("rejected transaction from peer", "reason", blockchain.Reason(err), "error", err)
	}
}
