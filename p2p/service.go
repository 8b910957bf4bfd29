package p2p

import (
	"peerledger/blockchain"
)

// BroadcastBlock announces block to every peer except origin. Blocks we
// announce are marked seen so echoes from peers are ignored.
func (s *Server) BroadcastBlock(block *blockchain.Block, origin string) {
	s.markSeen(block.Hash)
	sent := s.broadcast(NewBlockMessage(block), origin)
	s.log.Debugw("relayed block", "index", block.Index, "hash", block.Hash.Short(), "peers", sent)
}

// BroadcastTransaction relays tx to every peer except origin.
func (s *Server) BroadcastTransaction(tx *blockchain.Transaction, origin string) {
	sent := s.broadcast(NewTransactionMessage(tx), origin)
	s.log.Debugw("relayed transaction", "peers", sent)
}

// broadcast encodes msg once and queues it on every peer except the one
// with ID exclude. It never blocks on a slow peer.
func (s *Server) broadcast(msg *Message, exclude string) int {
	data, err := msg.Encode()
	if err != nil {
		s.log.Errorw("failed to encode message", "type", msg.Type, "error", err)
		return 0
	}

	sent := 0
	for _, p := range s.peers.Snapshot() {
		if p.ID == exclude {
			continue
		}
		if !p.Send(data) {
			s.metrics.MessageDropped("send_queue_full")
			p.log.Warnw("send queue full, dropping message", "type", msg.Type)
			continue
		}
		sent++
	}
	return sent
}

// announceTip tells a newly connected peer about our tip. A peer that is
// behind answers with ChainRequest.
func announceTip(s *Server, p *Peer) {
	tip := s.ledger.GetChain().Tip()
	s.send(p, NewBlockMessage(tip))
}

func requestChain(s *Server, p *Peer) {
	s.send(p, ChainRequestMessage())
}
