package p2p

import (
	"encoding/json"
	"errors"
	"fmt"

	"peerledger/blockchain"
)

// MessageType names a peer message on the wire.
type MessageType string

const (
	MessageTypeNewBlock       MessageType = "NewBlock"
	MessageTypeChainRequest   MessageType = "ChainRequest"
	MessageTypeChainResponse  MessageType = "ChainResponse"
	MessageTypeNewTransaction MessageType = "NewTransaction"
)

// ErrMalformedMessage is returned for frames that are not a well formed
// peer message.
var ErrMalformedMessage = errors.New("malformed peer message")

// Message is the JSON envelope exchanged between peers. Only the field
// matching Type is set.
type Message struct {
	Type        MessageType             `json:"type"`
	Block       *blockchain.Block       `json:"block,omitempty"`
	Chain       []*blockchain.Block     `json:"chain,omitempty"`
	Transaction *blockchain.Transaction `json:"transaction,omitempty"`
}

func NewBlockMessage(b *blockchain.Block) *Message {
	return &Message{Type: MessageTypeNewBlock, Block: b}
}

func ChainRequestMessage() *Message {
	return &Message{Type: MessageTypeChainRequest}
}

func ChainResponseMessage(blocks []*blockchain.Block) *Message {
	return &Message{Type: MessageTypeChainResponse, Chain: blocks}
}

func NewTransactionMessage(tx *blockchain.Transaction) *Message {
	return &Message{Type: MessageTypeNewTransaction, Transaction: tx}
}

// Encode returns the wire form of m.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a frame and checks that the payload required by its
// type is present. Failures wrap ErrMalformedMessage and, for bad blocks or
// transactions, the blockchain decode error as well.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case MessageTypeNewBlock:
		if msg.Block == nil {
			return nil, fmt.Errorf("%w: %s without block", ErrMalformedMessage, msg.Type)
		}
	case MessageTypeChainResponse:
		if len(msg.Chain) == 0 {
			return nil, fmt.Errorf("%w: %s without chain", ErrMalformedMessage, msg.Type)
		}
		for i, b := range msg.Chain {
			if b == nil {
				return nil, fmt.Errorf("%w: null block at position %d", ErrMalformedMessage, i)
			}
		}
	case MessageTypeNewTransaction:
		if msg.Transaction == nil {
			return nil, fmt.Errorf("%w: %s without transaction", ErrMalformedMessage, msg.Type)
		}
	case MessageTypeChainRequest:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}

	return &msg, nil
}
