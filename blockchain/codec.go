package blockchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"peerledger/validator"
)

// Wire forms use pointer fields so that a missing field can be told apart
// from a zero value.
type transactionWire struct {
	Sender    *PublicKey `json:"sender" validate:"required"`
	Receiver  *PublicKey `json:"receiver" validate:"required"`
	Amount    *uint64    `json:"amount" validate:"required"`
	Signature *Signature `json:"signature" validate:"required"`
}

type blockWire struct {
	Index        *uint64        `json:"index" validate:"required"`
	Timestamp    *string        `json:"timestamp" validate:"required"`
	Transactions *[]Transaction `json:"transactions" validate:"required"`
	PreviousHash *Hash32        `json:"previous_hash" validate:"required"`
	Hash         *Hash32        `json:"hash" validate:"required"`
	Nonce        *uint64        `json:"nonce" validate:"required"`
}

func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w transactionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if err := validator.Validate(w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	*tx = Transaction{
		Sender:    *w.Sender,
		Receiver:  *w.Receiver,
		Amount:    *w.Amount,
		Signature: *w.Signature,
	}
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}

	return json.Marshal(struct {
		Index        uint64        `json:"index"`
		Timestamp    string        `json:"timestamp"`
		Transactions []Transaction `json:"transactions"`
		PreviousHash Hash32        `json:"previous_hash"`
		Hash         Hash32        `json:"hash"`
		Nonce        uint64        `json:"nonce"`
	}{
		Index:        b.Index,
		Timestamp:    b.Timestamp.UTC().Format(time.RFC3339Nano),
		Transactions: txs,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
	})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return asMalformed(err, ErrMalformedBlock)
	}
	if err := validator.Validate(w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrMalformedBlock, err)
	}

	*b = Block{
		Index:        *w.Index,
		Timestamp:    ts.UTC(),
		Transactions: *w.Transactions,
		PreviousHash: *w.PreviousHash,
		Hash:         *w.Hash,
		Nonce:        *w.Nonce,
	}
	return nil
}

// SerializeBlock encodes b in the peer wire schema.
func SerializeBlock(b *Block) ([]byte, error) {
	return json.Marshal(b)
}

// DeserializeBlock decodes a block. Any structural violation is reported
// as ErrMalformedBlock.
func DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, asMalformed(err, ErrMalformedBlock)
	}
	return &b, nil
}

// SerializeChain encodes blocks as a JSON array, the ChainResponse and
// persistence schema.
func SerializeChain(blocks []*Block) ([]byte, error) {
	if blocks == nil {
		blocks = []*Block{}
	}
	return json.Marshal(blocks)
}

// DeserializeChain decodes a JSON array of blocks. It does not validate
// links or hashes.
func DeserializeChain(data []byte) ([]*Block, error) {
	var blocks []*Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, asMalformed(err, ErrMalformedBlock)
	}
	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: null block at position %d", ErrMalformedBlock, i)
		}
	}
	return blocks, nil
}

// asMalformed tags err with kind unless it already carries it. A nested
// ErrMalformedTransaction stays visible under errors.Is.
func asMalformed(err error, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
