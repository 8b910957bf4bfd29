package blockchain

import (
	"context"
	"errors"
	"time"
)

type BlockCreationParams struct {
	Previous     *Block
	Transactions []Transaction
	Timestamp    time.Time // zero means now
	Difficulty   uint8
	Workers      int
}

// NewBlock builds the successor of params.Previous and mines it to the
// requested difficulty.
func NewBlock(ctx context.Context, params BlockCreationParams) (*Block, error) {
	if params.Previous == nil {
		return nil, errors.New("previous block is required")
	}

	ts := params.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC().Round(0)
	if ts.Before(params.Previous.Timestamp) {
		ts = params.Previous.Timestamp
	}

	txs := make([]Transaction, len(params.Transactions))
	copy(txs, params.Transactions)

	b := &Block{
		Index:        params.Previous.Index + 1,
		Timestamp:    ts,
		Transactions: txs,
		PreviousHash: params.Previous.Hash,
	}

	if err := MineCorrectNonce(ctx, b, params.Difficulty, params.Workers); err != nil {
		return nil, err
	}

	return b, nil
}
