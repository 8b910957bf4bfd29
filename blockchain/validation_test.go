package blockchain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/blockchain"
	"peerledger/mocks"
)

func TestValidateTransaction(t *testing.T) {
	v := blockchain.NewValidator(0)
	valid := mocks.GenerateRandomTransaction(10)

	assert.NoError(t, v.ValidateTransaction(valid))

	tests := []struct {
		name   string
		mutate func(tx *blockchain.Transaction)
	}{
		{"amount changed", func(tx *blockchain.Transaction) { tx.Amount++ }},
		{"receiver changed", func(tx *blockchain.Transaction) { tx.Receiver[3] ^= 1 }},
		{"zero signature", func(tx *blockchain.Transaction) { tx.Signature = blockchain.Signature{} }},
		{"sender not on curve", func(tx *blockchain.Transaction) { tx.Sender[0] = 0x05 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := *valid
			tt.mutate(&tx)

			err := v.ValidateTransaction(&tx)
			assert.ErrorIs(t, err, blockchain.ErrSignatureInvalid)

			var verr *blockchain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, blockchain.StageCryptographic, verr.Stage)
		})
	}
}

func TestValidateChainAcceptsGeneratedChains(t *testing.T) {
	for _, difficulty := range []uint8{0, 6} {
		blocks := mocks.MustGenerateChain(6, difficulty)

		chain, err := blockchain.NewValidator(difficulty).ValidateChain(blocks)
		require.NoError(t, err)
		assert.Equal(t, 6, chain.Len())
	}
}

func TestValidateChainRejectsAnyMutatedHash(t *testing.T) {
	blocks := mocks.MustGenerateChain(5, 0)
	v := blockchain.NewValidator(0)

	for i := range blocks {
		mutated := append([]*blockchain.Block(nil), blocks...)
		c := mocks.CloneBlock(blocks[i])
		c.Hash[31] ^= 0x01
		mutated[i] = c

		_, err := v.ValidateChain(mutated)
		assert.Error(t, err, "block %d", i)
	}
}

func TestValidateBlock(t *testing.T) {
	blocks := mocks.MustGenerateChain(3, 0)
	prev := blocks[1]
	good := blocks[2]
	v := blockchain.NewValidator(0)

	require.NoError(t, v.ValidateBlock(good, prev))

	rehash := func(b *blockchain.Block) *blockchain.Block {
		b.Hash = blockchain.ComputeHash(b)
		return b
	}

	tests := []struct {
		name  string
		block func() *blockchain.Block
		kind  error
		stage blockchain.Stage
	}{
		{
			name:  "wrong index",
			block: func() *blockchain.Block { c := mocks.CloneBlock(good); c.Index = 5; return rehash(c) },
			kind:  blockchain.ErrLinkMismatch,
			stage: blockchain.StageStructural,
		},
		{
			name:  "wrong previous hash",
			block: func() *blockchain.Block { c := mocks.CloneBlock(good); c.PreviousHash[0] ^= 1; return rehash(c) },
			kind:  blockchain.ErrLinkMismatch,
			stage: blockchain.StageStructural,
		},
		{
			name: "timestamp before previous",
			block: func() *blockchain.Block {
				c := mocks.CloneBlock(good)
				c.Timestamp = prev.Timestamp.Add(-time.Second)
				return rehash(c)
			},
			kind:  blockchain.ErrMalformedBlock,
			stage: blockchain.StageStructural,
		},
		{
			name: "timestamp in the future",
			block: func() *blockchain.Block {
				c := mocks.CloneBlock(good)
				c.Timestamp = time.Now().Add(time.Hour)
				return rehash(c)
			},
			kind:  blockchain.ErrMalformedBlock,
			stage: blockchain.StageStructural,
		},
		{
			name: "duplicate transaction",
			block: func() *blockchain.Block {
				c := mocks.CloneBlock(good)
				c.Transactions = append(c.Transactions, c.Transactions[0])
				return rehash(c)
			},
			kind:  blockchain.ErrMalformedBlock,
			stage: blockchain.StageStructural,
		},
		{
			name:  "hash field tampered",
			block: func() *blockchain.Block { c := mocks.CloneBlock(good); c.Hash[0] ^= 1; return c },
			kind:  blockchain.ErrHashMismatch,
			stage: blockchain.StageCryptographic,
		},
		{
			name: "forged transaction",
			block: func() *blockchain.Block {
				c := mocks.CloneBlock(good)
				c.Transactions[0].Amount += 100
				return rehash(c)
			},
			kind:  blockchain.ErrSignatureInvalid,
			stage: blockchain.StageCryptographic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateBlock(tt.block(), prev)
			require.ErrorIs(t, err, tt.kind)

			var verr *blockchain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.stage, verr.Stage)
		})
	}
}

func TestValidateBlockProofOfWork(t *testing.T) {
	blocks := mocks.MustGenerateChain(2, 0)

	// Nonce 0 with difficulty 200 is never satisfied in practice.
	err := blockchain.NewValidator(200).ValidateBlock(blocks[1], blocks[0])
	assert.ErrorIs(t, err, blockchain.ErrProofOfWorkInsufficient)
	assert.Equal(t, "proof_of_work_insufficient", blockchain.Reason(err))

	// The genesis block is exempt.
	_, err = blockchain.NewValidator(200).ValidateChain(blocks[:1])
	assert.NoError(t, err)
}

func TestValidateChainStructure(t *testing.T) {
	v := blockchain.NewValidator(0)

	_, err := v.ValidateChain(nil)
	assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)

	fake := blockchain.Genesis()
	fake.Timestamp = fake.Timestamp.Add(time.Second)
	fake.Hash = blockchain.ComputeHash(fake)
	_, err = v.ValidateChain([]*blockchain.Block{fake})
	assert.ErrorIs(t, err, blockchain.ErrLinkMismatch)

	// A transaction recorded twice across blocks is a replay.
	blocks := mocks.MustGenerateChain(2, 0)
	replay, err := mocks.GenerateValidMinedBlock(blocks[1], blocks[1].Transactions, 0)
	require.NoError(t, err)
	_, err = v.ValidateChain(append(blocks, replay))
	assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", blockchain.Reason(nil))
	assert.Equal(t, "link_mismatch", blockchain.Reason(blockchain.ErrLinkMismatch))
	assert.Equal(t, "hash_mismatch", blockchain.Reason(blockchain.ErrHashMismatch))
	assert.Equal(t, "signature_invalid", blockchain.Reason(blockchain.ErrSignatureInvalid))
	assert.Equal(t, "malformed_transaction", blockchain.Reason(blockchain.ErrMalformedTransaction))
	assert.Equal(t, "internal", blockchain.Reason(errors.New("disk on fire")))
}
