package blockchain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/blockchain"
	"peerledger/mocks"
	"peerledger/signing"
)

func TestComputeHashDeterministic(t *testing.T) {
	b := mocks.MustGenerateChain(2, 0)[1]

	first := blockchain.ComputeHash(b)
	for range 10 {
		assert.Equal(t, first, blockchain.ComputeHash(b))
	}
	assert.Equal(t, first, blockchain.ComputeHash(mocks.CloneBlock(b)))
}

func TestComputeHashCoversEveryField(t *testing.T) {
	base := mocks.MustGenerateChain(2, 0)[1]
	want := blockchain.ComputeHash(base)

	mutations := map[string]func(b *blockchain.Block){
		"index":         func(b *blockchain.Block) { b.Index++ },
		"timestamp":     func(b *blockchain.Block) { b.Timestamp = b.Timestamp.Add(time.Nanosecond) },
		"previous hash": func(b *blockchain.Block) { b.PreviousHash[0] ^= 1 },
		"nonce":         func(b *blockchain.Block) { b.Nonce++ },
		"amount":        func(b *blockchain.Block) { b.Transactions[0].Amount++ },
		"receiver":      func(b *blockchain.Block) { b.Transactions[0].Receiver[5] ^= 1 },
		"signature":     func(b *blockchain.Block) { b.Transactions[0].Signature[10] ^= 1 },
		"extra tx": func(b *blockchain.Block) {
			b.Transactions = append(b.Transactions, *mocks.GenerateRandomTransaction(1))
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := mocks.CloneBlock(base)
			mutate(c)
			assert.NotEqual(t, want, blockchain.ComputeHash(c))
		})
	}
}

func TestSignedTransaction(t *testing.T) {
	priv, sender := mocks.GenerateKeyPair()
	_, receiver := mocks.GenerateKeyPair()

	tx, err := blockchain.NewSignedTransaction(priv, receiver, 42)
	require.NoError(t, err)

	assert.Equal(t, sender, tx.Sender)
	assert.True(t, signing.Verify(tx.Sender[:], tx.SigningBytes(), tx.Signature[:]))

	other := tx
	other.Amount = 43
	assert.NotEqual(t, tx.ID(), other.ID())
	assert.False(t, signing.Verify(other.Sender[:], other.SigningBytes(), other.Signature[:]))
}

func TestNewSignedTransactionBadKey(t *testing.T) {
	_, err := blockchain.NewSignedTransaction([]byte{1, 2}, blockchain.PublicKey{}, 1)
	assert.ErrorIs(t, err, signing.ErrInvalidKey)
}
