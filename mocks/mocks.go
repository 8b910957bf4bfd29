// Package mocks generates keys, signed transactions and valid chains for
// tests.
package mocks

import (
	"context"
	"time"

	"peerledger/blockchain"
	"peerledger/signing"
)

// BlockInterval spaces the timestamps of generated blocks.
const BlockInterval = time.Second

// GenerateKeyPair returns a fresh secp256k1 private key and its public key.
// It panics if the system random source fails.
func GenerateKeyPair() ([]byte, blockchain.PublicKey) {
	priv, pub, err := signing.GenerateKey()
	if err != nil {
		panic(err)
	}

	var key blockchain.PublicKey
	copy(key[:], pub)
	return priv, key
}

// GenerateValidTransaction signs a transfer of amount from the holder of
// senderPriv to receiver.
func GenerateValidTransaction(senderPriv []byte, receiver blockchain.PublicKey, amount uint64) (*blockchain.Transaction, error) {
	tx, err := blockchain.NewSignedTransaction(senderPriv, receiver, amount)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GenerateRandomTransaction signs a transfer between two fresh keys.
func GenerateRandomTransaction(amount uint64) *blockchain.Transaction {
	priv, _ := GenerateKeyPair()
	_, receiver := GenerateKeyPair()

	tx, err := GenerateValidTransaction(priv, receiver, amount)
	if err != nil {
		panic(err)
	}
	return tx
}

// GenerateValidMinedBlock builds and mines the successor of prev holding
// transactions.
func GenerateValidMinedBlock(prev *blockchain.Block, transactions []blockchain.Transaction, difficulty uint8) (*blockchain.Block, error) {
	return blockchain.NewBlock(context.Background(), blockchain.BlockCreationParams{
		Previous:     prev,
		Transactions: transactions,
		Timestamp:    prev.Timestamp.Add(BlockInterval),
		Difficulty:   difficulty,
		Workers:      1,
	})
}

// ExtendChain appends n mined blocks to a copy of blocks. Each new block
// carries one transaction between fresh keys, so two extensions of the same
// prefix never collide.
func ExtendChain(blocks []*blockchain.Block, n int, difficulty uint8) ([]*blockchain.Block, error) {
	out := append([]*blockchain.Block(nil), blocks...)
	for range n {
		tx := GenerateRandomTransaction(1)
		b, err := GenerateValidMinedBlock(out[len(out)-1], []blockchain.Transaction{*tx}, difficulty)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GenerateChain returns a valid chain of length blocks, genesis included.
func GenerateChain(length int, difficulty uint8) ([]*blockchain.Block, error) {
	return ExtendChain([]*blockchain.Block{blockchain.Genesis()}, length-1, difficulty)
}

// MustGenerateChain is GenerateChain for tests that cannot proceed without
// a chain.
func MustGenerateChain(length int, difficulty uint8) []*blockchain.Block {
	blocks, err := GenerateChain(length, difficulty)
	if err != nil {
		panic(err)
	}
	return blocks
}

// CloneBlock returns a deep copy of b that can be mutated freely.
func CloneBlock(b *blockchain.Block) *blockchain.Block {
	c := *b
	c.Transactions = append([]blockchain.Transaction(nil), b.Transactions...)
	return &c
}
