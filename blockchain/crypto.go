package blockchain

import (
	"crypto/sha256"
	"encoding/binary"

	"peerledger/signing"
)

// SigningBytes is the canonical encoding covered by a transaction signature:
// sender || receiver || amount (big endian).
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 2*PublicKeySize+8)
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Receiver[:]...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Amount)
	return buf
}

// ID identifies a signed transaction. Two transactions with equal payloads
// but different signatures have different IDs.
func (tx *Transaction) ID() Hash32 {
	h := sha256.New()
	h.Write(tx.SigningBytes())
	h.Write(tx.Signature[:])
	var id Hash32
	copy(id[:], h.Sum(nil))
	return id
}

// SignTransaction fills in tx.Signature using privateKey. The sender field
// must already hold the matching public key.
func SignTransaction(tx *Transaction, privateKey []byte) error {
	sig, err := signing.Sign(privateKey, tx.SigningBytes())
	if err != nil {
		return err
	}
	copy(tx.Signature[:], sig)
	return nil
}

// NewSignedTransaction builds and signs a transfer from the key holder.
func NewSignedTransaction(privateKey []byte, receiver PublicKey, amount uint64) (Transaction, error) {
	pub, err := signing.PublicKey(privateKey)
	if err != nil {
		return Transaction{}, err
	}

	tx := Transaction{Receiver: receiver, Amount: amount}
	copy(tx.Sender[:], pub)
	if err := SignTransaction(&tx, privateKey); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ComputeHash returns sha256(index || timestamp || transactions ||
// previous_hash || nonce). Integers are 8-byte big endian and the timestamp
// is encoded as unix nanoseconds.
func ComputeHash(b *Block) Hash32 {
	h := sha256.New()
	var scratch [8]byte

	writeUint := func(n uint64) {
		binary.BigEndian.PutUint64(scratch[:], n)
		h.Write(scratch[:])
	}

	writeUint(b.Index)
	writeUint(uint64(b.Timestamp.UnixNano()))
	writeUint(uint64(len(b.Transactions)))
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		h.Write(tx.Sender[:])
		h.Write(tx.Receiver[:])
		writeUint(tx.Amount)
		h.Write(tx.Signature[:])
	}
	h.Write(b.PreviousHash[:])
	writeUint(b.Nonce)

	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}
