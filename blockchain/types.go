package blockchain

import (
	"encoding/hex"
	"fmt"
	"time"
)

const (
	HashSize      = 32
	PublicKeySize = 33 // compressed secp256k1 point
	SignatureSize = 64 // compact R||S
)

type Hash32 [HashSize]byte
type PublicKey [PublicKeySize]byte
type Signature [SignatureSize]byte

// ZeroHash is the previous hash of the genesis block.
var ZeroHash Hash32

func decodeFixedHex(dst []byte, text []byte, what string) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("%s must be %d hex encoded bytes, got %d characters", what, len(dst), len(text))
	}
	if _, err := hex.Decode(dst, text); err != nil {
		return fmt.Errorf("%s is not valid hex: %w", what, err)
	}
	return nil
}

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 8 bytes in hex, for logging.
func (h Hash32) Short() string { return hex.EncodeToString(h[:8]) }

func (h Hash32) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash32) UnmarshalText(text []byte) error {
	return decodeFixedHex(h[:], text, "hash")
}

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PublicKey) UnmarshalText(text []byte) error {
	return decodeFixedHex(k[:], text, "public key")
}

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	return decodeFixedHex(s[:], text, "signature")
}

// ParseHash decodes a hex encoded 32-byte digest.
func ParseHash(s string) (Hash32, error) {
	var h Hash32
	err := h.UnmarshalText([]byte(s))
	return h, err
}

// ParsePublicKey decodes a hex encoded compressed public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	err := k.UnmarshalText([]byte(s))
	return k, err
}

// Transaction moves Amount from Sender to Receiver. Signature covers
// SigningBytes and must verify under Sender.
type Transaction struct {
	Sender    PublicKey `json:"sender"`
	Receiver  PublicKey `json:"receiver"`
	Amount    uint64    `json:"amount"`
	Signature Signature `json:"signature"`
}

// Block is treated as immutable once it has been hashed. Code holding a
// *Block obtained from a Chain must not modify it.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    time.Time     `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash Hash32        `json:"previous_hash"`
	Hash         Hash32        `json:"hash"`
	Nonce        uint64        `json:"nonce"`
}
