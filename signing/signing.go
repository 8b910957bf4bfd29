// Package signing wraps secp256k1 ECDSA for transaction payloads.
//
// Messages are hashed with SHA-256 before signing. Public keys travel as
// 33-byte compressed points and signatures as 64-byte compact R||S values.
// Scalar and field comparisons inside verification are constant time. Only
// low-S signatures are accepted, so a signature has a single valid encoding.
package signing

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	PrivateKeySize = secp256k1.PrivKeyBytesLen
	PublicKeySize  = secp256k1.PubKeyBytesLenCompressed
	SignatureSize  = 64
)

var (
	// ErrInvalidKey is returned for private or public key bytes that do not
	// decode to a usable secp256k1 key.
	ErrInvalidKey = errors.New("invalid key")

	// ErrBadSignature is returned when a signature is malformed or does not
	// verify against the message and public key.
	ErrBadSignature = errors.New("signature verification failed")
)

func parsePrivateKey(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, PrivateKeySize, len(b))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: private key outside curve order", ErrInvalidKey)
	}

	return secp256k1.NewPrivateKey(&scalar), nil
}

func parsePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(b))
	}

	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return pub, nil
}

func parseSignature(b []byte) (*ecdsa.Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrBadSignature, SignatureSize, len(b))
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(b[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("%w: R out of range", ErrBadSignature)
	}
	if overflow := s.SetByteSlice(b[32:]); overflow || s.IsZero() {
		return nil, fmt.Errorf("%w: S out of range", ErrBadSignature)
	}
	// N-S verifies as well as S; only the low form is canonical.
	if s.IsOverHalfOrder() {
		return nil, fmt.Errorf("%w: S is not in canonical low form", ErrBadSignature)
	}

	return ecdsa.NewSignature(&r, &s), nil
}

// GenerateKey returns a fresh private key and its compressed public key.
func GenerateKey() (privateKey, publicKey []byte, err error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}

	return key.Serialize(), key.PubKey().SerializeCompressed(), nil
}

// PublicKey derives the compressed public key for privateKey.
func PublicKey(privateKey []byte) ([]byte, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return key.PubKey().SerializeCompressed(), nil
}

// Sign produces a deterministic (RFC 6979) compact signature over message.
func Sign(privateKey, message []byte) ([]byte, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(message)
	sig := ecdsa.Sign(key, digest[:])

	r, s := sig.R(), sig.S()
	out := make([]byte, SignatureSize)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])

	return out, nil
}

// CheckSignature reports why signature is not valid for message under
// publicKey: ErrInvalidKey for an undecodable key, ErrBadSignature otherwise.
func CheckSignature(publicKey, message, signature []byte) error {
	pub, err := parsePublicKey(publicKey)
	if err != nil {
		return err
	}

	sig, err := parseSignature(signature)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(message)
	if !sig.Verify(digest[:], pub) {
		return ErrBadSignature
	}

	return nil
}

// Verify reports whether signature is a valid signature of message by publicKey.
func Verify(publicKey, message, signature []byte) bool {
	return CheckSignature(publicKey, message, signature) == nil
}
