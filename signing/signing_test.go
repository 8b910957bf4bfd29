package signing_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/signing"
)

func TestSignVerify(t *testing.T) {
	priv, pub, err := signing.GenerateKey()
	require.NoError(t, err)
	require.Len(t, priv, signing.PrivateKeySize)
	require.Len(t, pub, signing.PublicKeySize)

	msg := []byte("alice pays bob 10")
	sig, err := signing.Sign(priv, msg)
	require.NoError(t, err)
	require.Len(t, sig, signing.SignatureSize)

	assert.True(t, signing.Verify(pub, msg, sig))
	assert.False(t, signing.Verify(pub, []byte("alice pays bob 11"), sig))

	_, otherPub, err := signing.GenerateKey()
	require.NoError(t, err)
	assert.False(t, signing.Verify(otherPub, msg, sig))
}

func TestSignIsDeterministic(t *testing.T) {
	priv, _, err := signing.GenerateKey()
	require.NoError(t, err)

	a, err := signing.Sign(priv, []byte("payload"))
	require.NoError(t, err)
	b, err := signing.Sign(priv, []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestPublicKeyMatchesGenerated(t *testing.T) {
	priv, pub, err := signing.GenerateKey()
	require.NoError(t, err)

	derived, err := signing.PublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, derived)
}

func TestInvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"short", []byte{1, 2, 3}},
		{"zero", make([]byte, signing.PrivateKeySize)},
		{"overflow", bytes.Repeat([]byte{0xff}, signing.PrivateKeySize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signing.Sign(tt.key, []byte("m"))
			assert.ErrorIs(t, err, signing.ErrInvalidKey)
		})
	}
}

func TestCheckSignatureErrors(t *testing.T) {
	priv, pub, err := signing.GenerateKey()
	require.NoError(t, err)
	sig, err := signing.Sign(priv, []byte("m"))
	require.NoError(t, err)

	badPub := append([]byte{0x07}, pub[1:]...)
	assert.ErrorIs(t, signing.CheckSignature(badPub, []byte("m"), sig), signing.ErrInvalidKey)
	assert.ErrorIs(t, signing.CheckSignature(pub[:10], []byte("m"), sig), signing.ErrInvalidKey)

	tampered := bytes.Clone(sig)
	tampered[40] ^= 0x01
	assert.ErrorIs(t, signing.CheckSignature(pub, []byte("m"), tampered), signing.ErrBadSignature)

	assert.ErrorIs(t, signing.CheckSignature(pub, []byte("m"), make([]byte, signing.SignatureSize)), signing.ErrBadSignature)
	assert.ErrorIs(t, signing.CheckSignature(pub, []byte("m"), sig[:63]), signing.ErrBadSignature)
	assert.NoError(t, signing.CheckSignature(pub, []byte("m"), sig))
}

func TestCheckSignatureRejectsHighS(t *testing.T) {
	priv, pub, err := signing.GenerateKey()
	require.NoError(t, err)
	msg := []byte("alice pays bob 10")
	sig, err := signing.Sign(priv, msg)
	require.NoError(t, err)

	var s secp256k1.ModNScalar
	require.False(t, s.SetByteSlice(sig[32:]))
	require.False(t, s.IsOverHalfOrder(), "Sign must emit low-S signatures")

	s.Negate()
	flipped := bytes.Clone(sig)
	s.PutBytesUnchecked(flipped[32:])

	assert.ErrorIs(t, signing.CheckSignature(pub, msg, flipped), signing.ErrBadSignature)
	assert.False(t, signing.Verify(pub, msg, flipped))
	assert.True(t, signing.Verify(pub, msg, sig))
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	first, err := signing.LoadOrCreateKey(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := signing.LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0o600))

	_, err := signing.LoadOrCreateKey(path)
	assert.ErrorIs(t, err, signing.ErrInvalidKey)
}
