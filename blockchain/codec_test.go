package blockchain_test

import (
	"encoding/json"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerledger/blockchain"
	"peerledger/mocks"
)

func TestSerializeBlockRoundTrip(t *testing.T) {
	b := mocks.MustGenerateChain(2, 0)[1]

	data, err := blockchain.SerializeBlock(b)
	require.NoError(t, err)

	got, err := blockchain.DeserializeBlock(data)
	require.NoError(t, err)
	assert.Equal(t, b.Index, got.Index)
	assert.True(t, b.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, b.Transactions, got.Transactions)
	assert.Equal(t, b.PreviousHash, got.PreviousHash)
	assert.Equal(t, b.Hash, got.Hash)
	assert.Equal(t, b.Nonce, got.Nonce)
	assert.Equal(t, b.Hash, blockchain.ComputeHash(got))

	again, err := blockchain.SerializeBlock(got)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestSerializeBlockWireShape(t *testing.T) {
	data, err := blockchain.SerializeBlock(blockchain.Genesis())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, float64(0), fields["index"])
	assert.Equal(t, "2024-01-01T00:00:00Z", fields["timestamp"])
	assert.Equal(t, []any{}, fields["transactions"])
	assert.Equal(t, strings.Repeat("0", 64), fields["previous_hash"])
	assert.Equal(t, blockchain.GenesisHash.String(), fields["hash"])
	assert.Equal(t, float64(0), fields["nonce"])
}

func TestDeserializeBlockMalformed(t *testing.T) {
	valid, err := blockchain.SerializeBlock(mocks.MustGenerateChain(2, 0)[1])
	require.NoError(t, err)

	withField := func(key string, value any) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal(valid, &m))
		if value == nil {
			delete(m, key)
		} else {
			m[key] = value
		}
		out, err := json.Marshal(m)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{not json")},
		{"array", []byte("[]")},
		{"missing index", withField("index", nil)},
		{"missing timestamp", withField("timestamp", nil)},
		{"missing transactions", withField("transactions", nil)},
		{"missing previous hash", withField("previous_hash", nil)},
		{"missing hash", withField("hash", nil)},
		{"missing nonce", withField("nonce", nil)},
		{"negative index", withField("index", -1)},
		{"short hash", withField("hash", "abcd")},
		{"long previous hash", withField("previous_hash", strings.Repeat("ab", 33))},
		{"non hex hash", withField("hash", strings.Repeat("zz", 32))},
		{"bad timestamp", withField("timestamp", "yesterday")},
		{"null transactions", withField("transactions", []any(nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := blockchain.DeserializeBlock(tt.data)
			assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)
		})
	}
}

func TestDeserializeBlockMalformedTransaction(t *testing.T) {
	b := mocks.MustGenerateChain(2, 0)[1]
	data, err := blockchain.SerializeBlock(b)
	require.NoError(t, err)

	broken := strings.Replace(string(data), b.Transactions[0].Sender.String(), "00", 1)

	_, err = blockchain.DeserializeBlock([]byte(broken))
	assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)
	assert.ErrorIs(t, err, blockchain.ErrMalformedTransaction)
}

func TestTransactionUnmarshalRequiresFields(t *testing.T) {
	tx := mocks.GenerateRandomTransaction(9)
	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var decoded blockchain.Transaction
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *tx, decoded)

	for _, field := range []string{"sender", "receiver", "amount", "signature"} {
		t.Run(field, func(t *testing.T) {
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			delete(m, field)
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			err = json.Unmarshal(raw, &decoded)
			assert.ErrorIs(t, err, blockchain.ErrMalformedTransaction)
		})
	}

	err = json.Unmarshal([]byte(`{"sender":"`+tx.Sender.String()+`","receiver":"`+tx.Receiver.String()+
		`","amount":-5,"signature":"`+tx.Signature.String()+`"}`), &decoded)
	assert.ErrorIs(t, err, blockchain.ErrMalformedTransaction)
}

func TestSerializeChainRoundTrip(t *testing.T) {
	blocks := mocks.MustGenerateChain(4, 0)

	data, err := blockchain.SerializeChain(blocks)
	require.NoError(t, err)

	got, err := blockchain.DeserializeChain(data)
	require.NoError(t, err)
	require.Len(t, got, len(blocks))

	_, err = blockchain.NewValidator(0).ValidateChain(got)
	assert.NoError(t, err)

	empty, err := blockchain.SerializeChain(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(empty))

	_, err = blockchain.DeserializeChain([]byte(`[null]`))
	assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)
}

func TestDeserializeNeverPanics(t *testing.T) {
	f := fuzz.New().NilChance(0.2).NumElements(0, 64)

	for range 500 {
		var raw []byte
		f.Fuzz(&raw)
		assert.NotPanics(t, func() {
			_, _ = blockchain.DeserializeBlock(raw)
			_, _ = blockchain.DeserializeChain(raw)
		})
	}

	for range 500 {
		var fields map[string]string
		f.Fuzz(&fields)
		raw, err := json.Marshal(fields)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			_, err := blockchain.DeserializeBlock(raw)
			assert.ErrorIs(t, err, blockchain.ErrMalformedBlock)
		})
	}
}
