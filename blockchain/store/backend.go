package store

import (
	"encoding/binary"
	"fmt"

	"peerledger/blockchain"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// OpenBackend opens the persistence backend named by kind at path. The
// memory kind has no backend and returns nil.
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", BackendMemory:
		return nil, nil
	case BackendLevelDB:
		backend, err := NewLevelDBBackend(path)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case BackendBolt:
		backend, err := NewBoltBackend(path)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// blockKey encodes an index as 8 bytes big endian so that keys sort in
// chain order.
func blockKey(prefix []byte, index uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], index)
	return key
}

func decodeStoredBlock(index uint64, value []byte) (*blockchain.Block, error) {
	b, err := blockchain.DeserializeBlock(value)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrCorruptChain, index, err)
	}
	if b.Index != index {
		return nil, fmt.Errorf("%w: key %d holds block %d", ErrCorruptChain, index, b.Index)
	}
	return b, nil
}
