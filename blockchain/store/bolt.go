package store

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"peerledger/blockchain"
)

var boltBlocksBucket = []byte("blocks")

// BoltBackend stores blocks in a single bucket keyed by big endian index.
type BoltBackend struct {
	db *bbolt.DB
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBlocksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Load() ([]*blockchain.Block, error) {
	var blocks []*blockchain.Block

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBlocksBucket).ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: unexpected key %x", ErrCorruptChain, k)
			}

			index := binary.BigEndian.Uint64(k)
			if index != uint64(len(blocks)) {
				return fmt.Errorf("%w: missing block %d", ErrCorruptChain, len(blocks))
			}

			block, err := decodeStoredBlock(index, v)
			if err != nil {
				return err
			}
			blocks = append(blocks, block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return blocks, nil
}

func (b *BoltBackend) Append(block *blockchain.Block) error {
	value, err := blockchain.SerializeBlock(block)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBlocksBucket).Put(blockKey(nil, block.Index), value)
	})
}

func (b *BoltBackend) Replace(blocks []*blockchain.Block) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(boltBlocksBucket); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(boltBlocksBucket)
		if err != nil {
			return err
		}

		for _, block := range blocks {
			value, err := blockchain.SerializeBlock(block)
			if err != nil {
				return err
			}
			if err := bucket.Put(blockKey(nil, block.Index), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
