package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"peerledger/blockchain"
)

var levelBlockPrefix = []byte("b/")

// LevelDBBackend stores each block under "b/" + big endian index.
type LevelDBBackend struct {
	once sync.Once
	db   *leveldb.DB
}

func NewLevelDBBackend(directory string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}

	return &LevelDBBackend{db: db}, nil
}

func (l *LevelDBBackend) Load() ([]*blockchain.Block, error) {
	iter := l.db.NewIterator(util.BytesPrefix(levelBlockPrefix), nil)
	defer iter.Release()

	var blocks []*blockchain.Block
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(levelBlockPrefix)+8 {
			return nil, fmt.Errorf("%w: unexpected key %x", ErrCorruptChain, key)
		}

		index := binary.BigEndian.Uint64(key[len(levelBlockPrefix):])
		if index != uint64(len(blocks)) {
			return nil, fmt.Errorf("%w: missing block %d", ErrCorruptChain, len(blocks))
		}

		b, err := decodeStoredBlock(index, iter.Value())
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}

	return blocks, iter.Error()
}

func (l *LevelDBBackend) Append(block *blockchain.Block) error {
	value, err := blockchain.SerializeBlock(block)
	if err != nil {
		return err
	}
	return l.db.Put(blockKey(levelBlockPrefix, block.Index), value, &opt.WriteOptions{Sync: true})
}

func (l *LevelDBBackend) Replace(blocks []*blockchain.Block) error {
	batch := new(leveldb.Batch)

	iter := l.db.NewIterator(util.BytesPrefix(levelBlockPrefix), nil)
	for iter.Next() {
		index := binary.BigEndian.Uint64(iter.Key()[len(levelBlockPrefix):])
		if index >= uint64(len(blocks)) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}

	for _, b := range blocks {
		value, err := blockchain.SerializeBlock(b)
		if err != nil {
			return err
		}
		batch.Put(blockKey(levelBlockPrefix, b.Index), value)
	}

	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (l *LevelDBBackend) Close() error {
	var err error
	l.once.Do(func() {
		err = l.db.Close()
	})
	return err
}
