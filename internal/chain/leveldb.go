package chain

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var (
	blockPrefix = []byte("b:")
	tailKey     = []byte("tail")
)

// LevelDBStore persists blocks as LevelDB entries keyed "b:<hash>" and the
// tail hash under "tail". Writes are synced.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func blockKey(hash string) []byte {
	return append(append([]byte(nil), blockPrefix...), hash...)
}

func (s *LevelDBStore) GetBlock(hash string) ([]byte, error) {
	data, err := s.db.Get(blockKey(hash), &opt.ReadOptions{})
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}
	return data, nil
}

func (s *LevelDBStore) PutBlock(hash string, encoded []byte) error {
	if err := s.db.Put(blockKey(hash), encoded, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("put block %s: %w", hash, err)
	}
	return nil
}

func (s *LevelDBStore) GetTail() (string, error) {
	data, err := s.db.Get(tailKey, &opt.ReadOptions{})
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get tail: %w", err)
	}
	return string(data), nil
}

func (s *LevelDBStore) SetTail(hash string) error {
	if err := s.db.Put(tailKey, []byte(hash), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("set tail: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
