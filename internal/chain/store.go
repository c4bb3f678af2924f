package chain

import (
	"errors"
	"sync"
)

// ErrBlockNotFound is returned by a BlockStore for an unknown hash.
var ErrBlockNotFound = errors.New("chain: block not found")

// BlockStore persists encoded blocks keyed by hash, plus the tail pointer.
//
// Stores hold raw bytes and never interpret them; all verification happens
// in Chain so that a store cannot vouch for its own contents.
type BlockStore interface {
	// GetBlock returns the encoded block stored under hash, or ErrBlockNotFound.
	GetBlock(hash string) ([]byte, error)
	// PutBlock durably stores an encoded block under hash.
	PutBlock(hash string, encoded []byte) error
	// GetTail returns the current tail hash, or "" for an empty store.
	GetTail() (string, error)
	// SetTail durably records the tail hash.
	SetTail(hash string) error
	Close() error
}

// MemoryStore is an in-memory BlockStore for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	tail   string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string][]byte)}
}

func (s *MemoryStore) GetBlock(hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) PutBlock(hash string, encoded []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[hash] = append([]byte(nil), encoded...)
	return nil
}

func (s *MemoryStore) GetTail() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail, nil
}

func (s *MemoryStore) SetTail(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tail = hash
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
