// Package checkpoint provides durable run-state snapshots and the
// checkpoint/restart protocol: save state, mark a restart as pending,
// hand control to an external supervisor, and resume from the snapshot on
// the next process start.
package checkpoint

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is a durable blob store keyed by string. Get returns (nil, nil)
// when the key does not exist; a missing blob is not an error.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// MemoryStore implements Store with an in-memory map. Useful for tests and
// for runs that do not need durability.
type MemoryStore struct {
	mutex sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	blob := make([]byte, len(value))
	copy(blob, value)
	s.blobs[key] = blob
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	value, ok := s.blobs[key]
	if !ok {
		return nil, nil
	}
	blob := make([]byte, len(value))
	copy(blob, value)
	return blob, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var keys []string
	for key := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
