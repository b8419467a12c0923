package database

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed Store used in tests and for local development
// without a database. It implements the same version CAS semantics as the
// durable backends.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored state.
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	return &Record{Key: rec.Key, Version: rec.Version, Data: data}, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[key]
	switch {
	case version == 0 && exists:
		return 0, ErrVersionConflict
	case version != 0 && !exists:
		return 0, ErrVersionConflict
	case version != 0 && stored.Version != version:
		return 0, ErrVersionConflict
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	next := version + 1
	s.records[key] = &Record{Key: key, Version: next, Data: copied}
	return next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }
