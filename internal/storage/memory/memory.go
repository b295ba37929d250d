package memory

import (
	"context"
	"sync"

	"despesas/internal/storage"
)

// Store is an in-process KeyValue. Values are copied on the way in and out.
type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get implements storage.KeyValue
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements storage.KeyValue
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

// Writes returns how many Put calls succeeded.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
