// Package index implements the in-memory key->offset table and its
// on-disk serialization. The table is the authoritative record of which
// keys exist and where their values live in the append log.
package index

import (
	"sync"

	"github.com/dolthub/swiss"
)

// SwissIndex maps keys to value offsets using a swiss table.
type SwissIndex[K comparable] struct {
	table *swiss.Map[K, int64]
	mu    sync.RWMutex
}

// NewSwissIndex creates an index sized for capacity entries.
func NewSwissIndex[K comparable](capacity uint32) *SwissIndex[K] {
	return &SwissIndex[K]{
		table: swiss.NewMap[K, int64](capacity),
	}
}

func (s *SwissIndex[K]) Put(key K, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Put(key, offset)
}

func (s *SwissIndex[K]) Get(key K) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Get(key)
}

func (s *SwissIndex[K]) Del(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Delete(key)
}

func (s *SwissIndex[K]) Contains(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Has(key)
}

// Foreach visits every entry; returning false from f stops the walk.
func (s *SwissIndex[K]) Foreach(f func(key K, offset int64) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.table.Iter(func(key K, offset int64) bool {
		return !f(key, offset)
	})
}

func (s *SwissIndex[K]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Count()
}

func (s *SwissIndex[K]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Clear()
}
