// Package dedup keeps a short memory of recently handled requests so that
// repeated submissions of the same link are acknowledged without new work.
// It is a fast path only; the processed-URL ledger stays authoritative.
package dedup

import (
	"context"
	"sync"
)

// DefaultCapacity is the in-memory filter size used when none is configured.
const DefaultCapacity = 1000

// Filter remembers recently seen keys.
type Filter interface {
	// TryAdd records key and reports whether it was new.
	TryAdd(ctx context.Context, key string) (bool, error)
	// Forget drops key so a later submission is accepted again.
	Forget(ctx context.Context, key string) error
}

// RecentSet is a bounded in-memory Filter. Once it grows past capacity the
// oldest half of its keys is evicted.
type RecentSet struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewRecentSet creates a filter holding at most capacity keys.
func NewRecentSet(capacity int) *RecentSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RecentSet{
		capacity: capacity,
		order:    make([]string, 0, capacity+1),
		seen:     make(map[string]struct{}, capacity+1),
	}
}

// TryAdd records key and reports whether it was new.
func (s *RecentSet) TryAdd(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)

	if len(s.order) > s.capacity {
		half := len(s.order) / 2
		for _, k := range s.order[:half] {
			delete(s.seen, k)
		}
		s.order = append(s.order[:0], s.order[half:]...)
	}
	return true, nil
}

// Forget drops key.
func (s *RecentSet) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; !ok {
		return nil
	}
	delete(s.seen, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of remembered keys.
func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
