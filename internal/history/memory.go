package history

import (
	"sync"
	"time"

	"github.com/psantana5/covrun/internal/report"
)

// MemoryStore keeps results for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	results []*report.Result
	byID    map[string]*report.Result
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*report.Result)}
}

func (s *MemoryStore) Record(r *report.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.RunID]; ok {
		return nil
	}
	s.results = append(s.results, r)
	s.byID[r.RunID] = r
	return nil
}

func (s *MemoryStore) Get(runID string) (*report.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(limit int) ([]*report.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.results)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*report.Result, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.results[i])
	}
	return out, nil
}

func (s *MemoryStore) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.results[:0]
	removed := 0
	for _, r := range s.results {
		if r.StartTime.Before(cutoff) {
			delete(s.byID, r.RunID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.results = kept
	return removed, nil
}

func (s *MemoryStore) Close() error       { return nil }
func (s *MemoryStore) HealthCheck() error { return nil }
