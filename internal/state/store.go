package state

import (
	"context"
	"sync"

	"blogger-indexer/internal/scheduler"
)

// Store persists the submission history and the daily quota counter between
// runs. The counter is keyed by calendar date ("2006-01-02"), so a new day
// implicitly starts from zero without an explicit reset.
type Store interface {
	LoadHistory(ctx context.Context) (scheduler.History, error)
	SaveHistory(ctx context.Context, h scheduler.History) error

	// QuotaUsed returns the number of submissions already made on the given day.
	QuotaUsed(ctx context.Context, day string) (int, error)
	// AddQuotaUsed bumps the counter for the given day by n.
	AddQuotaUsed(ctx context.Context, day string, n int) error
}

// MemoryStore keeps everything in process memory. Used in tests and for
// throwaway runs where persistence across invocations doesn't matter.
type MemoryStore struct {
	mu      sync.RWMutex
	history scheduler.History
	quota   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(scheduler.History),
		quota:   make(map[string]int),
	}
}

func (s *MemoryStore) LoadHistory(ctx context.Context) (scheduler.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Clone(), nil
}

func (s *MemoryStore) SaveHistory(ctx context.Context, h scheduler.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = h.Clone()
	return nil
}

func (s *MemoryStore) QuotaUsed(ctx context.Context, day string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quota[day], nil
}

func (s *MemoryStore) AddQuotaUsed(ctx context.Context, day string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota[day] += n
	return nil
}
