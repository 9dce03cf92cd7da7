package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"blogger-indexer/internal/scheduler"
)

const (
	historyKey  = "indexer:history"
	quotaPrefix = "indexer:quota:"

	// Per-day counters only matter for the current day; keep them around a
	// little longer for inspection, then let them expire.
	quotaTTL = 48 * time.Hour
)

// ValkeyStore keeps state in a Valkey/Redis instance, for setups where the
// job runner has no persistent filesystem.
type ValkeyStore struct {
	client *redis.Client
}

func NewValkeyStore(addr, password string) (*ValkeyStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &ValkeyStore{client: rdb}, nil
}

func (s *ValkeyStore) LoadHistory(ctx context.Context) (scheduler.History, error) {
	val, err := s.client.Get(ctx, historyKey).Result()
	if err == redis.Nil {
		return make(scheduler.History), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var h scheduler.History
	if err := json.Unmarshal([]byte(val), &h); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if h == nil {
		h = make(scheduler.History)
	}
	return h, nil
}

func (s *ValkeyStore) SaveHistory(ctx context.Context, h scheduler.History) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := s.client.Set(ctx, historyKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

func (s *ValkeyStore) QuotaUsed(ctx context.Context, day string) (int, error) {
	n, err := s.client.Get(ctx, quotaPrefix+day).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load quota count: %w", err)
	}
	return n, nil
}

func (s *ValkeyStore) AddQuotaUsed(ctx context.Context, day string, n int) error {
	key := quotaPrefix + day
	if err := s.client.IncrBy(ctx, key, int64(n)).Err(); err != nil {
		return fmt.Errorf("failed to bump quota count: %w", err)
	}
	if err := s.client.Expire(ctx, key, quotaTTL).Err(); err != nil {
		return fmt.Errorf("failed to set quota ttl: %w", err)
	}
	return nil
}
