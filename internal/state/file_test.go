package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blogger-indexer/internal/scheduler"
)

func TestFileStoreHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	// Fresh store starts empty.
	h, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	require.Empty(t, h)

	submitted := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	h = scheduler.History{
		"https://blog.example.com/a.html": {
			URL:             "https://blog.example.com/a.html",
			LastSubmittedAt: submitted,
			LastStatus:      scheduler.StatusSuccess,
			AttemptCount:    3,
		},
		"https://blog.example.com/b.html": {
			URL:        "https://blog.example.com/b.html",
			LastStatus: scheduler.StatusPending,
		},
	}
	require.NoError(t, s.SaveHistory(ctx, h))

	// Reopen to make sure nothing lived only in memory.
	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := s2.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestFileStoreCorruptHistory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0o644))

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.LoadHistory(context.Background())
	require.Error(t, err)
}

func TestFileStoreQuotaPerDay(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	n, err := s.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, s.AddQuotaUsed(ctx, "2026-08-28", 1))
	require.NoError(t, s.AddQuotaUsed(ctx, "2026-08-28", 2))

	n, err = s.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// The next day starts from zero and drops the old counter.
	require.NoError(t, s.AddQuotaUsed(ctx, "2026-08-29", 1))
	n, err = s.QuotaUsed(ctx, "2026-08-29")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h := scheduler.History{"a": {URL: "a", LastStatus: scheduler.StatusFailed, AttemptCount: 1}}
	require.NoError(t, s.SaveHistory(ctx, h))

	// Mutating the caller's map must not leak into the store.
	h["b"] = scheduler.URLRecord{URL: "b"}

	got, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
