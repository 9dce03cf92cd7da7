package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blogger-indexer/internal/feed"
	"blogger-indexer/internal/indexing"
	"blogger-indexer/internal/scheduler"
	"blogger-indexer/internal/state"
)

var testNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	urls []string
	err  error
}

func (f *fakeFeed) PostURLs(ctx context.Context, feedURL string) ([]string, error) {
	return f.urls, f.err
}

type fakeSubmitter struct {
	mu        sync.Mutex
	published []string
	types     []indexing.NotificationType
	failFor   map[string]bool
}

func (s *fakeSubmitter) Publish(ctx context.Context, url string, typ indexing.NotificationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, url)
	s.types = append(s.types, typ)
	if s.failFor[url] {
		return errors.New("indexing api responded with status 500")
	}
	return nil
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func newTestRunner(f *fakeFeed, s *fakeSubmitter, store state.Store, opts Options) *Runner {
	if opts.FeedURL == "" {
		opts.FeedURL = "https://blog.example.com/feeds/posts/default"
	}
	if opts.DailyQuota == 0 {
		opts.DailyQuota = 200
	}
	if opts.FreshnessWindow == 0 {
		opts.FreshnessWindow = 7 * 24 * time.Hour
	}
	r := New(f, s, store, opts)
	r.now = func() time.Time { return testNow }
	return r
}

func TestRunOnceSubmitsNewURLs(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a", "b"}}, sub, store, Options{})

	require.NoError(t, r.RunOnce(ctx))
	require.Equal(t, []string{"a", "b"}, sub.published)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.StatusSuccess, h["a"].LastStatus)
	require.Equal(t, 1, h["a"].AttemptCount)

	used, err := store.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Equal(t, 2, used)
}

func TestRunOnceRecordsFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{failFor: map[string]bool{"a": true}}
	r := newTestRunner(&fakeFeed{urls: []string{"a", "b"}}, sub, store, Options{})

	require.NoError(t, r.RunOnce(ctx), "a submission failure is not fatal to the run")
	require.Equal(t, []string{"a", "b"}, sub.published)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.StatusFailed, h["a"].LastStatus)
	require.Equal(t, scheduler.StatusSuccess, h["b"].LastStatus)

	// Failed attempts still consume quota.
	used, err := store.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Equal(t, 2, used)
}

func TestRunOnceHonorsDailyQuota(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.AddQuotaUsed(ctx, "2026-08-28", 199))

	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a", "b", "c"}}, sub, store, Options{DailyQuota: 200})

	require.NoError(t, r.RunOnce(ctx))
	require.Equal(t, []string{"a"}, sub.published, "only one submission left in today's quota")
}

func TestRunOnceQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.AddQuotaUsed(ctx, "2026-08-28", 250))

	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a"}}, sub, store, Options{DailyQuota: 200})

	// Overshoot clamps to zero instead of tripping ErrInvalidQuota.
	require.NoError(t, r.RunOnce(ctx))
	require.Empty(t, sub.published)
}

func TestRunOnceFeedErrorAbortsUntouched(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{err: feed.ErrFeedUnavailable}, sub, store, Options{})

	err := r.RunOnce(ctx)
	require.ErrorIs(t, err, feed.ErrFeedUnavailable)
	require.Empty(t, sub.published)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Empty(t, h, "history untouched on feed failure")
}

func TestRunOnceSkipsFreshURLs(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.SaveHistory(ctx, scheduler.History{
		"a": {URL: "a", LastStatus: scheduler.StatusSuccess, LastSubmittedAt: testNow.Add(-24 * time.Hour), AttemptCount: 1},
	}))

	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a"}}, sub, store, Options{})

	require.NoError(t, r.RunOnce(ctx))
	require.Empty(t, sub.published)
}

func TestRunOnceForceResubmitsFreshURLs(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.SaveHistory(ctx, scheduler.History{
		"a": {URL: "a", LastStatus: scheduler.StatusSuccess, LastSubmittedAt: testNow.Add(-24 * time.Hour), AttemptCount: 1},
	}))

	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a"}}, sub, store, Options{Force: true})

	require.NoError(t, r.RunOnce(ctx))
	require.Equal(t, []string{"a"}, sub.published)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, h["a"].AttemptCount)
}

func TestRunOnceFailedURLRetriedNextRun(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{failFor: map[string]bool{"a": true}}
	r := newTestRunner(&fakeFeed{urls: []string{"a"}}, sub, store, Options{})

	require.NoError(t, r.RunOnce(ctx))

	// The failure heals on the next run without any pending list.
	sub.failFor = nil
	require.NoError(t, r.RunOnce(ctx))
	require.Equal(t, []string{"a", "a"}, sub.published)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.StatusSuccess, h["a"].LastStatus)
	require.Equal(t, 2, h["a"].AttemptCount)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{}, sub, store, Options{})

	require.NoError(t, r.Remove(ctx, "https://blog.example.com/gone.html"))
	require.Equal(t, []indexing.NotificationType{indexing.URLDeleted}, sub.types)

	h, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, scheduler.StatusSuccess, h["https://blog.example.com/gone.html"].LastStatus)

	used, err := store.QuotaUsed(ctx, "2026-08-28")
	require.NoError(t, err)
	require.Equal(t, 1, used)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := state.NewMemoryStore()
	sub := &fakeSubmitter{}
	r := newTestRunner(&fakeFeed{urls: []string{"a"}}, sub, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Hour)
		close(done)
	}()

	// First pass happens immediately, then the loop waits on the ticker.
	require.Eventually(t, func() bool { return sub.count() > 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
