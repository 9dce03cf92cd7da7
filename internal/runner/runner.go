// Package runner wires the feed, scheduler, store and API client into a
// single run.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"blogger-indexer/internal/indexing"
	"blogger-indexer/internal/scheduler"
	"blogger-indexer/internal/state"
)

const dayFormat = "2006-01-02"

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_runs_total",
		Help: "The total number of indexing runs",
	}, []string{"status"})

	metricSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_submissions_total",
		Help: "The total number of URL submissions",
	}, []string{"status"})

	metricPlanSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_plan_size",
		Help: "The number of URLs selected in the most recent run",
	})
)

// FeedSource yields the post URLs of a feed, newest first.
type FeedSource interface {
	PostURLs(ctx context.Context, feedURL string) ([]string, error)
}

// Submitter notifies the indexing backend about a URL.
type Submitter interface {
	Publish(ctx context.Context, url string, typ indexing.NotificationType) error
}

type Options struct {
	FeedURL         string
	DailyQuota      int
	FreshnessWindow time.Duration

	// Force ignores the freshness window, so even recently indexed URLs are
	// resubmitted.
	Force bool
}

type Runner struct {
	feed   FeedSource
	client Submitter
	store  state.Store
	opts   Options

	now func() time.Time // stubbed in tests
}

func New(feed FeedSource, client Submitter, store state.Store, opts Options) *Runner {
	return &Runner{
		feed:   feed,
		client: client,
		store:  store,
		opts:   opts,
		now:    time.Now,
	}
}

// RunOnce performs one full pass: fetch the feed, plan against the persisted
// history and remaining daily quota, submit each planned URL, and record the
// outcomes. History and the quota counter are persisted after every attempt,
// so an interrupted run loses nothing that already happened.
//
// A feed failure aborts the run with the history untouched. Individual
// submission failures are recorded and the run continues.
func (r *Runner) RunOnce(ctx context.Context) error {
	logger := slog.With("feed", r.opts.FeedURL)

	urls, err := r.feed.PostURLs(ctx, r.opts.FeedURL)
	if err != nil {
		metricRuns.WithLabelValues("feed_error").Inc()
		return err
	}

	history, err := r.store.LoadHistory(ctx)
	if err != nil {
		metricRuns.WithLabelValues("store_error").Inc()
		return err
	}

	now := r.now()
	day := now.Format(dayFormat)
	used, err := r.store.QuotaUsed(ctx, day)
	if err != nil {
		metricRuns.WithLabelValues("store_error").Inc()
		return err
	}
	remaining := max(r.opts.DailyQuota-used, 0)

	window := r.opts.FreshnessWindow
	if r.opts.Force {
		window = 0
	}

	plan, err := scheduler.Plan(urls, history, remaining, window, now)
	if err != nil {
		metricRuns.WithLabelValues("plan_error").Inc()
		return err
	}
	metricPlanSize.Set(float64(len(plan)))

	if len(plan) == 0 {
		logger.Info("Nothing to submit", "feed_urls", len(urls), "quota_remaining", remaining)
		metricRuns.WithLabelValues("success").Inc()
		return nil
	}
	logger.Info("Submitting URLs", "planned", len(plan), "quota_remaining", remaining)

	var succeeded, failed int
	for _, u := range plan {
		outcome := scheduler.StatusSuccess
		if err := r.client.Publish(ctx, u, indexing.URLUpdated); err != nil {
			// A canceled context means the run is over, not that the URL
			// failed. Stop without recording.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Submission failed", "url", u, "error", err)
			outcome = scheduler.StatusFailed
			failed++
		} else {
			logger.Info("Submitted URL", "url", u)
			succeeded++
		}
		metricSubmissions.WithLabelValues(string(outcome)).Inc()

		history = scheduler.Record(history, u, outcome, r.now())
		if err := r.store.SaveHistory(ctx, history); err != nil {
			return err
		}
		if err := r.store.AddQuotaUsed(ctx, day, 1); err != nil {
			return err
		}
	}

	logger.Info("Run complete", "succeeded", succeeded, "failed", failed, "quota_used", used+len(plan))
	metricRuns.WithLabelValues("success").Inc()
	return nil
}

// Remove publishes a URL_DELETED notification for a URL and records the
// attempt. Deletions count against the daily quota like any submission.
func (r *Runner) Remove(ctx context.Context, u string) error {
	history, err := r.store.LoadHistory(ctx)
	if err != nil {
		return err
	}

	outcome := scheduler.StatusSuccess
	if err := r.client.Publish(ctx, u, indexing.URLDeleted); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("Removal failed", "url", u, "error", err)
		outcome = scheduler.StatusFailed
	}
	metricSubmissions.WithLabelValues(string(outcome)).Inc()

	now := r.now()
	history = scheduler.Record(history, u, outcome, now)
	if err := r.store.SaveHistory(ctx, history); err != nil {
		return err
	}
	return r.store.AddQuotaUsed(ctx, now.Format(dayFormat), 1)
}

// Run executes RunOnce immediately and then on every tick until the context
// is canceled. Errors are logged, not returned: a daemon keeps going.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.RunOnce(ctx); err != nil {
		slog.Error("Run failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				slog.Error("Run failed", "error", err)
			}
		}
	}
}
