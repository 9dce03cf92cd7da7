// Package feed extracts post URLs from a Blogger RSS/Atom feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrFeedUnavailable wraps any fetch or parse failure. The run aborts on it,
// leaving the persisted history untouched.
var ErrFeedUnavailable = errors.New("feed unavailable")

var (
	metricFetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_feed_fetch_total",
		Help: "The total number of feed fetches",
	}, []string{"status"})

	metricPostURLs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_feed_post_urls_total",
		Help: "The total number of post URLs discovered in the feed",
	}, []string{"feed"})
)

// DefaultMaxResults caps how many post URLs a single fetch returns.
const DefaultMaxResults = 500

type Fetcher struct {
	parser     *gofeed.Parser
	maxResults int
}

func NewFetcher(maxResults int) *Fetcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Fetcher{
		parser:     gofeed.NewParser(),
		maxResults: maxResults,
	}
}

// PostURLs fetches the feed and returns the post URLs it links to, newest
// first (feed order), deduplicated and capped at the configured maximum.
// Blogger feeds interleave post links with pages, search and mobile
// variants; only real post URLs survive the filter.
func (f *Fetcher) PostURLs(ctx context.Context, feedURL string) ([]string, error) {
	logger := slog.With("feed", feedURL)

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		metricFetchCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	metricFetchCount.WithLabelValues("success").Inc()

	urls := f.collect(parsed.Items, time.Time{})
	metricPostURLs.WithLabelValues(feedURL).Add(float64(len(urls)))
	logger.Info("Fetched feed", "items", len(parsed.Items), "post_urls", len(urls))
	return urls, nil
}

// RecentPostURLs is PostURLs restricted to entries published after the
// lookback cutoff.
func (f *Fetcher) RecentPostURLs(ctx context.Context, feedURL string, lookback time.Duration) ([]string, error) {
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		metricFetchCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	metricFetchCount.WithLabelValues("success").Inc()

	return f.collect(parsed.Items, time.Now().Add(-lookback)), nil
}

func (f *Fetcher) collect(items []*gofeed.Item, cutoff time.Time) []string {
	var urls []string
	seen := make(map[string]struct{})

	add := func(u string) {
		if len(urls) >= f.maxResults {
			return
		}
		if _, dup := seen[u]; dup || !IsPostURL(u) {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, item := range items {
		if !cutoff.IsZero() {
			published := item.PublishedParsed
			if published == nil {
				published = item.UpdatedParsed
			}
			if published == nil || published.Before(cutoff) {
				continue
			}
		}

		add(item.Link)
		// Blogger puts the canonical post URL in the alternate link.
		for _, l := range item.Links {
			add(l)
		}
	}
	return urls
}

// IsPostURL reports whether a URL points at an actual Blogger post. Static
// pages, search results, nested feeds and mobile-variant URLs are filtered
// out so they never reach the Indexing API.
func IsPostURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !strings.HasSuffix(u.Path, ".html") {
		return false
	}
	for _, excluded := range []string{"/p/", "/search", "/feeds/"} {
		if strings.Contains(u.Path, excluded) {
			return false
		}
	}
	// ?m=1 / ?m=0 are mobile duplicates of the canonical URL.
	if u.Query().Has("m") {
		return false
	}
	return true
}
