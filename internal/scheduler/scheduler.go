// Package scheduler decides which URLs get submitted in a run.
//
// Plan and Record are pure functions over a History snapshot, so the
// surrounding pipeline can load state once, run the scheduler, and persist
// the result without worrying about shared mutation.
package scheduler

import (
	"errors"
	"slices"
	"time"
)

// ErrInvalidQuota is returned by Plan when the remaining quota is negative.
var ErrInvalidQuota = errors.New("remaining quota is negative")

// Status is the outcome of the most recent submission attempt for a URL.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// URLRecord tracks the submission history of a single post URL.
// A zero LastSubmittedAt means the URL has never been submitted.
type URLRecord struct {
	URL             string    `json:"url"`
	LastSubmittedAt time.Time `json:"last_submitted_at,omitzero"`
	LastStatus      Status    `json:"last_status"`
	AttemptCount    int       `json:"attempt_count"`
}

// History maps post URLs to their submission records. Records are created on
// first sighting and updated on every attempt, never deleted, so the history
// doubles as an audit log.
type History map[string]URLRecord

// Clone returns a shallow copy of the history. URLRecord is a value type, so
// the copy is fully independent.
func (h History) Clone() History {
	c := make(History, len(h))
	for url, rec := range h {
		c[url] = rec
	}
	return c
}

// Plan selects the URLs to submit this run, bounded by the remaining daily
// quota. New URLs (not in history) come first in feed order; known URLs are
// included only when stale or previously failed, stalest first.
//
// An empty feed or a zero quota yields an empty plan. A negative quota is a
// caller bug and fails with ErrInvalidQuota.
func Plan(feedURLs []string, history History, quotaRemaining int, freshnessWindow time.Duration, now time.Time) ([]string, error) {
	if quotaRemaining < 0 {
		return nil, ErrInvalidQuota
	}
	if quotaRemaining == 0 || len(feedURLs) == 0 {
		return nil, nil
	}

	var fresh, stale []string
	seen := make(map[string]struct{}, len(feedURLs))
	for _, url := range feedURLs {
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		rec, known := history[url]
		if !known {
			fresh = append(fresh, url)
			continue
		}
		if eligible(rec, freshnessWindow, now) {
			stale = append(stale, url)
		}
	}

	// Stalest content first; never-submitted records have a zero timestamp
	// and naturally sort ahead of everything. Stable sort keeps feed order
	// as the tie-break.
	slices.SortStableFunc(stale, func(a, b string) int {
		return history[a].LastSubmittedAt.Compare(history[b].LastSubmittedAt)
	})

	plan := append(fresh, stale...)
	if len(plan) > quotaRemaining {
		plan = plan[:quotaRemaining]
	}
	return plan, nil
}

// eligible reports whether a known URL may be resubmitted. URLs that were
// never attempted or whose last attempt failed are always eligible; a
// successful submission blocks resubmission until the freshness window has
// elapsed.
func eligible(rec URLRecord, freshnessWindow time.Duration, now time.Time) bool {
	if rec.LastSubmittedAt.IsZero() {
		return true
	}
	if rec.LastStatus == StatusFailed {
		return true
	}
	return now.Sub(rec.LastSubmittedAt) > freshnessWindow
}

// Record returns a new History with the outcome of a submission attempt
// applied: LastStatus and LastSubmittedAt are set and AttemptCount is
// incremented. The input history is left untouched.
func Record(history History, url string, outcome Status, at time.Time) History {
	next := history.Clone()
	rec, ok := next[url]
	if !ok {
		rec = URLRecord{URL: url}
	}
	rec.LastStatus = outcome
	rec.LastSubmittedAt = at
	rec.AttemptCount++
	next[url] = rec
	return next
}
