// Package indexing talks to the Google Indexing API on behalf of a service
// account.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	scope       = "https://www.googleapis.com/auth/indexing"
	endpoint    = "https://indexing.googleapis.com/v3"
	userAgent   = "blogger-indexer/1.0"
	httpTimeout = 30 * time.Second
)

// NotificationType tells Google whether a URL was updated or removed.
type NotificationType string

const (
	URLUpdated NotificationType = "URL_UPDATED"
	URLDeleted NotificationType = "URL_DELETED"
)

// Client submits URL notifications, keeping under the API's per-minute
// request limit. Callers are expected to enforce the daily quota themselves.
type Client struct {
	client  *http.Client
	tokens  *tokenSource
	limiter *rate.Limiter
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient builds a client authenticated with the given service account key.
// requestsPerMinute bounds the publish rate; zero or negative disables the
// limiter.
func NewClient(key *Key, requestsPerMinute int, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: endpoint,
	}
	if requestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(key, c.client, scope)
	return c
}

// Publish notifies the Indexing API about a URL. It blocks until the rate
// limiter allows the request. Any failure, auth or network or HTTP, comes
// back as an error; the caller records it as a failed outcome rather than
// aborting the run.
func (c *Client) Publish(ctx context.Context, pageURL string, typ NotificationType) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}{URL: pageURL, Type: string(typ)})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/urlNotifications:publish", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Metadata returns the latest notification Google has on record for a URL,
// as raw JSON.
func (c *Client) Metadata(ctx context.Context, pageURL string) (json.RawMessage, error) {
	u := c.baseURL + "/urlNotifications/metadata?url=" + url.QueryEscape(pageURL)
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited by the indexing api (status %d)", resp.StatusCode)
	case http.StatusForbidden:
		return fmt.Errorf("permission denied, check the service account's Search Console access (status %d)", resp.StatusCode)
	default:
		return fmt.Errorf("indexing api responded with status %d: %s", resp.StatusCode, b)
	}
}
