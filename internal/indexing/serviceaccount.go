package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Key is a Google service account key, as downloaded from the Cloud console.
type Key struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// LoadKey reads a service account key from a JSON file.
func LoadKey(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	var key Key
	if err := json.Unmarshal(b, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" || key.TokenURI == "" {
		return nil, fmt.Errorf("service account key is missing required fields")
	}
	return &key, nil
}

// tokenSource exchanges a signed JWT assertion for a bearer token and caches
// it until shortly before expiry.
type tokenSource struct {
	key    *Key
	scopes []string
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(key *Key, client *http.Client, scopes ...string) *tokenSource {
	return &tokenSource{key: key, scopes: scopes, client: client}
}

func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expires) {
		return ts.token, nil
	}

	privKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(ts.key.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   ts.key.ClientEmail,
		"sub":   ts.key.ClientEmail,
		"aud":   ts.key.TokenURI,
		"scope": strings.Join(ts.scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(privKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	params := url.Values{}
	params.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	params.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.key.TokenURI, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange assertion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint responded with status %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	ts.token = tok.AccessToken
	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	ts.expires = now.Add(expiresIn - time.Minute)

	return ts.token, nil
}
