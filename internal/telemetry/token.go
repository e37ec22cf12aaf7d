package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultTokenLifetime = 300 * time.Second
	refreshMargin        = 15 * time.Second
)

// Credentials authenticate against the relay's auth endpoint
type Credentials struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RollNo       string `json:"rollNo"`
	AccessCode   string `json:"accessCode"`
	ClientID     string `json:"clientID"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenCache owns the bearer token for the process. A token is reused until
// fewer than 15 seconds of its lifetime remain. The mutex is held across the
// refresh call so concurrent callers share one fetch.
type TokenCache struct {
	mu        sync.Mutex
	authURL   string
	creds     Credentials
	http      *http.Client
	now       func() time.Time
	token     string
	expiresAt time.Time
}

// NewTokenCache creates an empty cache; the first Token call fetches.
func NewTokenCache(authURL string, creds Credentials, timeout time.Duration) *TokenCache {
	return &TokenCache{
		authURL: authURL,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Token returns a cached token or refreshes it when it is about to expire
func (t *TokenCache) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.expiresAt.Sub(t.now()) > refreshMargin {
		return t.token, nil
	}
	return t.refreshLocked(ctx)
}

// Refresh fetches a new token regardless of the cached one
func (t *TokenCache) Refresh(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

// ExpiresAt reports the expiry of the cached token, zero if none
func (t *TokenCache) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt
}

func (t *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(t.creds)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth failed: %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("auth response carried no access_token")
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	t.token = tr.AccessToken
	t.expiresAt = t.now().Add(lifetime)
	return t.token, nil
}
