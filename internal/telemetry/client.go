// Package telemetry ships log lines to the remote log relay. Calls are
// fire-and-forget: failures are logged locally and never reach the caller.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Level is the severity understood by the relay
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func (l Level) valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

// Recorder is the fire-and-forget logging contract
type Recorder interface {
	Record(ctx context.Context, level Level, pkg, message string)
}

// Nop discards every record
type Nop struct{}

func (Nop) Record(context.Context, Level, string, string) {}

// Config configures a Client
type Config struct {
	URL     string        // relay base URL; /logs is appended
	Stack   string        // "backend" or "frontend"
	Timeout time.Duration // per request
	Tokens  *TokenCache   // optional bearer token source
}

type entry struct {
	Stack   string `json:"stack"`
	Level   Level  `json:"level"`
	Package string `json:"package"`
	Message string `json:"message"`
}

// Client posts log entries to the relay in the background
type Client struct {
	endpoint string
	stack    string
	timeout  time.Duration
	http     *http.Client
	tokens   *TokenCache
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewClient creates a relay client. The circuit breaker opens after five
// consecutive failures and probes again after 30 seconds.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		endpoint: cfg.URL + "/logs",
		stack:    cfg.Stack,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		tokens:   cfg.Tokens,
		logger:   logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "telemetry",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
	}
}

// Record sends one entry asynchronously. ctx only contributes values;
// cancelling it does not abort the send.
func (c *Client) Record(ctx context.Context, level Level, pkg, message string) {
	if !level.valid() {
		c.logger.WarnContext(ctx, "telemetry: dropping entry with unknown level", slog.String("level", string(level)))
		return
	}
	e := entry{Stack: c.stack, Level: level, Package: pkg, Message: message}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if _, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.send(sendCtx, e)
		}); err != nil {
			c.logger.WarnContext(sendCtx, "telemetry: log relay failed",
				slog.String("error", err.Error()),
				slog.String("package", pkg))
		}
	}()
}

func (c *Client) send(ctx context.Context, e entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("log relay returned %d", resp.StatusCode)
	}
	return nil
}

// Close waits for in-flight sends or until ctx is done
func (c *Client) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Recorder = (*Client)(nil)
