// Package uplink posts telemetry payloads to the configured HTTP server.
// Repeated failures open a circuit breaker so a dead server does not stall
// the controller loop with one timeout per post.
package uplink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultURL is the telemetry endpoint used until one is configured.
const DefaultURL = "http://192.168.0.10:8080/people"

// Defaults for the circuit breaker and HTTP client.
const (
	DefaultTimeout      = 2 * time.Second
	DefaultFailures     = 3
	DefaultOpenDuration = 30 * time.Second
)

// ErrNoURL is returned by Post when no server URL is set.
var ErrNoURL = errors.New("no server URL configured")

// Config configures a Poster.
type Config struct {
	URL string
	// Timeout bounds each POST.
	Timeout time.Duration
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// OpenDuration is how long the breaker stays open before a trial post.
	OpenDuration time.Duration
	Client       *http.Client
	Logger       *slog.Logger
}

// Poster sends JSON payloads with HTTP POST.
type Poster struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger

	mu  sync.RWMutex
	url string
}

// New creates a Poster.
func New(cfg Config) *Poster {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Failures == 0 {
		cfg.Failures = DefaultFailures
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultOpenDuration
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poster{client: client, logger: logger, url: cfg.URL}
	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "telemetry",
		Timeout: cfg.OpenDuration,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// SetURL replaces the server URL.
func (p *Poster) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// URL returns the current server URL.
func (p *Poster) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// State returns the breaker state: "closed", "half-open" or "open".
func (p *Poster) State() string {
	return p.cb.State().String()
}

// Post sends payload to the server URL as application/json. Any status
// outside 2xx is an error. While the breaker is open Post fails fast
// with gobreaker.ErrOpenState.
func (p *Poster) Post(ctx context.Context, payload []byte) error {
	url := p.URL()
	if url == "" {
		return ErrNoURL
	}

	_, err := p.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("server returned %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("post telemetry to %s: %w", url, err)
	}
	p.logger.Debug("telemetry posted", "url", url, "bytes", len(payload))
	return nil
}
