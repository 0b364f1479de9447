// Package breaker guards a remote storage.Backend with a circuit breaker so a
// failing Redis or database answers fast instead of stalling page loads.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
)

const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Config configures the circuit breaker behavior.
type Config struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before half-open.
	Timeout time.Duration
	// Interval clears failure counts while closed.
	Interval time.Duration
}

// Backend wraps another Backend. A missing entry counts as success.
type Backend struct {
	inner   storage.Backend
	breaker *gobreaker.CircuitBreaker[string]
}

func New(name string, inner storage.Backend, cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "storage:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, sentinel.ErrNotFound)
		},
	})
	return &Backend{inner: inner, breaker: cb}
}

func (b *Backend) Get(ctx context.Context, visitorID, key string) (string, error) {
	value, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Get(ctx, visitorID, key)
	})
	return value, translate(err)
}

func (b *Backend) SetMany(ctx context.Context, visitorID string, items []storage.Item) error {
	_, err := b.breaker.Execute(func() (string, error) {
		return "", b.inner.SetMany(ctx, visitorID, items)
	})
	return translate(err)
}

// State exposes the breaker state for health reporting.
func (b *Backend) State() gobreaker.State {
	return b.breaker.State()
}

// Health reports an open circuit, then defers to the inner backend.
func (b *Backend) Health(ctx context.Context) error {
	if b.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: %w", b.breaker.Name(), sentinel.ErrUnavailable)
	}
	if h, ok := b.inner.(storage.HealthChecker); ok {
		return h.Health(ctx)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit open: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return err
}
