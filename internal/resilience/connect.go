package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxline/voxline/pkg/provider/s2s"
)

// GuardedProviderConfig tunes the connect retry behaviour of a
// [GuardedProvider].
type GuardedProviderConfig struct {
	// Name labels the underlying provider in log messages and breaker state.
	Name string

	// MaxAttempts is the number of connect attempts per [GuardedProvider.Connect]
	// call. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; it doubles on each
	// subsequent attempt. Default: 500ms.
	InitialBackoff time.Duration

	// Breaker overrides the circuit breaker configuration. The Name field is
	// filled in from the outer Name when empty.
	Breaker BreakerConfig
}

// GuardedProvider wraps an [s2s.Provider] with bounded connect retries and a
// circuit breaker. A connect that fails transiently is retried with
// exponential backoff; a provider that keeps failing trips the breaker so
// subsequent session starts fail fast instead of blocking on dead dials.
type GuardedProvider struct {
	inner       s2s.Provider
	name        string
	maxAttempts int
	backoff     time.Duration
	breaker     *Breaker
}

var _ s2s.Provider = (*GuardedProvider)(nil)

// NewGuardedProvider wraps inner with the supplied configuration. Zero-value
// config fields are replaced with defaults.
func NewGuardedProvider(inner s2s.Provider, cfg GuardedProviderConfig) *GuardedProvider {
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}
	return &GuardedProvider{
		inner:       inner,
		name:        cfg.Name,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.InitialBackoff,
		breaker:     NewBreaker(cfg.Breaker),
	}
}

// Connect dials the wrapped provider, retrying up to MaxAttempts times with
// exponential backoff. Every attempt passes through the circuit breaker; when
// the breaker is open the call returns [ErrCircuitOpen] without dialing.
// Context cancellation aborts both the dial and any pending backoff sleep.
func (g *GuardedProvider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	var handle s2s.SessionHandle
	var lastErr error

	delay := g.backoff
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err := g.breaker.Do(func() error {
			var dialErr error
			handle, dialErr = g.inner.Connect(ctx, cfg)
			return dialErr
		})
		if err == nil {
			return handle, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			break
		}
		if attempt == g.maxAttempts {
			break
		}

		slog.Warn("agent connect failed, retrying",
			"name", g.name,
			"attempt", attempt,
			"backoff", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("connect %s: %w", g.name, lastErr)
}

// BreakerState reports the current state of the underlying circuit breaker.
func (g *GuardedProvider) BreakerState() State {
	return g.breaker.State()
}
