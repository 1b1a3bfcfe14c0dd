package llmclient

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig parameterizes the exponential-backoff-with-jitter retry
// required by spec: delay_i = min(initial * base^i, max) * jitter, jitter
// uniform in [0.5, 1.0].
type RetryConfig struct {
	MaxAttempts int
	Initial     time.Duration
	Base        float64
	Max         time.Duration

	// Limiter, if non-nil, throttles attempts independently of retry
	// backoff (e.g. to respect a provider's steady-state rate limit).
	Limiter *rate.Limiter
}

// DefaultRetryConfig matches the defaults a caller gets from sanitizing a
// zero-valued RetryConfig.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Initial:     200 * time.Millisecond,
		Base:        2.0,
		Max:         10 * time.Second,
	}
}

func sanitizeRetryConfig(cfg RetryConfig) RetryConfig {
	d := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.Initial <= 0 {
		cfg.Initial = d.Initial
	}
	if cfg.Base <= 1 {
		cfg.Base = d.Base
	}
	if cfg.Max <= 0 {
		cfg.Max = d.Max
	}
	return cfg
}

// Retrier wraps a Client with retry/backoff per the C2 contract. Non-
// transient errors are returned immediately without consuming retries.
type Retrier struct {
	client Client
	cfg    RetryConfig
	// randFloat is overridable in tests for deterministic jitter.
	randFloat func() float64
}

// NewRetrier wraps client with exponential backoff and jitter. A zero-valued
// cfg is sanitized to DefaultRetryConfig.
func NewRetrier(client Client, cfg RetryConfig) *Retrier {
	return &Retrier{client: client, cfg: sanitizeRetryConfig(cfg), randFloat: rand.Float64}
}

// Generate calls the wrapped client, retrying TransientError failures with
// exponential backoff and jitter until MaxAttempts is exhausted or ctx is
// cancelled. The last error is returned unwrapped if it exhausts retries.
func (r *Retrier) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if r.cfg.Limiter != nil {
			if err := r.cfg.Limiter.Wait(ctx); err != nil {
				return Response{}, err
			}
		}

		resp, err := r.client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return Response{}, err
		}
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.delay(attempt)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Response{}, lastErr
}

// delay computes delay_i = min(initial * base^i, max) * jitter, jitter
// uniform in [0.5, 1.0].
func (r *Retrier) delay(attempt int) time.Duration {
	raw := float64(r.cfg.Initial) * math.Pow(r.cfg.Base, float64(attempt))
	capped := math.Min(raw, float64(r.cfg.Max))
	jitter := 0.5 + 0.5*r.randFloat()
	return time.Duration(capped * jitter)
}
