// Package resilience retries and circuit-breaks calls to outside services.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/config"
)

// Policy describes how a failed call is retried.
type Policy struct {
	Attempts   int // total tries, including the first
	Backoff    time.Duration
	MaxBackoff time.Duration
	Factor     float64
	Jitter     float64 // fraction of the delay, applied in both directions

	// Retryable overrides the default Retryable check.
	Retryable func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is three tries starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
		Factor:     2,
		Jitter:     0.2,
	}
}

// PolicyFromConfig fills a Policy from config, keeping defaults for unset
// fields.
func PolicyFromConfig(c config.ResilienceConfig) Policy {
	p := DefaultPolicy()
	if c.MaxAttempts > 0 {
		p.Attempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		p.Backoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		p.Factor = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		p.Jitter = c.JitterFraction
	}
	return p
}

// WithLogging returns p with an OnRetry that logs through zap.
func (p Policy) WithLogging(service string) Policy {
	p.OnRetry = func(attempt int, err error) {
		zap.L().Warn("retrying call",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return p
}

// Delay is the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.Backoff) * math.Pow(p.Factor, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(max(d, 0))
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx ends.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for calls that produce a value.
func RetryValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()
	retryable := p.Retryable
	if retryable == nil {
		retryable = Retryable
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt+1 >= p.Attempts {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		t := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}
