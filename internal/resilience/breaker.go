package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/config"
)

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling through while a breaker is open.
var ErrOpen = eris.New("resilience: circuit open")

// Breaker stops calling a failing service for a cooldown after Threshold
// consecutive failures. After the cooldown one probe call is let through;
// its outcome closes or reopens the circuit.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration
	// OnChange observes transitions.
	OnChange func(name string, from, to State)

	name     string
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, name: name, now: time.Now}
}

// BreakerFromConfig creates a breaker named name from config.
func BreakerFromConfig(name string, c config.ResilienceConfig) *Breaker {
	return NewBreaker(name, c.FailureThreshold, time.Duration(c.ResetTimeoutSecs)*time.Second)
}

// Name returns the service the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State reports the current state, promoting Open to HalfOpen once the
// cooldown has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Guard(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Guard is Breaker.Do for calls that produce a value.
func Guard[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.admit() {
		return zero, eris.Wrapf(ErrOpen, "%s", b.name)
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.Cooldown {
			return false
		}
		b.set(HalfOpen)
		return true
	case HalfOpen:
		// one probe at a time
		return false
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != Closed {
			b.set(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.Threshold {
		b.openedAt = b.now()
		if b.state != Open {
			b.set(Open)
		}
	}
}

func (b *Breaker) set(to State) {
	from := b.state
	b.state = to
	if b.OnChange != nil && from != to {
		b.OnChange(b.name, from, to)
	}
}
