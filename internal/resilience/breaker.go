package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the lifecycle state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// guarded operation.
var ErrOpen = errors.New("circuit breaker is open - service unavailable")

// BreakerConfig holds the fixed tuning for one guarded dependency.
// OnStateChange, when set, is called after every transition with the
// breaker's name and new state. It runs under the breaker mutex and must
// not call back into the breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	OnStateChange    func(name string, state BreakerState)
}

// Breaker guards a downstream dependency against repeated failures.
// One instance per dependency, shared across concurrent calls; all state
// transitions happen under the mutex.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// NewBreaker creates a closed breaker for one dependency.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Do executes op with circuit breaker protection.
// While open and inside the recovery window it fails fast with ErrOpen and
// never invokes op. After the window it allows a single half-open probe;
// probe success closes the breaker and resets the failure count.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.cfg.RecoveryTimeout {
		return fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
	}
	b.state = StateHalfOpen
	b.notify()
	slog.Info("circuit breaker entering half-open state", "breaker", b.cfg.Name)
	return nil
}

func (b *Breaker) notify() {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, b.state)
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.failures = 0
			b.notify()
			slog.Info("circuit breaker closed - service recovered", "breaker", b.cfg.Name)
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	slog.Warn("circuit breaker failure",
		"breaker", b.cfg.Name,
		"failures", b.failures,
		"threshold", b.cfg.FailureThreshold,
		"error", err)

	if b.failures >= b.cfg.FailureThreshold && b.state != StateOpen {
		b.state = StateOpen
		b.notify()
		slog.Error("circuit breaker open", "breaker", b.cfg.Name, "failures", b.failures)
	}
}
