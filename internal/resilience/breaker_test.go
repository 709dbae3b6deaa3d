package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		RecoveryTimeout:  timeout,
	})
	clock := time.Unix(1700000000, 0)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.Do(context.Background(), func(context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected original error, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if b.Failures() != 3 {
		t.Errorf("expected failure count 3, got %d", b.Failures())
	}
}

func TestBreaker_FailsFastWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, 30*time.Second)
	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("boom") })

	invoked := false
	err := b.Do(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})

	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Error("guarded operation must not run while breaker is open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(2, 30*time.Second)
	boom := errors.New("boom")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	*clock = clock.Add(31 * time.Second)

	err := b.Do(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("half-open probe should succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("expected failure count reset to 0, got %d", b.Failures())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 30*time.Second)
	boom := errors.New("boom")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	*clock = clock.Add(31 * time.Second)

	err := b.Do(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error from probe, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("expected re-opened breaker, got %s", b.State())
	}
}

func TestBreaker_SuccessWhileClosedKeepsState(t *testing.T) {
	b, _ := newTestBreaker(2, 30*time.Second)

	if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
		OnStateChange:    func(_ string, s BreakerState) { transitions = append(transitions, s) },
	})
	clock := time.Unix(1700000000, 0)
	b.now = func() time.Time { return clock }

	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("boom") })
	clock = clock.Add(31 * time.Second)
	_ = b.Do(context.Background(), func(context.Context) error { return nil })

	want := []BreakerState{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_ConcurrentFailuresCountOnce(t *testing.T) {
	b, _ := newTestBreaker(100, 30*time.Second)
	boom := errors.New("boom")

	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = b.Do(context.Background(), func(context.Context) error { return boom })
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}

	if b.Failures() != 100 {
		t.Errorf("expected exactly 100 failures counted, got %d", b.Failures())
	}
	if b.State() != StateOpen {
		t.Errorf("expected open at threshold, got %s", b.State())
	}
}
