package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      RetryUnlessPermanent(),
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) }

	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(retried) != 2 {
		t.Errorf("OnRetry called %d times, want 2", len(retried))
	}
}

func TestRetry_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, boom) {
		t.Errorf("Retry() error = %v, want max retries wrapping boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return NewPermanentError(errors.New("400 bad request"))
	})
	if !IsPermanentError(err) {
		t.Errorf("Retry() error = %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(5), func() error { return nil })
	if !errors.Is(err, ErrContextCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context canceled", err)
	}
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastConfig(2), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("RetryWithResult() = %q, %v", got, err)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := &Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	if d := Backoff(0, cfg); d != time.Second {
		t.Errorf("Backoff(0) = %v", d)
	}
	if d := Backoff(10, cfg); d != 3*time.Second {
		t.Errorf("Backoff(10) = %v, want cap", d)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	clock := time.Now()
	var transitions []string
	b := NewBreaker(&BreakerConfig{
		MaxErrors:        2,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	b.now = func() time.Time { return clock }

	fail := func() error { return errors.New("down") }
	_ = b.Execute(fail)
	_ = b.Execute(fail)
	if b.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open = %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after reset timeout = %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_IgnoresPermanentErrors(t *testing.T) {
	b := NewBreaker(&BreakerConfig{MaxErrors: 1, ResetTimeout: time.Minute})
	_ = b.Execute(func() error { return NewPermanentError(errors.New("422")) })
	if b.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestRetry_DoesNotRetryOpenCircuit(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(4), func() error {
		calls++
		return ErrCircuitOpen
	})
	if !errors.Is(err, ErrCircuitOpen) || calls != 1 {
		t.Errorf("Retry() = %v after %d calls", err, calls)
	}
}
