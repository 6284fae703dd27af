package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"payflow/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

var errTransient = errors.New("transient")

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:      maxRetries,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
		Retryable:       func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Do = (%q, %v), want (ok, nil)", got, err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_RecoversAfterTransientErrors(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do = (%d, %v), want (42, nil)", got, err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		attempts++
		return 0, errTransient
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("exhausted attempts = %d, want 4", exhausted.Attempts)
	}
	if attempts != 4 {
		t.Errorf("op calls = %d, want maxRetries+1 = 4", attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Error("ExhaustedError should unwrap to the last error")
	}
}

func TestDo_NonRetryableShortCircuits(t *testing.T) {
	fatal := errors.New("bad request")
	attempts := 0
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1", attempts)
	}
}

func TestDo_ContextCancelsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(5)
	p.BaseDelay = time.Minute

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
			attempts++
			return 0, errTransient
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDelay_CapAndJitterBounds(t *testing.T) {
	p := Policy{
		BaseDelay:       time.Second,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
	}

	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %s, want 1s", got)
	}
	if got := p.Delay(2); got != 4*time.Second {
		t.Errorf("Delay(2) = %s, want 4s", got)
	}
	// Growth is capped at MaxDelay.
	if got := p.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %s, want 10s cap", got)
	}

	p.Jitter = true
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jittered Delay(1) = %s, want within [0.5, 1.5] of 2s", d)
		}
	}
}
