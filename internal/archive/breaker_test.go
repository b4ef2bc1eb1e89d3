package archive

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, time.Minute)
	boom := errors.New("git failed")

	for i := 0; i < 3; i++ {
		if err := b.execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected underlying error, got %v", i, err)
		}
	}
	if got := b.currentState(); got != stateOpen {
		t.Fatalf("expected open, got %v", got)
	}
	if err := b.execute(func() error { return nil }); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open breaker must reject, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(3, time.Minute)
	boom := errors.New("git failed")

	b.execute(func() error { return boom })
	b.execute(func() error { return boom })
	b.execute(func() error { return nil })
	b.execute(func() error { return boom })
	b.execute(func() error { return boom })

	if got := b.currentState(); got != stateClosed {
		t.Fatalf("interleaved success should keep the breaker closed, got %v", got)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	b := newBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.execute(func() error { return errors.New("git failed") })
	if b.currentState() != stateOpen {
		t.Fatal("expected open after threshold")
	}

	// Before the reset window: still rejecting.
	now = now.Add(10 * time.Second)
	if err := b.execute(func() error { return nil }); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected rejection inside reset window, got %v", err)
	}

	// After the window one probe runs; success closes the breaker.
	now = now.Add(time.Minute)
	ran := false
	if err := b.execute(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if !ran || b.currentState() != stateClosed {
		t.Fatalf("successful probe should close the breaker (ran=%v state=%v)", ran, b.currentState())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	b := newBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.execute(func() error { return errors.New("git failed") })
	now = now.Add(time.Minute)
	b.execute(func() error { return errors.New("still failing") })

	if b.currentState() != stateOpen {
		t.Fatal("failed probe should reopen the breaker")
	}
	if err := b.execute(func() error { return nil }); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("reopened breaker must reject, got %v", err)
	}
}
