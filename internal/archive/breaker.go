package archive

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned while the breaker is open after repeated git
// failures. Callers back off instead of queueing more work on a repository
// that cannot accept commits.
var ErrUnavailable = errors.New("archive unavailable: repeated git failures")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// breaker is a three-state circuit breaker guarding git invocations for a
// single repository. After threshold consecutive failures it opens and
// rejects work until resetAfter has elapsed, then admits one probe.
type breaker struct {
	mu         sync.Mutex
	state      breakerState
	failures   int
	threshold  int
	resetAfter time.Duration
	openedAt   time.Time
	now        func() time.Time
}

func newBreaker(threshold int, resetAfter time.Duration) *breaker {
	return &breaker{threshold: threshold, resetAfter: resetAfter, now: time.Now}
}

// execute runs fn unless the breaker is open, recording the outcome.
func (b *breaker) execute(fn func() error) error {
	if !b.allow() {
		return ErrUnavailable
	}
	err := fn()
	b.record(err)
	return err
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.resetAfter {
			return false
		}
		b.state = stateHalfOpen
		return true
	case stateHalfOpen:
		// One probe per reset cycle; a second caller waits for the outcome.
		return false
	default:
		return true
	}
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = stateClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
