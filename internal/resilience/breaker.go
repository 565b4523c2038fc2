// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker protects an outbound dependency with a circuit breaker. Consecutive
// failures past the threshold open the circuit; after the cooldown one probe
// call is let through, and its outcome decides whether the circuit closes.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and stays open for the given cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure()
		return err
	}
	b.reset()
	return nil
}

// State reports the current breaker state for health reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// recordFailure must be called with b.mu held. A failure during the half-open
// probe reopens the circuit immediately.
func (b *Breaker) recordFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// reset must be called with b.mu held.
func (b *Breaker) reset() {
	b.failures = 0
	b.state = stateClosed
}
