// Package breaker implements a per-dependency circuit breaker: a
// failure gate with three states (closed, open, half-open) that fails
// fast while a downstream dependency is unhealthy and probes recovery
// lazily on the next call, without owning any timers of its own.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call when the breaker is open and the
// recovery timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// IsMatch classifies whether an error returned by the protected call
// should count as a breaker failure. The zero value (nil) matches any
// non-nil error, mirroring the Python original's "expected_exception:
// Exception" default.
type IsMatch func(error) bool

// Breaker gates calls to a single failing dependency. The critical
// section only ever touches state/counters; the protected call always
// runs outside the lock, so a slow or hanging downstream call never
// blocks another goroutine's state check.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	isMatch          IsMatch

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailureAt time.Time
}

// New constructs a named breaker. A failureThreshold of 0 means "never
// trip." A negative recoveryTimeout means the breaker transitions
// straight from OPEN to HALF_OPEN on the very next call.
func New(name string, failureThreshold int, recoveryTimeout time.Duration, isMatch IsMatch) *Breaker {
	if isMatch == nil {
		isMatch = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		isMatch:          isMatch,
		state:            Closed,
	}
}

// Name returns the breaker's name, e.g. "websocket" or "broker".
func (b *Breaker) Name() string { return b.name }

// Call executes fn under breaker protection. If the breaker is open and
// the recovery timeout has not elapsed, fn is never invoked and ErrOpen
// is returned immediately. Otherwise fn runs outside the lock; its
// outcome updates breaker state under the lock afterward.
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()

	if err == nil {
		b.onSuccess()
		return nil
	}

	if b.isMatch(err) {
		b.onFailure()
	}
	return err
}

// before evaluates OPEN -> HALF_OPEN transition lazily and fails fast
// while still OPEN.
func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.lastFailureAt) >= b.recoveryTimeout {
			b.state = HalfOpen
			return nil
		}
		return ErrOpen
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Closed
	}
	b.failureCount = 0
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = time.Now()

	if b.failureThreshold > 0 && b.failureCount >= b.failureThreshold {
		b.state = Open
	}
}

// Snapshot is a read-only view of breaker state for metrics/heartbeat.
type Snapshot struct {
	Name          string
	State         State
	FailureCount  int
	LastFailureAt time.Time
}

// State returns a consistent snapshot of the breaker's current state.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount,
		LastFailureAt: b.lastFailureAt,
	}
}
