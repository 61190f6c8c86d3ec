package retry

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int32

const (
	// CircuitClosed means the circuit is functioning normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped and is not allowing requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit is testing if recovery is possible.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxErrors is the number of consecutive errors before opening the circuit.
	MaxErrors int

	// ResetTimeout is how long to wait before attempting to close the circuit.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of successful calls needed to close the circuit.
	SuccessThreshold int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxErrors:        5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
	}
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	config *BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	errors    int
	successes int
	lastError time.Time
}

// NewBreaker creates a new circuit breaker with the given configuration.
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{config: config, now: time.Now}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go through. An open circuit turns
// half-open once the reset timeout has passed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.lastError) > b.config.ResetTimeout {
		b.setState(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// RecordSuccess records a successful operation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(CircuitClosed)
			b.successes = 0
			b.errors = 0
		}
	default:
		b.errors = 0
	}
}

// RecordError records a failed operation.
func (b *Breaker) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = b.now()
	switch b.state {
	case CircuitClosed:
		b.errors++
		if b.errors >= b.config.MaxErrors {
			b.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.setState(CircuitOpen)
		b.successes = 0
	}
}

// Reset manually resets the circuit breaker to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(CircuitClosed)
	b.errors = 0
	b.successes = 0
}

// Execute runs fn with circuit breaker protection. Permanent errors do not
// count against the circuit.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := fn()
	switch {
	case err == nil:
		b.RecordSuccess()
	case IsPermanentError(err):
	default:
		b.RecordError()
	}
	return err
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to CircuitState) {
	from := b.state
	b.state = to
	if b.config.OnStateChange != nil && from != to {
		b.config.OnStateChange(from, to)
	}
}
