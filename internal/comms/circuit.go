package comms

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is one of the three states in the breaker's state machine.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open and the
// timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // how long to stay open before probing
	OnStateChange    func(name string, from, to CircuitState)
}

// CircuitBreaker guards a single upstream endpoint, tripping open after
// FailureThreshold consecutive failures and probing again after Timeout
// (spec.md §4.3).
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failures       int
	successes      int
	lastFailure    time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{config: config, state: CircuitClosed, lastStateChange: time.Now()}
}

// canExecute reports whether a call may proceed right now, transitioning
// OPEN -> HALF_OPEN once the timeout has elapsed. Caller must hold cb.mu.
func (cb *CircuitBreaker) canExecute() bool {
	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if !cb.canExecute() {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()
	cb.recordResult(err)
	return err
}

// ExecuteWithResult runs fn, a generic value-returning operation, under the
// same breaker semantics as Execute.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	cb.mu.Lock()
	if !cb.canExecute() {
		cb.mu.Unlock()
		var zero T
		return zero, ErrCircuitOpen
	}
	cb.mu.Unlock()

	val, err := fn()
	cb.recordResult(err)
	return val, err
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.lastFailure = time.Now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) transitionTo(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.lastStateChange = time.Now()
	cb.failures = 0
	cb.successes = 0
	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerStats is a point-in-time snapshot of a breaker.
type CircuitBreakerStats struct {
	Name      string
	State     CircuitState
	Failures  int
	Successes int
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{Name: cb.config.Name, State: cb.state, Failures: cb.failures, Successes: cb.successes}
}

// Reset forces the breaker back to closed, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// Registry keeps one named CircuitBreaker per upstream endpoint.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewRegistry returns a Registry that lazily creates breakers using
// defaults when first referenced by name.
func NewRegistry(defaults CircuitBreakerConfig) *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker), defaults: defaults}
}

// Get returns the named breaker, creating it with the registry's defaults
// if it doesn't exist yet.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg := r.defaults
	cfg.Name = name
	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// OpenCircuits lists the names of every breaker currently open.
func (r *Registry) OpenCircuits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name, cb := range r.breakers {
		if cb.State() == CircuitOpen {
			out = append(out, name)
		}
	}
	return out
}
