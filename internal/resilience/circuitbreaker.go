// Package resilience guards the external backends of the listening pipeline
// (speaker embedding, transcription, LLM) with circuit breakers, and chains
// transcribers into an ordered fallback group.
//
// An open breaker fails fast with [ErrCircuitOpen]. The pipeline treats that
// like any other backend error, so the verifier still fails open and the
// relevance filter still fails closed; they just stop waiting on a backend
// that is known to be down.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is what a guarded call returns while its backend is
// considered down.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // calls pass
	StateOpen                  // calls fail fast until the cool-down ends
	StateHalfOpen              // a few probe calls decide between closed and open
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a breaker. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name appears in log lines and readiness output, e.g. "stt/deepgram".
	Name string
	// MaxFailures in a row trip the breaker. Default 5.
	MaxFailures int
	// ResetTimeout is the cool-down before probing. Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMax probes must all succeed to close again. Default 3.
	HalfOpenMax int
	Now         func() time.Time
}

func (c *CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	out := *c
	if out.MaxFailures <= 0 {
		out.MaxFailures = 5
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = 30 * time.Second
	}
	if out.HalfOpenMax <= 0 {
		out.HalfOpenMax = 3
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// CircuitBreaker counts consecutive backend failures and short-circuits
// calls once a backend looks down.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu             sync.Mutex
	state          State
	failures       int
	openedAt       time.Time
	probes         int // admitted in the current half-open round
	probeSuccesses int
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults()}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn if the breaker allows it.
//
// A call that ends with [context.Canceled] is not held against the backend:
// the caller gave up, the backend did not fail. Deadline expiry does count,
// since a per-stage timeout firing means the backend was too slow.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.recordSuccess(probe)
	case errors.Is(err, context.Canceled):
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
	default:
		cb.recordFailure(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeSuccesses = 0, 0
		slog.Info("circuit breaker half-open", "breaker", cb.cfg.Name)
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probe bool) {
	if probe && cb.state == StateHalfOpen {
		cb.trip()
		slog.Warn("circuit breaker re-opened by failed probe", "breaker", cb.cfg.Name)
		return
	}
	if cb.state != StateClosed {
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.trip()
		slog.Warn("circuit breaker opened", "breaker", cb.cfg.Name, "failures", cb.failures)
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probe bool) {
	if probe && cb.state == StateHalfOpen {
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.cfg.HalfOpenMax {
			cb.close()
			slog.Info("circuit breaker closed after successful probes", "breaker", cb.cfg.Name)
		}
		return
	}
	if cb.state == StateClosed {
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Now()
	cb.failures = cb.cfg.MaxFailures
}

func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.failures = 0
	cb.probes, cb.probeSuccesses = 0, 0
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.close()
	slog.Info("circuit breaker manually reset", "breaker", cb.cfg.Name)
}
