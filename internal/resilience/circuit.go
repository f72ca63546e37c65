package resilience

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to determine recovery.
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

// Breaker is a consecutive-failure circuit breaker guarding one downstream
// dependency. It opens after Threshold consecutive failures, cools off for
// the configured period, then lets a single probe through.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	openFor   time.Duration
	openedAt  time.Time
	target    string
	logger    zerolog.Logger
}

// NewBreaker constructs a breaker for the named target. The target is used
// as the telemetry label.
func NewBreaker(target string, threshold int, openFor time.Duration, logger zerolog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	b := &Breaker{
		state:     Closed,
		threshold: threshold,
		openFor:   openFor,
		target:    strings.TrimSpace(target),
		logger:    logger,
	}
	b.recordState()
	return b
}

// Allow reports whether a request is permitted. An open breaker permits a
// probe once the cool-off period has passed and moves to half-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.transition(HalfOpen)
	}
	return true
}

// Report records the outcome of a permitted request.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state == HalfOpen && success:
		b.failures = 0
		b.transition(Closed)
	case b.state == HalfOpen:
		b.transition(Open)
	case success:
		b.failures = 0
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = time.Now()
		b.failures = 0
		if BreakerOpenedTotal != nil {
			BreakerOpenedTotal.WithLabelValues(b.targetLabel()).Inc()
		}
	}
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.targetLabel(), prev.String(), next.String()).Inc()
	}
	b.recordState()
	b.logger.Info().
		Str("target", b.targetLabel()).
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("breaker_transition")
}

func (b *Breaker) recordState() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.targetLabel()).Set(stateGaugeValue(b.state))
}

func (b *Breaker) targetLabel() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func stateGaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(delta)
}
