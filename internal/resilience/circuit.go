// Package resilience provides the retry, backoff, and circuit breaker
// machinery shared by provider calls and agent task execution.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many consecutive failures — calls are rejected
	// without being attempted until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call to test recovery.
	CircuitHalfOpen
)

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

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open. Callers treat the guarded provider as unavailable and fall through to
// the next one rather than failing the request.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitConfig controls circuit breaker behavior.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a probe is allowed.
	// Default: 30s.
	Cooldown time.Duration

	// HalfOpenProbes is the number of successful probes required in
	// half-open state before closing the circuit. Default: 1.
	HalfOpenProbes int

	// ShouldTrip optionally restricts which errors count toward the failure
	// threshold. If nil, every error counts.
	ShouldTrip func(err error) bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitConfig returns sensible defaults for provider calls.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker implements the circuit breaker pattern for a single provider.
type Breaker struct {
	cfg   CircuitConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenSuccesses   int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a circuit breaker with the given config.
func NewBreaker(cfg CircuitConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen without
// invoking fn while the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current circuit state, accounting for cooldown expiry.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen && b.nowFunc().Sub(b.lastFailureTime) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

// Reset forces the circuit back to closed. Used for manual recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.state
	b.state = CircuitClosed
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	if old != CircuitClosed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(old, CircuitClosed)
	}
}

// Counters returns the current failure count and state for observability.
func (b *Breaker) Counters() (consecutiveFailures int, state CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures, b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if b.nowFunc().Sub(b.lastFailureTime) >= b.cfg.Cooldown {
			b.transition(CircuitHalfOpen)
			return nil // allow probe
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil // allow probe
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	shouldTrip := b.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil || !shouldTrip(err) {
		switch b.state {
		case CircuitHalfOpen:
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.cfg.HalfOpenProbes {
				b.transition(CircuitClosed)
				b.consecutiveFailures = 0
				b.halfOpenSuccesses = 0
			}
		case CircuitClosed:
			b.consecutiveFailures = 0
		}
		return
	}

	b.consecutiveFailures++
	b.lastFailureTime = b.nowFunc()

	switch b.state {
	case CircuitClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure in half-open reopens the circuit.
		b.transition(CircuitOpen)
		b.halfOpenSuccesses = 0
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// ProviderBreakers manages one circuit breaker per authority provider.
// Provider health, like provider quota, belongs to the provider rather than
// any one session, so breakers are shared across all sessions.
type ProviderBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      CircuitConfig
}

// NewProviderBreakers creates a registry of per-provider circuit breakers.
func NewProviderBreakers(cfg CircuitConfig) *ProviderBreakers {
	return &ProviderBreakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the named provider, creating one if needed.
func (pb *ProviderBreakers) Get(provider string) *Breaker {
	pb.mu.RLock()
	b, ok := pb.breakers[provider]
	pb.mu.RUnlock()
	if ok {
		return b
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	if b, ok = pb.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(pb.cfg)
	pb.breakers[provider] = b
	return b
}

// States returns a snapshot of all breaker states.
func (pb *ProviderBreakers) States() map[string]CircuitState {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	states := make(map[string]CircuitState, len(pb.breakers))
	for name, b := range pb.breakers {
		states[name] = b.State()
	}
	return states
}
