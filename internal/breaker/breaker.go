// Package breaker implements a three-state circuit breaker for outbound
// provider calls. Circuit state is shared across instances through a
// pluggable store, with Redis as the production backend and an in-process
// fallback when Redis is unreachable.
package breaker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shiplane/wallet-ledger/internal/config"
)

// State is the position of a provider's circuit
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Circuit is the shared per-provider breaker state
type Circuit struct {
	State     State     `json:"state"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	OpenedAt  time.Time `json:"opened_at,omitempty"`
}

// ErrCircuitOpen indicates calls to a provider are being rejected
type ErrCircuitOpen struct {
	Provider   string
	RetryAfter time.Duration
}

func (e ErrCircuitOpen) Error() string {
	return "circuit open for provider " + e.Provider +
		", retry after " + strconv.FormatInt(int64(e.RetryAfter.Seconds()), 10) + "s"
}

// Is implements the errors.Is interface for ErrCircuitOpen
func (e ErrCircuitOpen) Is(target error) bool {
	t, ok := target.(ErrCircuitOpen)
	if !ok {
		return false
	}
	if t.Provider == "" {
		return true
	}
	return e.Provider == t.Provider
}

// Clock abstracts time for deterministic tests
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker guards calls to any number of providers, each with its own circuit
type Breaker struct {
	enabled          bool
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	store            StateStore
	clock            Clock
	logger           *slog.Logger
}

// New creates a breaker backed by the given state store
func New(logger *slog.Logger, cfg config.BreakerConfig, store StateStore) *Breaker {
	return &Breaker{
		enabled:          cfg.Enabled,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		store:            store,
		clock:            realClock{},
		logger:           logger,
	}
}

// WithClock replaces the breaker's clock. Intended for tests.
func (b *Breaker) WithClock(clock Clock) *Breaker {
	b.clock = clock
	return b
}

// Execute runs fn under the provider's circuit. An open circuit rejects the
// call with ErrCircuitOpen before fn runs. When the kill switch is disabled
// the breaker is a transparent pass-through.
func (b *Breaker) Execute(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	if !b.enabled {
		return fn(ctx)
	}

	circuit := b.load(ctx, provider)

	if circuit.State == StateOpen {
		elapsed := b.clock.Now().Sub(circuit.OpenedAt)
		if elapsed < b.cooldown {
			return ErrCircuitOpen{Provider: provider, RetryAfter: b.cooldown - elapsed}
		}
		circuit.State = StateHalfOpen
		circuit.Successes = 0
		b.save(ctx, provider, circuit)
		b.logger.Info("Circuit half-open, allowing probe", "provider", provider)
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure(ctx, provider, circuit)
		return err
	}

	b.recordSuccess(ctx, provider, circuit)
	return nil
}

// State reports the provider's current circuit state
func (b *Breaker) State(ctx context.Context, provider string) State {
	if !b.enabled {
		return StateClosed
	}
	circuit := b.load(ctx, provider)
	if circuit.State == StateOpen && b.clock.Now().Sub(circuit.OpenedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return circuit.State
}

func (b *Breaker) recordSuccess(ctx context.Context, provider string, circuit *Circuit) {
	switch circuit.State {
	case StateHalfOpen:
		circuit.Successes++
		if circuit.Successes >= b.successThreshold {
			b.logger.Info("Circuit closed after successful probes",
				"provider", provider,
				"successes", circuit.Successes,
			)
			circuit.State = StateClosed
			circuit.Failures = 0
			circuit.Successes = 0
		}
	default:
		// A success wipes the failure streak; there is no time-window decay
		circuit.State = StateClosed
		circuit.Failures = 0
		circuit.Successes = 0
	}
	b.save(ctx, provider, circuit)
}

func (b *Breaker) recordFailure(ctx context.Context, provider string, circuit *Circuit) {
	if circuit.State == StateHalfOpen {
		// A failed probe reopens immediately
		b.trip(ctx, provider, circuit)
		return
	}

	circuit.Failures++
	if circuit.Failures >= b.failureThreshold {
		b.trip(ctx, provider, circuit)
		return
	}
	b.save(ctx, provider, circuit)
}

func (b *Breaker) trip(ctx context.Context, provider string, circuit *Circuit) {
	circuit.State = StateOpen
	circuit.OpenedAt = b.clock.Now()
	circuit.Successes = 0
	b.save(ctx, provider, circuit)
	b.logger.Warn("Circuit opened",
		"provider", provider,
		"failures", circuit.Failures,
		"cooldown", b.cooldown.String(),
	)
}

// load fetches the provider's circuit, treating store failures and missing
// state as a fresh closed circuit. Failing open here would take every
// provider down with the state store.
func (b *Breaker) load(ctx context.Context, provider string) *Circuit {
	circuit, err := b.store.Get(ctx, provider)
	if err != nil {
		b.logger.Error("Failed to load circuit state, treating as closed",
			"provider", provider,
			"error", err,
		)
		return &Circuit{State: StateClosed}
	}
	if circuit == nil {
		return &Circuit{State: StateClosed}
	}
	return circuit
}

func (b *Breaker) save(ctx context.Context, provider string, circuit *Circuit) {
	if err := b.store.Set(ctx, provider, circuit); err != nil {
		b.logger.Error("Failed to persist circuit state",
			"provider", provider,
			"state", string(circuit.State),
			"error", err,
		)
	}
}
