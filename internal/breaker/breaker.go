// Package breaker implements the per-(team, operation) domain circuit
// breaker that gates whether automated actions may even be attempted. Its
// state is persisted in the state store so decisions survive restarts.
//
// Transitions: closed -> open after the consecutive-failure threshold;
// open -> half-open once the stabilization timeout elapses; half-open ->
// closed on the next success, half-open -> open on the next failure.
// A success while closed does not decay an accumulated failure count; only
// a recovery through half-open clears it.
package breaker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/store"
)

// Config holds the breaker policy constants.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker. Default: 3.
	FailureThreshold int
	// StabilizationTimeout is how long the breaker stays open before a
	// half-open probe is allowed. Default: 30 minutes.
	StabilizationTimeout time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Breaker gates operations per (team, operation) key.
type Breaker struct {
	store  store.Store
	cfg    Config
	logger zerolog.Logger
}

// Decision is the result of a Check call.
type Decision struct {
	Allowed    bool
	State      store.BreakerStatus
	RetryAfter time.Duration // remaining open time when denied
}

// New creates a breaker over the given store.
func New(s store.Store, cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.StabilizationTimeout == 0 {
		cfg.StabilizationTimeout = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{store: s, cfg: cfg, logger: logger}
}

// Check reports whether the operation may be attempted. A check against an
// open breaker whose stabilization timeout has elapsed transitions it to
// half-open and allows exactly one attempt; callers must follow an allowed
// half-open check with RecordOutcome before checking again.
func (b *Breaker) Check(ctx context.Context, teamName string, op fleet.Operation) (Decision, error) {
	var d Decision
	err := b.store.Update(ctx, teamName, func(s *store.TeamState) error {
		cb := s.Breaker(op)
		now := b.cfg.Now()

		switch cb.Status {
		case store.BreakerClosed:
			d = Decision{Allowed: true, State: store.BreakerClosed}
		case store.BreakerHalfOpen:
			d = Decision{Allowed: true, State: store.BreakerHalfOpen}
		case store.BreakerOpen:
			elapsed := now.Sub(cb.LastFailureAt)
			if elapsed >= b.cfg.StabilizationTimeout {
				cb.Status = store.BreakerHalfOpen
				cb.UpdatedAt = now.UTC()
				d = Decision{Allowed: true, State: store.BreakerHalfOpen}
				b.logger.Info().Str("team", teamName).Str("operation", string(op)).
					Msg("circuit breaker half-open, allowing one probe attempt")
			} else {
				d = Decision{
					Allowed:    false,
					State:      store.BreakerOpen,
					RetryAfter: b.cfg.StabilizationTimeout - elapsed,
				}
			}
		}
		return nil
	})
	return d, err
}

// RecordOutcome feeds an attempt result back into the breaker. It must be
// called by the component that just attempted the gated operation.
func (b *Breaker) RecordOutcome(ctx context.Context, teamName string, op fleet.Operation, success bool) error {
	return b.store.Update(ctx, teamName, func(s *store.TeamState) error {
		cb := s.Breaker(op)
		now := b.cfg.Now().UTC()
		cb.UpdatedAt = now

		if success {
			if cb.Status == store.BreakerHalfOpen {
				cb.Status = store.BreakerClosed
				cb.ConsecutiveFailures = 0
				b.logger.Info().Str("team", teamName).Str("operation", string(op)).
					Msg("circuit breaker closed after successful probe")
			}
			// A success while closed does not decay the failure count.
			return nil
		}

		cb.ConsecutiveFailures++
		cb.LastFailureAt = now

		if cb.Status == store.BreakerHalfOpen || cb.ConsecutiveFailures >= b.cfg.FailureThreshold {
			cb.Status = store.BreakerOpen
			b.logger.Warn().Str("team", teamName).Str("operation", string(op)).
				Int("consecutive_failures", cb.ConsecutiveFailures).
				Msg("circuit breaker opened")
		}
		return nil
	})
}

// Reset forces the breaker closed with a zero failure count. Operator use.
func (b *Breaker) Reset(ctx context.Context, teamName string, op fleet.Operation) error {
	return b.store.Update(ctx, teamName, func(s *store.TeamState) error {
		cb := s.Breaker(op)
		cb.Status = store.BreakerClosed
		cb.ConsecutiveFailures = 0
		cb.UpdatedAt = b.cfg.Now().UTC()
		return nil
	})
}

// Snapshot returns the current breaker state for audit attachment.
func (b *Breaker) Snapshot(ctx context.Context, teamName string, op fleet.Operation) (store.CircuitBreakerState, error) {
	state, err := b.store.Get(ctx, teamName)
	if err != nil {
		return store.CircuitBreakerState{Status: store.BreakerClosed}, nil //nolint:nilerr // absent state means a pristine closed breaker
	}
	if cb, ok := state.Breakers[string(op)]; ok {
		return *cb, nil
	}
	return store.CircuitBreakerState{Status: store.BreakerClosed}, nil
}
