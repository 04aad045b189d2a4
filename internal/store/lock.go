package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/switchpilot/switchpilot/internal/fleet"
)

// Lock errors.
var (
	// ErrLockTimeout is returned when acquisition exceeds the caller's wait
	// budget. It is a normal contention outcome, not evidence of unhealth.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrLockNotHeld is returned when releasing a lock the caller no longer
	// owns.
	ErrLockNotHeld = errors.New("lock not held by this owner")
)

// LockManager serializes switch orchestration per (team, operation) through
// the state store. Acquisition polls with jittered exponential backoff so
// teams sharing a scheduler do not retry in lockstep.
type LockManager struct {
	store Store

	// StaleAfter is the age past which a held lock is considered abandoned
	// and may be stolen. Default: 30 minutes.
	StaleAfter time.Duration
}

// NewLockManager creates a lock manager over the given store.
func NewLockManager(s Store) *LockManager {
	return &LockManager{store: s, StaleAfter: 30 * time.Minute}
}

// Lease is an acquired lock. Release it on every terminal path.
type Lease struct {
	mgr   *LockManager
	team  string
	op    fleet.Operation
	Token string
}

// Acquire blocks, polling up to maxWait, until the (team, operation) lock is
// held. On timeout it returns ErrLockTimeout without mutating any state.
func (m *LockManager) Acquire(ctx context.Context, teamName string, op fleet.Operation, maxWait time.Duration) (*Lease, error) {
	token := "lock_" + uuid.New().String()
	deadline := time.Now().Add(maxWait)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxWait
	policy := backoff.WithContext(bo, ctx)

	try := func() error {
		if time.Now().After(deadline) {
			return backoff.Permanent(ErrLockTimeout)
		}
		err := m.store.Update(ctx, teamName, func(s *TeamState) error {
			if s.Locks == nil {
				s.Locks = make(map[string]*LockInfo)
			}
			held, ok := s.Locks[string(op)]
			if ok && held.Owner != token && time.Since(held.AcquiredAt) < m.StaleAfter {
				return fmt.Errorf("%w: held by %s since %s", errLockBusy, held.Owner, held.AcquiredAt.Format(time.RFC3339))
			}
			s.Locks[string(op)] = &LockInfo{Owner: token, AcquiredAt: time.Now().UTC()}
			return nil
		})
		return err
	}

	if err := backoff.Retry(try, policy); err != nil {
		if errors.Is(err, errLockBusy) || errors.Is(err, ErrLockTimeout) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	return &Lease{mgr: m, team: teamName, op: op, Token: token}, nil
}

// errLockBusy is internal: it marks an acquisition attempt that should be
// retried until the wait budget is spent.
var errLockBusy = errors.New("lock busy")

// Release frees the lock if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	return l.mgr.store.Update(ctx, l.team, func(s *TeamState) error {
		held, ok := s.Locks[string(l.op)]
		if !ok || held.Owner != l.Token {
			return ErrLockNotHeld
		}
		delete(s.Locks, string(l.op))
		return nil
	})
}
