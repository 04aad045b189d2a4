package store

import (
	"context"
	"errors"
)

// ErrTeamNotFound is returned when a team has no state and the caller asked
// for an existing one.
var ErrTeamNotFound = errors.New("team state not found")

// Store is the durable state interface. Update runs fn inside an atomic
// read-modify-write cycle serialized per team; fn receives the current state
// (created empty if absent) and its mutations are persisted iff fn returns
// nil.
type Store interface {
	// Get returns a copy of the team's state, or ErrTeamNotFound.
	Get(ctx context.Context, team string) (*TeamState, error)

	// Update atomically mutates the team's state.
	Update(ctx context.Context, team string, fn func(*TeamState) error) error

	// Teams lists the teams with persisted state.
	Teams(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
