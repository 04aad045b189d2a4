package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu  sync.Mutex
	doc map[string]*TeamState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: make(map[string]*TeamState)}
}

// Get returns a copy of the team's state.
func (m *MemoryStore) Get(_ context.Context, team string) (*TeamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.doc[team]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	return cloneState(state)
}

// Update atomically mutates the team's state.
func (m *MemoryStore) Update(_ context.Context, team string, fn func(*TeamState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := NewTeamState(team)
	if current, ok := m.doc[team]; ok {
		var err error
		if working, err = cloneState(current); err != nil {
			return err
		}
	}

	if err := fn(working); err != nil {
		return err
	}
	m.doc[team] = working
	return nil
}

// Teams lists teams with state, sorted.
func (m *MemoryStore) Teams(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.doc))
	for name := range m.doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
