package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists the whole fleet state as one human-inspectable JSON
// document. Writes are atomic: the document is written to a temp file in the
// same directory and renamed over the old one, so a crash mid-update cannot
// leave a torn document.
type FileStore struct {
	path string

	mu      sync.Mutex // guards doc and file writes
	teamMu  map[string]*sync.Mutex
	muGuard sync.Mutex // guards teamMu map
	doc     map[string]*TeamState
}

// document is the on-disk shape, kept stable for operational continuity.
type document struct {
	Teams map[string]*TeamState `json:"teams"`
}

// NewFileStore opens (or initializes) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		teamMu: make(map[string]*sync.Mutex),
		doc:    make(map[string]*TeamState),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	default:
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
		if doc.Teams != nil {
			fs.doc = doc.Teams
		}
	}
	return fs, nil
}

// Get returns a copy of the team's state.
func (f *FileStore) Get(_ context.Context, team string) (*TeamState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.doc[team]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	return cloneState(state)
}

// Update runs fn inside the team's read-modify-write cycle and persists the
// document on success.
func (f *FileStore) Update(_ context.Context, team string, fn func(*TeamState) error) error {
	lock := f.lockFor(team)
	lock.Lock()
	defer lock.Unlock()

	f.mu.Lock()
	current, ok := f.doc[team]
	f.mu.Unlock()

	var working *TeamState
	if ok {
		var err error
		if working, err = cloneState(current); err != nil {
			return err
		}
	} else {
		working = NewTeamState(team)
	}

	if err := fn(working); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc[team] = working
	return f.persistLocked()
}

// Teams lists teams with persisted state, sorted.
func (f *FileStore) Teams(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.doc))
	for name := range f.doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) lockFor(team string) *sync.Mutex {
	f.muGuard.Lock()
	defer f.muGuard.Unlock()
	m, ok := f.teamMu[team]
	if !ok {
		m = &sync.Mutex{}
		f.teamMu[team] = m
	}
	return m
}

// persistLocked writes the document atomically. Caller holds f.mu.
func (f *FileStore) persistLocked() error {
	raw, err := json.MarshalIndent(document{Teams: f.doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".switchpilot-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// cloneState deep-copies a team state via its JSON form.
func cloneState(s *TeamState) (*TeamState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	out := &TeamState{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return out, nil
}
