package opsflags

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFlagNotFound is returned when a flag is not found.
var ErrFlagNotFound = errors.New("operational flag not found")

// Repository defines the interface for flag storage.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error
}

// InMemoryRepository is an in-memory Repository, used standalone in the
// controller process and in tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewInMemoryRepository creates a repository seeded with the default flags.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{flags: DefaultFlags()}
}

// GetFlag retrieves a single flag by key.
func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	copied := *flag
	return &copied, nil
}

// GetAllFlags retrieves all flags.
func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Flag, len(r.flags))
	for k, v := range r.flags {
		copied := *v
		result[k] = &copied
	}
	return result, nil
}

// SetFlag creates or updates a flag.
func (r *InMemoryRepository) SetFlag(_ context.Context, flag *Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flags[flag.Key] = &Flag{Key: flag.Key, Value: flag.Value, UpdatedAt: time.Now()}
	return nil
}
