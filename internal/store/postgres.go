package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps one row per team with an optimistic revision counter,
// for deployments where several control-plane processes share state. The
// compare-and-swap on revision prevents lost updates the same way the file
// store's per-team mutex does in-process.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTeamStateTable = `
CREATE TABLE IF NOT EXISTS team_state (
	team     TEXT PRIMARY KEY,
	revision BIGINT NOT NULL DEFAULT 0,
	doc      JSONB NOT NULL
)`

// casRetries bounds the optimistic concurrency retry loop.
const casRetries = 8

// NewPostgresStore creates the store and ensures its schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, createTeamStateTable); err != nil {
		return nil, fmt.Errorf("ensure team_state table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get returns the team's state.
func (p *PostgresStore) Get(ctx context.Context, team string) (*TeamState, error) {
	state, _, err := p.fetch(ctx, team)
	return state, err
}

func (p *PostgresStore) fetch(ctx context.Context, team string) (*TeamState, int64, error) {
	var raw []byte
	var revision int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, revision FROM team_state WHERE team = $1`, team,
	).Scan(&raw, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrTeamNotFound, team)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("fetch team state %s: %w", team, err)
	}

	state := &TeamState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, 0, fmt.Errorf("decode team state %s: %w", team, err)
	}
	return state, revision, nil
}

// Update runs fn in an optimistic-concurrency loop: read the row, apply fn,
// and write back only if the revision is unchanged, retrying on conflict
// with short jittered sleeps.
func (p *PostgresStore) Update(ctx context.Context, team string, fn func(*TeamState) error) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		state, revision, err := p.fetch(ctx, team)
		if errors.Is(err, ErrTeamNotFound) {
			state = NewTeamState(team)
			revision = -1
		} else if err != nil {
			return err
		}

		if err := fn(state); err != nil {
			return err
		}

		raw, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode team state %s: %w", team, err)
		}

		var tag int64
		if revision < 0 {
			ct, err := p.pool.Exec(ctx,
				`INSERT INTO team_state (team, revision, doc) VALUES ($1, 0, $2)
				 ON CONFLICT (team) DO NOTHING`, team, raw)
			if err != nil {
				return fmt.Errorf("insert team state %s: %w", team, err)
			}
			tag = ct.RowsAffected()
		} else {
			ct, err := p.pool.Exec(ctx,
				`UPDATE team_state SET doc = $1, revision = revision + 1
				 WHERE team = $2 AND revision = $3`, raw, team, revision)
			if err != nil {
				return fmt.Errorf("update team state %s: %w", team, err)
			}
			tag = ct.RowsAffected()
		}

		if tag == 1 {
			return nil
		}

		// Lost the race; back off briefly and retry.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10+rand.Intn(40)) * time.Millisecond): //nolint:gosec // jitter, not crypto
		}
	}
	return fmt.Errorf("update team state %s: too many revision conflicts", team)
}

// Teams lists teams with persisted state.
func (p *PostgresStore) Teams(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT team FROM team_state ORDER BY team`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
