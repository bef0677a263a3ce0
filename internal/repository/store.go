package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to queries and transaction scoping.
type Store struct {
	db          *pgxpool.Pool
	queries     *Queries
	lockTimeout time.Duration
}

// NewStore creates a store wrapper around a pgx connection pool. A positive
// lockTimeout bounds how long any statement in a RunInTx transaction waits for a row lock.
func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{
		db:          db,
		queries:     New(db),
		lockTimeout: lockTimeout,
	}
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

// RunInTx executes fn within a database transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classifyError(err))
	}
	return nil
}
