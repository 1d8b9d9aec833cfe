// Package postgres implements the store contract on PostgreSQL via pgx.
//
// Conditional updates are single statements whose WHERE clause carries the
// guarding predicate; a zero rows-affected result is translated to
// store.ErrConditionFailed. Unique violations (SQLSTATE 23505) are
// translated to store.ErrDuplicate for idempotency detection.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/astraea-labs/astraea/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve plain and transactional execution.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool // nil when this Store is bound to a transaction
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// WithTx runs fn inside a database transaction. A Store already bound to a
// transaction joins it instead of opening a nested one.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translateErr maps pgx errors onto the store's sentinel errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicate
	}
	return err
}

// execConditional runs a conditional update and enforces the rows-affected
// contract: zero rows means the predicate did not hold.
func (s *Store) execConditional(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConditionFailed
	}
	return nil
}
