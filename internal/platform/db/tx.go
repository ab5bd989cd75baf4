package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by pools, pooled connections and
// transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is a Querier that can open a transaction.
type Beginner interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type contextKey string

const (
	DBConnKey contextKey = "db_conn"
	DBTxKey   contextKey = "db_tx"
)

// FromContext returns the innermost database handle bound to ctx: the open
// transaction, then the request-scoped connection, then fallback.
func FromContext(ctx context.Context, fallback Beginner) Beginner {
	if tx, ok := ctx.Value(DBTxKey).(pgx.Tx); ok && tx != nil {
		return tx
	}
	if conn, ok := ctx.Value(DBConnKey).(Beginner); ok && conn != nil {
		return conn
	}
	return fallback
}

// CommitError marks a failure of the final COMMIT of a WithTx call.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit transaction: %v", e.Err) }

func (e *CommitError) Unwrap() error { return e.Err }

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. Repositories reached through the
// context passed to fn run on the transaction.
func WithTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	tx, err := FromContext(ctx, b).Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return &CommitError{Err: err}
	}
	return nil
}

// AdvisoryXactLock takes a transaction-scoped advisory lock derived from key.
// The lock is held until the surrounding transaction ends.
func AdvisoryXactLock(ctx context.Context, q Querier, key string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

// SQLSTATE codes reported when a write collides with a concurrent one.
const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsConflict reports whether err is a constraint or serialization failure
// caused by a concurrent writer.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeExclusionViolation, codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
