package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// WithTx executes fn within a database transaction, committing on success
// and rolling back on error or panic.
//
// Usage:
//
//	err := store.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
//	    _, err := tx.Exec(ctx, "update ...")
//	    return err
//	})
func WithTx(ctx context.Context, pool Pooler, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // best effort during panic unwind
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w", errors.Join(err, rerr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// WithTxResult is like WithTx but returns a value from fn.
func WithTxResult[T any](ctx context.Context, pool Pooler, fn func(tx pgx.Tx) (T, error)) (T, error) {
	var result T

	tx, err := pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // best effort during panic unwind
			panic(v)
		}
	}()

	result, err = fn(tx)
	if err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			return result, fmt.Errorf("%w", errors.Join(err, rerr))
		}
		return result, err
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

// Pooler is the subset of *pgxpool.Pool used by WithTx/WithTxResult, kept
// narrow so tests can substitute a fake transaction source.
type Pooler interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
