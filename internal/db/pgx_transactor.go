package db

import (
	"context"
	"fmt"

	"github.com/crackzone/teams/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type TxContextKey struct{}

type pgxTransactor struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPgxTransactor runs every transaction at SERIALIZABLE isolation and
// replays fn up to maxRetries times when postgres aborts it with a
// serialization failure or deadlock.
func NewPgxTransactor(pool *pgxpool.Pool, maxRetries int) Transactor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &pgxTransactor{pool: pool, maxRetries: maxRetries}
}

func (t *pgxTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if _, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	return retry(ctx, t.maxRetries, func() error {
		return t.runOnce(ctx, fn)
	})
}

// retry calls run up to attempts times, stopping at the first result that
// is not a serialization failure or deadlock.
func retry(ctx context.Context, attempts int, run func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = run()
		if err == nil || !IsRetryable(err) {
			return err
		}
		logger.FromContext(ctx).Debug("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (t *pgxTransactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		// Rollback after a successful commit is a no-op returning ErrTxClosed.
		_ = tx.Rollback(ctx)
	}()

	ctxWithTx := context.WithValue(ctx, TxContextKey{}, tx)

	if err = fn(ctxWithTx); err != nil {
		return fmt.Errorf("transaction function failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IsRetryable reports whether err carries a postgres error that aborted the
// transaction because of a concurrent one.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

func GetPgxExecutorFromContext(ctx context.Context, pool *pgxpool.Pool) Executor {
	if tx, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
