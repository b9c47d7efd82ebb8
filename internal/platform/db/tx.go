package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errInfra marks begin/commit failures so callers can tell them apart
// from errors returned by the transaction body.
var errInfra = errors.New("platform/db")

// IsInfra reports whether err originated in the transaction machinery
// rather than in the caller's function.
func IsInfra(err error) bool {
	return errors.Is(err, errInfra)
}

// WithTx executes a function within a transaction using the
// RepeatableRead isolation level. The role-graph cycle check and the
// optimistic version bump rely on reading from the same snapshot that
// is written.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errInfra, err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit tx: %v", errInfra, err)
	}

	return nil
}
