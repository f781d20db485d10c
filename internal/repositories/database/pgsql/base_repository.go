package pgsql

import (
	"context"
	"errors"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes that are translated into typed errors.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries run
// inside and outside an atomic unit.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	Pool *pgxpool.Pool
}

// Begin starts a new database transaction
func (r *BaseRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return nil, translateError(err, "begin transaction")
	}
	return tx, nil
}

// Commit commits a transaction
func (r *BaseRepository) Commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return translateError(err, "commit transaction")
	}
	return nil
}

// Rollback rolls back a transaction
func (r *BaseRepository) Rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return translateError(err, "rollback transaction")
	}
	return nil
}

// translateError maps driver errors onto application error kinds so that no pgx
// error leaves the repository layer untyped.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.Wrap(apperrors.KindNotFound, err, "%s: not found", op)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindPersistenceTimeout, err, "%s: timed out", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return apperrors.Wrap(apperrors.KindConflict, err, "%s: %s", op, pgErr.Message)
		case pgForeignKeyViolation, pgCheckViolation:
			return apperrors.Wrap(apperrors.KindValidation, err, "%s: %s", op, pgErr.Message)
		case pgExclusionViolation:
			return apperrors.Wrap(apperrors.KindOverlap, err, "%s: %s", op, pgErr.Message)
		case pgQueryCanceled:
			return apperrors.Wrap(apperrors.KindPersistenceTimeout, err, "%s: %s", op, pgErr.Message)
		}
	}
	return apperrors.Wrap(apperrors.KindInternal, err, "%s failed", op)
}
