package pgsql

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	"github.com/SscSPs/allowance_wallet/internal/models"
	"github.com/SscSPs/allowance_wallet/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgxUnitOfWork runs ledger writes inside one database transaction.
type PgxUnitOfWork struct {
	BaseRepository
}

func newPgxUnitOfWork(pool *pgxpool.Pool) portsrepo.UnitOfWork {
	return &PgxUnitOfWork{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.UnitOfWork = (*PgxUnitOfWork)(nil)

// RunAtomic begins a transaction, hands fn a store bound to it and commits when
// fn succeeds. Any error rolls everything back.
func (u *PgxUnitOfWork) RunAtomic(ctx context.Context, fn func(ctx context.Context, store portsrepo.LedgerStore) error) error {
	tx, err := u.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := u.Rollback(context.WithoutCancel(ctx), tx); rbErr != nil {
			slog.WarnContext(ctx, "Failed to roll back ledger transaction", "error", rbErr)
		}
	}()

	if err := fn(ctx, &pgxLedgerStore{tx: tx}); err != nil {
		return err
	}
	return u.Commit(ctx, tx)
}

// pgxLedgerStore implements LedgerStore on an open pgx transaction.
type pgxLedgerStore struct {
	tx pgx.Tx
}

var _ portsrepo.LedgerStore = (*pgxLedgerStore)(nil)

func (s *pgxLedgerStore) FindTransactionForUpdate(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return findTransaction(ctx, s.tx, transactionID, true)
}

func (s *pgxLedgerStore) SaveTransaction(ctx context.Context, txn domain.Transaction) error {
	m := mapping.ToModelTransaction(txn)
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
	`
	_, err := s.tx.Exec(ctx, query,
		m.TransactionID,
		m.FromAccountID,
		m.ToAccountID,
		m.Amount,
		m.Kind,
		m.Status,
		m.Category,
		m.ProductRef,
		m.RefundOf,
		m.SettlementRef,
		m.CancelReason,
		m.FailureReason,
		m.CompletedAt,
		m.CancelledAt,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.Version,
	)
	return translateError(err, "saving transaction "+m.TransactionID)
}

func (s *pgxLedgerStore) UpdateTransactionStatus(ctx context.Context, txn domain.Transaction) error {
	m := mapping.ToModelTransaction(txn)
	query := `
		UPDATE transactions
		SET status = $2, settlement_ref = $3, cancel_reason = $4, failure_reason = $5,
		    completed_at = $6, cancelled_at = $7, last_updated_at = $8, last_updated_by = $9, version = $10
		WHERE transaction_id = $1;
	`
	cmdTag, err := s.tx.Exec(ctx, query,
		m.TransactionID,
		m.Status,
		m.SettlementRef,
		m.CancelReason,
		m.FailureReason,
		m.CompletedAt,
		m.CancelledAt,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.Version,
	)
	if err != nil {
		return translateError(err, "updating transaction "+m.TransactionID)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("transaction", m.TransactionID)
	}
	return nil
}

// IncrementConsumed creates the period row on first use, then adds amount only
// while the window is active and the total stays within its stored ceiling.
// The row lock taken by the UPDATE serialises concurrent payments against the
// same period.
func (s *pgxLedgerStore) IncrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	if err := openUsage(ctx, s.tx, windowID, periodStart); err != nil {
		return err
	}

	cmdTag, err := s.tx.Exec(ctx, `
		UPDATE window_usage u
		SET consumed = u.consumed + $3, updated_at = NOW()
		FROM limit_windows w
		WHERE u.window_id = $1 AND u.period_start = $2
		  AND w.window_id = u.window_id
		  AND w.is_active
		  AND u.consumed + $3 <= w.ceiling;
	`, windowID, periodStart, amount)
	if err != nil {
		return translateError(err, "reserving capacity on "+windowID)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindConflict, "window %s is inactive or has no capacity left for %s", windowID, amount.String())
	}
	return nil
}

// LockUsage takes the period row lock that every reservation and release also takes.
func (s *pgxLedgerStore) LockUsage(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	if err := openUsage(ctx, s.tx, windowID, periodStart); err != nil {
		return decimal.Zero, err
	}
	var consumed decimal.Decimal
	err := s.tx.QueryRow(ctx, `
		SELECT consumed FROM window_usage
		WHERE window_id = $1 AND period_start = $2
		FOR UPDATE;
	`, windowID, periodStart).Scan(&consumed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperrors.NewNotFound("limit window", windowID)
		}
		return decimal.Zero, translateError(err, "locking usage of "+windowID)
	}
	return consumed, nil
}

// openUsage inserts an empty period row unless it exists or the window is gone.
func openUsage(ctx context.Context, q querier, windowID string, periodStart time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO window_usage (window_id, period_start, consumed, updated_at)
		SELECT window_id, $2, 0, NOW() FROM limit_windows WHERE window_id = $1
		ON CONFLICT (window_id, period_start) DO NOTHING;
	`, windowID, periodStart)
	return translateError(err, "opening usage of "+windowID)
}

func (s *pgxLedgerStore) DecrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE window_usage
		SET consumed = GREATEST(consumed - $3, 0), updated_at = NOW()
		WHERE window_id = $1 AND period_start = $2;
	`, windowID, periodStart, amount)
	return translateError(err, "releasing capacity on "+windowID)
}

func (s *pgxLedgerStore) SetConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO window_usage (window_id, period_start, consumed, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (window_id, period_start)
		DO UPDATE SET consumed = EXCLUDED.consumed, updated_at = EXCLUDED.updated_at;
	`, windowID, periodStart, amount)
	return translateError(err, "setting consumption of "+windowID)
}

func (s *pgxLedgerStore) SaveReservations(ctx context.Context, reservations []domain.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range reservations {
		m := mapping.ToModelReservation(r)
		batch.Queue(`
			INSERT INTO transaction_reservations (transaction_id, window_id, period_start, amount)
			VALUES ($1, $2, $3, $4);
		`, m.TransactionID, m.WindowID, m.PeriodStart, m.Amount)
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return translateError(err, "saving reservations")
	}
	return nil
}

func (s *pgxLedgerStore) FindReservations(ctx context.Context, transactionID string) ([]domain.Reservation, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT transaction_id, window_id, period_start, amount
		FROM transaction_reservations
		WHERE transaction_id = $1
		ORDER BY window_id, period_start;
	`, transactionID)
	if err != nil {
		return nil, translateError(err, "finding reservations of "+transactionID)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var m models.Reservation
		if err := rows.Scan(&m.TransactionID, &m.WindowID, &m.PeriodStart, &m.Amount); err != nil {
			return nil, translateError(err, "scanning reservation")
		}
		reservations = append(reservations, mapping.ToDomainReservation(m))
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterating reservations")
	}
	return reservations, nil
}

func (s *pgxLedgerStore) SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	return sumReserved(ctx, s.tx, windowID, periodStart)
}

func (s *pgxLedgerStore) SumRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	return sumRefunds(ctx, s.tx, paymentID)
}
