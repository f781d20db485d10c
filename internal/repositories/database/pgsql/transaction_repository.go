package pgsql

import (
	"context"
	"errors"
	"strconv"
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

const transactionColumns = `transaction_id, from_account_id, to_account_id, amount, kind, status,
	category, product_ref, refund_of, settlement_ref, cancel_reason, failure_reason,
	completed_at, cancelled_at, created_at, created_by, last_updated_at, last_updated_by, version`

type PgxTransactionRepository struct {
	BaseRepository
}

func newPgxTransactionRepository(pool *pgxpool.Pool) portsrepo.TransactionRepositoryFacade {
	return &PgxTransactionRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var m models.Transaction
	err := row.Scan(
		&m.TransactionID,
		&m.FromAccountID,
		&m.ToAccountID,
		&m.Amount,
		&m.Kind,
		&m.Status,
		&m.Category,
		&m.ProductRef,
		&m.RefundOf,
		&m.SettlementRef,
		&m.CancelReason,
		&m.FailureReason,
		&m.CompletedAt,
		&m.CancelledAt,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
		&m.Version,
	)
	return m, err
}

// FindTransactionByID retrieves a transaction.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return findTransaction(ctx, r.Pool, transactionID, false)
}

// ListTransactionsByAccount pages through the transactions an account takes part in,
// newest first. The cursor compares (created_at, transaction_id) as a row value.
func (r *PgxTransactionRepository) ListTransactionsByAccount(ctx context.Context, accountID string, limit int, after *portsrepo.TransactionCursor) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
	`
	args := []any{accountID}
	if after != nil {
		query += ` AND (created_at, transaction_id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.TransactionID)
	}
	query += ` ORDER BY created_at DESC, transaction_id DESC LIMIT ` + "$" + strconv.Itoa(len(args)+1) + `;`
	args = append(args, limit)

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "listing transactions of "+accountID)
	}
	defer rows.Close()

	var ms []models.Transaction
	for rows.Next() {
		m, err := scanTransaction(rows)
		if err != nil {
			return nil, translateError(err, "scanning transaction")
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterating transactions")
	}
	return mapping.ToDomainTransactionSlice(ms), nil
}

// SumReserved sums the reservations held by pending and completed payments
// against one window period.
func (r *PgxTransactionRepository) SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	return sumReserved(ctx, r.Pool, windowID, periodStart)
}

func findTransaction(ctx context.Context, q querier, transactionID string, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanTransaction(q.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("transaction", transactionID)
		}
		return nil, translateError(err, "finding transaction "+transactionID)
	}
	txn := mapping.ToDomainTransaction(m)
	return &txn, nil
}

func sumReserved(ctx context.Context, q querier, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(r.amount), 0)
		FROM transaction_reservations r
		JOIN transactions t ON t.transaction_id = r.transaction_id
		WHERE r.window_id = $1
		  AND r.period_start = $2
		  AND t.status IN ('pending', 'completed');
	`
	var total decimal.Decimal
	if err := q.QueryRow(ctx, query, windowID, periodStart).Scan(&total); err != nil {
		return decimal.Zero, translateError(err, "summing reservations of "+windowID)
	}
	return total, nil
}

func sumRefunds(ctx context.Context, q querier, paymentID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE kind = 'refund' AND refund_of = $1 AND status IN ('pending', 'completed');
	`
	var total decimal.Decimal
	if err := q.QueryRow(ctx, query, paymentID).Scan(&total); err != nil {
		return decimal.Zero, translateError(err, "summing refunds of "+paymentID)
	}
	return total, nil
}
