package pgsql

import (
	"context"
	"errors"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	"github.com/SscSPs/allowance_wallet/internal/models"
	"github.com/SscSPs/allowance_wallet/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `account_id, name, role, parent_id, time_zone, is_active,
	created_at, created_by, last_updated_at, last_updated_by, version`

type PgxAccountRepository struct {
	BaseRepository
}

// newPgxAccountRepository creates a new repository for account data.
func newPgxAccountRepository(pool *pgxpool.Pool) portsrepo.AccountRepositoryFacade {
	return &PgxAccountRepository{BaseRepository: BaseRepository{Pool: pool}}
}

// Ensure PgxAccountRepository implements portsrepo.AccountRepositoryFacade
var _ portsrepo.AccountRepositoryFacade = (*PgxAccountRepository)(nil)

func scanAccount(row rowScanner) (models.Account, error) {
	var m models.Account
	err := row.Scan(
		&m.AccountID,
		&m.Name,
		&m.Role,
		&m.ParentID,
		&m.TimeZone,
		&m.IsActive,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
		&m.Version,
	)
	return m, err
}

// SaveAccount inserts a new account.
func (r *PgxAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	m := mapping.ToModelAccount(account)
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.AccountID,
		m.Name,
		m.Role,
		m.ParentID,
		m.TimeZone,
		m.IsActive,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.Version,
	)
	return translateError(err, "saving account "+m.AccountID)
}

// FindAccountByID retrieves an account by its ID.
func (r *PgxAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1;`
	m, err := scanAccount(r.Pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", accountID)
		}
		return nil, translateError(err, "finding account "+accountID)
	}
	acc := mapping.ToDomainAccount(m)
	return &acc, nil
}

// FindAccountsByIDs retrieves multiple accounts by their IDs.
func (r *PgxAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	if len(accountIDs) == 0 {
		return map[string]domain.Account{}, nil
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = ANY($1);`
	return r.queryAccountMap(ctx, query, "finding accounts", accountIDs)
}

// ListChildren returns the active children of a parent ordered by name.
func (r *PgxAccountRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE parent_id = $1 AND role = 'child' AND is_active = TRUE
		ORDER BY name, account_id;
	`
	rows, err := r.Pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, translateError(err, "listing children of "+parentID)
	}
	defer rows.Close()

	var ms []models.Account
	for rows.Next() {
		m, err := scanAccount(rows)
		if err != nil {
			return nil, translateError(err, "scanning child account")
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterating child accounts")
	}
	return mapping.ToDomainAccountSlice(ms), nil
}

// SetActive flips the active flag. Deactivating a parent cascades to its
// children in the same statement.
func (r *PgxAccountRepository) SetActive(ctx context.Context, accountID string, active bool, userID string, now time.Time) error {
	query := `
		UPDATE accounts
		SET is_active = $2, last_updated_at = $3, last_updated_by = $4, version = version + 1
		WHERE account_id = $1
		   OR ($2 = FALSE AND parent_id = $1 AND is_active = TRUE);
	`
	cmdTag, err := r.Pool.Exec(ctx, query, accountID, active, now, userID)
	if err != nil {
		return translateError(err, "updating account "+accountID)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("account", accountID)
	}
	return nil
}

func (r *PgxAccountRepository) queryAccountMap(ctx context.Context, query, op string, args ...any) (map[string]domain.Account, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, op)
	}
	defer rows.Close()

	accounts := make(map[string]domain.Account)
	for rows.Next() {
		m, err := scanAccount(rows)
		if err != nil {
			return nil, translateError(err, op)
		}
		accounts[m.AccountID] = mapping.ToDomainAccount(m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, op)
	}
	return accounts, nil
}
