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
	"github.com/shopspring/decimal"
)

const windowColumns = `window_id, child_id, kind, ceiling, category, start_at, end_at, is_active,
	created_at, created_by, last_updated_at, last_updated_by, version`

type PgxLimitWindowRepository struct {
	BaseRepository
}

func newPgxLimitWindowRepository(pool *pgxpool.Pool) portsrepo.LimitWindowRepositoryFacade {
	return &PgxLimitWindowRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.LimitWindowRepositoryFacade = (*PgxLimitWindowRepository)(nil)

func scanWindow(row rowScanner) (models.LimitWindow, error) {
	var m models.LimitWindow
	err := row.Scan(
		&m.WindowID,
		&m.ChildID,
		&m.Kind,
		&m.Ceiling,
		&m.Category,
		&m.StartAt,
		&m.EndAt,
		&m.IsActive,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
		&m.Version,
	)
	return m, err
}

// SaveWindow inserts a new window definition.
func (r *PgxLimitWindowRepository) SaveWindow(ctx context.Context, window domain.LimitWindow) error {
	m := mapping.ToModelLimitWindow(window)
	query := `
		INSERT INTO limit_windows (` + windowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.WindowID,
		m.ChildID,
		m.Kind,
		m.Ceiling,
		m.Category,
		m.StartAt,
		m.EndAt,
		m.IsActive,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.Version,
	)
	return translateError(err, "saving limit window "+m.WindowID)
}

// UpdateWindow writes the mutable fields of a window. The caller bumps Version;
// the row is only updated when the stored version is the one before it.
func (r *PgxLimitWindowRepository) UpdateWindow(ctx context.Context, window domain.LimitWindow) error {
	m := mapping.ToModelLimitWindow(window)
	query := `
		UPDATE limit_windows
		SET ceiling = $2, category = $3, end_at = $4, is_active = $5,
		    last_updated_at = $6, last_updated_by = $7, version = $8
		WHERE window_id = $1 AND version = $8 - 1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		m.WindowID,
		m.Ceiling,
		m.Category,
		m.EndAt,
		m.IsActive,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
		m.Version,
	)
	if err != nil {
		return translateError(err, "updating limit window "+m.WindowID)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.FindWindowByID(ctx, m.WindowID); err != nil {
			return err
		}
		return apperrors.New(apperrors.KindConflict, "limit window %s was modified concurrently", m.WindowID)
	}
	return nil
}

// DeleteWindow removes a window; its usage rows go with it through the cascade.
func (r *PgxLimitWindowRepository) DeleteWindow(ctx context.Context, windowID string) error {
	cmdTag, err := r.Pool.Exec(ctx, `DELETE FROM limit_windows WHERE window_id = $1;`, windowID)
	if err != nil {
		return translateError(err, "deleting limit window "+windowID)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("limit window", windowID)
	}
	return nil
}

// FindWindowByID retrieves a window definition.
func (r *PgxLimitWindowRepository) FindWindowByID(ctx context.Context, windowID string) (*domain.LimitWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM limit_windows WHERE window_id = $1;`
	m, err := scanWindow(r.Pool.QueryRow(ctx, query, windowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("limit window", windowID)
		}
		return nil, translateError(err, "finding limit window "+windowID)
	}
	window := mapping.ToDomainLimitWindow(m)
	return &window, nil
}

// ListWindowsByChild returns a child's windows ordered by start.
func (r *PgxLimitWindowRepository) ListWindowsByChild(ctx context.Context, childID string, activeOnly bool) ([]domain.LimitWindow, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM limit_windows
		WHERE child_id = $1 AND (is_active OR NOT $2)
		ORDER BY start_at, window_id;
	`
	return r.queryWindows(ctx, "listing limit windows of "+childID, query, childID, activeOnly)
}

// ListActiveWindows returns every active window.
func (r *PgxLimitWindowRepository) ListActiveWindows(ctx context.Context) ([]domain.LimitWindow, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM limit_windows
		WHERE is_active
		ORDER BY child_id, start_at, window_id;
	`
	return r.queryWindows(ctx, "listing active limit windows", query)
}

// FindConsumed returns the consumed amount of one period, zero when no usage row exists.
func (r *PgxLimitWindowRepository) FindConsumed(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(
			(SELECT consumed FROM window_usage WHERE window_id = $1 AND period_start = $2),
			0
		);
	`
	var consumed decimal.Decimal
	if err := r.Pool.QueryRow(ctx, query, windowID, periodStart).Scan(&consumed); err != nil {
		return decimal.Zero, translateError(err, "reading consumption of "+windowID)
	}
	return consumed, nil
}

// TotalConsumed sums consumption over every period of a window.
func (r *PgxLimitWindowRepository) TotalConsumed(ctx context.Context, windowID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(consumed), 0) FROM window_usage WHERE window_id = $1;`
	var total decimal.Decimal
	if err := r.Pool.QueryRow(ctx, query, windowID).Scan(&total); err != nil {
		return decimal.Zero, translateError(err, "summing consumption of "+windowID)
	}
	return total, nil
}

func (r *PgxLimitWindowRepository) queryWindows(ctx context.Context, op, query string, args ...any) ([]domain.LimitWindow, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, op)
	}
	defer rows.Close()

	var ms []models.LimitWindow
	for rows.Next() {
		m, err := scanWindow(rows)
		if err != nil {
			return nil, translateError(err, op)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, op)
	}
	return mapping.ToDomainLimitWindowSlice(ms), nil
}
