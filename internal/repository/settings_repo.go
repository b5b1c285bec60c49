package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	err := r.pool.QueryRow(ctx, `
		SELECT commission_percent, min_start_cents, updated_at FROM system_settings WHERE id
	`).Scan(&s.CommissionPercent, &s.MinStartCents, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CommissionPercentTx reads the commission rate inside the settlement
// transaction, so a mid-session rate change affects only sessions settled
// after the change.
func (r *SettingsRepo) CommissionPercentTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	var pct int64
	err := tx.QueryRow(ctx, `SELECT commission_percent FROM system_settings WHERE id`).Scan(&pct)
	return pct, err
}

func (r *SettingsRepo) Update(ctx context.Context, s *models.Settings) error {
	return r.pool.QueryRow(ctx, `
		UPDATE system_settings SET commission_percent = $1, min_start_cents = $2, updated_at = now()
		WHERE id
		RETURNING updated_at
	`, s.CommissionPercent, s.MinStartCents).Scan(&s.UpdatedAt)
}
