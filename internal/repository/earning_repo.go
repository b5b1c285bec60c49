package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

type EarningRepo struct {
	pool *pgxpool.Pool
}

func NewEarningRepo(pool *pgxpool.Pool) *EarningRepo {
	return &EarningRepo{pool: pool}
}

// CreateTx inserts the earning record for a settled session. The unique
// constraint on session_id is the settlement idempotency guarantee; a
// violation surfaces as ErrDuplicateEarning and the caller must abort the
// whole settlement unit.
func (r *EarningRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.Earning) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO earnings (id, session_id, provider_id, total_cents, commission_cents, provider_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.SessionID, e.ProviderID, e.TotalCents, e.CommissionCents, e.ProviderCents, e.Status).Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEarning
	}
	return err
}

func (r *EarningRepo) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.Earning, error) {
	var e models.Earning
	err := r.pool.QueryRow(ctx, `
		SELECT id, session_id, provider_id, total_cents, commission_cents, provider_cents, status, created_at
		FROM earnings WHERE session_id = $1
	`, sessionID).Scan(&e.ID, &e.SessionID, &e.ProviderID, &e.TotalCents, &e.CommissionCents, &e.ProviderCents, &e.Status, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EarningRepo) ListByProviderID(ctx context.Context, providerID uuid.UUID, status string, limit int) ([]*models.Earning, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, provider_id, total_cents, commission_cents, provider_cents, status, created_at
		FROM earnings
		WHERE provider_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3
	`, providerID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Earning
	for rows.Next() {
		var e models.Earning
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ProviderID, &e.TotalCents, &e.CommissionCents, &e.ProviderCents, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
