package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

type ProviderRepo struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) *ProviderRepo {
	return &ProviderRepo{pool: pool}
}

// CreateTx inserts a provider profile inside the given transaction (paired
// with the user row insert during provider registration).
func (r *ProviderRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Provider) error {
	return tx.QueryRow(ctx, `
		INSERT INTO providers (user_id, rate_per_minute_cents, specialization, online, verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.UserID, p.RatePerMinuteCents, p.Specialization, p.Online, p.Verified).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProviderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var p models.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, rate_per_minute_cents, specialization, online, verified,
		       pending_cents, available_cents, lifetime_cents, created_at, updated_at
		FROM providers WHERE user_id = $1
	`, id).Scan(&p.UserID, &p.RatePerMinuteCents, &p.Specialization, &p.Online, &p.Verified,
		&p.PendingCents, &p.AvailableCents, &p.LifetimeCents, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetOnline flips the provider's presence flag.
func (r *ProviderRepo) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers SET online = $2, updated_at = now() WHERE user_id = $1
	`, id, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditPending adds earned money to the provider's pending balance and bumps
// the lifetime total, inside the settlement transaction.
func (r *ProviderRepo) CreditPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE providers
		SET pending_cents = pending_cents + $1, lifetime_cents = lifetime_cents + $1, updated_at = now()
		WHERE user_id = $2
	`, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
