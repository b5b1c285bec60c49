package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
)

type Repository struct {
	pool      *pgxpool.Pool
	users     *repository.UserRepo
	providers *repository.ProviderRepo
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:      pool,
		users:     repository.NewUserRepo(pool),
		providers: repository.NewProviderRepo(pool),
	}
}

// Create inserts a new user and, for the provider role, the paired provider
// profile, in one transaction.
func (r *Repository) Create(ctx context.Context, u *models.User, p *models.Provider) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.users.CreateTx(ctx, tx, u); err != nil {
		return err
	}
	if p != nil {
		if err := r.providers.CreateTx(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByEmail returns the user for login, or nil if no such email exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := r.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// GetByID resolves a user id, or nil if unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := r.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}
