package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// CreateTx inserts a user inside the given transaction.
func (r *UserRepo) CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error {
	return tx.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, balance_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.BalanceCents).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, balance_cents, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, balance_cents, created_at, updated_at
		FROM users WHERE email = $1
	`, email))
}

func (r *UserRepo) scanOne(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.BalanceCents, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BalanceCents returns the user's current spendable balance.
func (r *UserRepo) BalanceCents(ctx context.Context, id uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance_cents FROM users WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

// ConditionalDebit atomically deducts amount from the user's balance only if
// balance_cents >= amount, returning the new balance. A single compare-and-
// decrement statement, so it stays correct under concurrent credits.
func (r *UserRepo) ConditionalDebit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance_cents = balance_cents - $1, updated_at = now()
		WHERE id = $2 AND balance_cents >= $1
		RETURNING balance_cents
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return newBalance, err
}

// Drain atomically zeroes the user's balance and returns the amount removed.
func (r *UserRepo) Drain(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error) {
	var prev int64
	err := tx.QueryRow(ctx, `
		UPDATE users u SET balance_cents = 0, updated_at = now()
		FROM (SELECT id, balance_cents FROM users WHERE id = $1 FOR UPDATE) old
		WHERE u.id = old.id
		RETURNING old.balance_cents
	`, id).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return prev, err
}

// Credit adds amount to the user's balance and returns the new balance. Used
// by top-up and refund flows that share this store.
func (r *UserRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance_cents = balance_cents + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance_cents
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return newBalance, err
}
