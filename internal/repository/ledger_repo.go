package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction. Entries are
// never updated or deleted.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, user_id, direction, amount_cents, reason, reference_id, balance_after_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.UserID, e.Direction, e.AmountCents, e.Reason, e.ReferenceID, e.BalanceAfterCents).Scan(&e.CreatedAt)
}

func (r *LedgerRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, direction, amount_cents, reason, reference_id, balance_after_cents, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Direction, &e.AmountCents, &e.Reason, &e.ReferenceID, &e.BalanceAfterCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
