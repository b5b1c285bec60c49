package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/models"
)

const sessionColumns = `id, requester_id, provider_id, kind, rate_per_minute_cents, status,
	total_amount_cents, requester_lock, provider_lock, started_at, ended_at, created_at, updated_at`

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, requester_id, provider_id, kind, rate_per_minute_cents, status,
			total_amount_cents, requester_lock, provider_lock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, s.ID, s.RequesterID, s.ProviderID, s.Kind, s.RatePerMinuteCents, s.Status,
		s.TotalAmountCents, s.RequesterLock, s.ProviderLock).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// FindActiveByRequester returns the requester's in-flight session (REQUESTED
// or ACTIVE), or ErrNotFound.
func (r *SessionRepo) FindActiveByRequester(ctx context.Context, requesterID uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE requester_id = $1 AND status IN ($2, $3)
		LIMIT 1
	`, requesterID, models.SessionStatusRequested, models.SessionStatusActive))
}

// ListActive returns every session persisted as ACTIVE. Used by recovery.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY created_at
	`, models.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Activate moves a REQUESTED session to ACTIVE and stamps started_at. The
// WHERE clause makes the transition conditional: zero rows means the session
// was not in REQUESTED anymore and ErrNotFound is returned.
func (r *SessionRepo) Activate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		UPDATE sessions SET status = $2, started_at = now(), updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+sessionColumns, id, models.SessionStatusActive, models.SessionStatusRequested))
}

// Terminate conditionally moves a session from one status into a terminal
// status, stamping ended_at exactly once. Runs inside the caller's
// transaction so the status flip commits together with whatever the caller
// pairs it with (settlement enqueue, ledger writes).
func (r *SessionRepo) Terminate(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (*models.Session, error) {
	return scanSession(tx.QueryRow(ctx, `
		UPDATE sessions SET status = $3, ended_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+sessionColumns, id, from, to))
}

// AddCharge adds amount to the session's running total, only while the
// session is still ACTIVE. Zero rows (ErrNotFound) means a termination won
// the race and the tick must not be applied.
func (r *SessionRepo) AddCharge(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		UPDATE sessions SET total_amount_cents = total_amount_cents + $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING total_amount_cents
	`, id, amount, models.SessionStatusActive).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return total, err
}

// ForceEnd applies the partial final charge and flips ACTIVE to FORCE_ENDED
// in one conditional statement.
func (r *SessionRepo) ForceEnd(ctx context.Context, tx pgx.Tx, id uuid.UUID, finalCharge int64) (*models.Session, error) {
	return scanSession(tx.QueryRow(ctx, `
		UPDATE sessions SET total_amount_cents = total_amount_cents + $2,
			status = $3, ended_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+sessionColumns, id, finalCharge, models.SessionStatusForceEnded, models.SessionStatusActive))
}

// GetForSettlement loads a session with a row lock inside the settlement
// transaction, serializing concurrent settlers on the same session.
func (r *SessionRepo) GetForSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Session, error) {
	return scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.RequesterID, &s.ProviderID, &s.Kind, &s.RatePerMinuteCents, &s.Status,
		&s.TotalAmountCents, &s.RequesterLock, &s.ProviderLock, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
