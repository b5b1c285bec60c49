package locks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGService stores locks in the party_locks table. A lock is free when no row
// exists or the existing row has expired; acquisition is a single upsert so
// at most one holder wins under contention.
type PGService struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PGService {
	return &PGService{pool: pool}
}

var _ Service = (*PGService)(nil)

func (s *PGService) Acquire(ctx context.Context, key string, ttl time.Duration) (uuid.UUID, bool, error) {
	token := uuid.New()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO party_locks (key, holder, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (key) DO UPDATE SET holder = $2, expires_at = now() + make_interval(secs => $3)
		WHERE party_locks.expires_at <= now()
	`, key, token, ttl.Seconds())
	if err != nil {
		return uuid.Nil, false, err
	}
	return token, tag.RowsAffected() == 1, nil
}

func (s *PGService) Release(ctx context.Context, key string, token uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM party_locks WHERE key = $1 AND holder = $2`, key, token)
	return err
}
