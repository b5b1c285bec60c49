package directory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Listing is a provider as shown in the public directory: profile plus the
// rate a requester will be charged.
type Listing struct {
	ProviderID         uuid.UUID `json:"provider_id"`
	Name               string    `json:"name"`
	Specialization     string    `json:"specialization,omitempty"`
	RatePerMinuteCents int64     `json:"rate_per_minute_cents"`
	Online             bool      `json:"online"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAvailable returns verified providers, online first, optionally filtered
// by specialization.
func (r *Repository) ListAvailable(ctx context.Context, specialization string) ([]*Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.user_id, u.name, p.specialization, p.rate_per_minute_cents, p.online
		FROM providers p
		JOIN users u ON u.id = p.user_id
		WHERE p.verified
		  AND ($1 = '' OR p.specialization = $1)
		ORDER BY p.online DESC, u.name
	`, specialization)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Listing
	for rows.Next() {
		l := &Listing{}
		if err := rows.Scan(&l.ProviderID, &l.Name, &l.Specialization, &l.RatePerMinuteCents, &l.Online); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
