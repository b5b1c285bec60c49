// Package directory is the browse surface for requesters picking a provider.
package directory

import (
	"context"
	"strings"
)

type Service interface {
	ListAvailable(ctx context.Context, specialization string) ([]*Listing, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

// normalizeSpecialization lowercases the filter so matching is
// case-insensitive against the stored value.
func normalizeSpecialization(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *service) ListAvailable(ctx context.Context, specialization string) ([]*Listing, error) {
	return s.repo.ListAvailable(ctx, normalizeSpecialization(specialization))
}
