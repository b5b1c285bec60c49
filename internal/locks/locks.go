// Package locks provides short-lived, key-based mutual exclusion with TTL
// expiry, used to serialize one engagement per requester and per provider.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the lock contract. Acquire sets the key only if absent or
// expired and returns a holder token; Release deletes the key only if the
// token still matches (compare-and-delete), so a caller can never release a
// lock that expired and was reacquired by someone else.
type Service interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token uuid.UUID, ok bool, err error)
	Release(ctx context.Context, key string, token uuid.UUID) error
}

// RequesterKey is the lock key scoping a requester to one engagement.
func RequesterKey(requesterID uuid.UUID) string {
	return fmt.Sprintf("lock:requester:%s", requesterID)
}

// ProviderKey is the lock key scoping a provider to one engagement.
func ProviderKey(providerID uuid.UUID) string {
	return fmt.Sprintf("lock:provider:%s", providerID)
}
