package models

import (
	"time"

	"github.com/google/uuid"
)

// Earning release status.
const (
	EarningStatusPending  = "PENDING"
	EarningStatusReleased = "RELEASED"
)

// Earning is the commission split of one settled session. SessionID carries a
// unique constraint: at most one earning per session, which is what makes
// settlement idempotent under duplicate invocation.
type Earning struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	TotalCents      int64     `json:"total_cents"`
	CommissionCents int64     `json:"commission_cents"`
	ProviderCents   int64     `json:"provider_cents"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
