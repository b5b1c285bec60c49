package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is the consulting side of an engagement. Keyed by the owning
// user's id. Earned money lands in PendingCents at settlement and moves to
// AvailableCents on release; LifetimeCents only ever grows and equals
// pending + available plus anything already withdrawn.
type Provider struct {
	UserID             uuid.UUID `json:"user_id"`
	RatePerMinuteCents int64     `json:"rate_per_minute_cents"`
	Specialization     string    `json:"specialization,omitempty"`
	Online             bool      `json:"online"`
	Verified           bool      `json:"verified"`
	PendingCents       int64     `json:"pending_cents"`
	AvailableCents     int64     `json:"available_cents"`
	LifetimeCents      int64     `json:"lifetime_cents"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
