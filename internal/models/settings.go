package models

import "time"

// DefaultCommissionPercent applies until an admin changes it.
const DefaultCommissionPercent = 20

// Settings is the single mutable system settings row. CommissionPercent is
// read fresh at settlement time, never cached across a session's lifetime.
type Settings struct {
	CommissionPercent int64     `json:"commission_percent"`
	MinStartCents     int64     `json:"min_start_cents"`
	UpdatedAt         time.Time `json:"updated_at"`
}
