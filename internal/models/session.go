package models

import (
	"time"

	"github.com/google/uuid"
)

// Session status enums. REQUESTED is the initial state; ENDED, FORCE_ENDED,
// DECLINED and CANCELLED are terminal.
const (
	SessionStatusRequested  = "REQUESTED"
	SessionStatusActive     = "ACTIVE"
	SessionStatusEnded      = "ENDED"
	SessionStatusForceEnded = "FORCE_ENDED"
	SessionStatusDeclined   = "DECLINED"
	SessionStatusCancelled  = "CANCELLED"
)

// Consultation kinds.
const (
	SessionKindChat  = "CHAT"
	SessionKindCall  = "CALL"
	SessionKindVideo = "VIDEO"
)

// Force-end reason reported on FORCE_ENDED events and settlement records.
const ForceEndReasonInsufficientBalance = "INSUFFICIENT_BALANCE"

type Session struct {
	ID                 uuid.UUID  `json:"id"`
	RequesterID        uuid.UUID  `json:"requester_id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	Kind               string     `json:"kind"`
	RatePerMinuteCents int64      `json:"rate_per_minute_cents"`
	Status             string     `json:"status"`
	TotalAmountCents   int64      `json:"total_amount_cents"`
	RequesterLock      uuid.UUID  `json:"-"`
	ProviderLock       uuid.UUID  `json:"-"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// sessionTransitions is the closed transition table. Any pair not listed is
// invalid; in particular no transition leaves a terminal state.
var sessionTransitions = map[string][]string{
	SessionStatusRequested: {SessionStatusActive, SessionStatusDeclined, SessionStatusCancelled},
	SessionStatusActive:    {SessionStatusEnded, SessionStatusForceEnded},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the given status admits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case SessionStatusEnded, SessionStatusForceEnded, SessionStatusDeclined, SessionStatusCancelled:
		return true
	}
	return false
}

// ValidSessionKind reports whether kind is one of CHAT, CALL, VIDEO.
func ValidSessionKind(kind string) bool {
	switch kind {
	case SessionKindChat, SessionKindCall, SessionKindVideo:
		return true
	}
	return false
}

// TickCharge is the amount billed for one nominal tick: ratePerMinute / 60 *
// tickSeconds, in integer cents. Ticks are charged at their nominal period,
// not measured wall time.
func TickCharge(ratePerMinuteCents int64, tickSeconds int64) int64 {
	return ratePerMinuteCents * tickSeconds / 60
}
