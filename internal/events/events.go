// Package events defines the lifecycle and progress notifications emitted by
// the billing core. The real-time transport that delivers them to clients is
// an external collaborator; this package only defines the contract plus a
// logging sink.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	EngagementStarted   Type = "ENGAGEMENT_STARTED"
	EngagementAccepted  Type = "ENGAGEMENT_ACCEPTED"
	EngagementDeclined  Type = "ENGAGEMENT_DECLINED"
	EngagementCancelled Type = "ENGAGEMENT_CANCELLED"
	Progress            Type = "PROGRESS"
	EngagementEnded     Type = "ENGAGEMENT_ENDED"
	EngagementForceEnd  Type = "ENGAGEMENT_FORCE_ENDED"
)

// Event carries the payload fields for all event types; consumers read the
// fields relevant to the Type.
type Event struct {
	Type                  Type       `json:"type"`
	SessionID             uuid.UUID  `json:"session_id"`
	RatePerMinuteCents    int64      `json:"rate_per_minute_cents,omitempty"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	TotalAmountCents      int64      `json:"total_amount_cents,omitempty"`
	RemainingBalanceCents int64      `json:"remaining_balance_cents,omitempty"`
	CommissionCents       int64      `json:"commission_cents,omitempty"`
	ProviderAmountCents   int64      `json:"provider_amount_cents,omitempty"`
	Reason                string     `json:"reason,omitempty"`
}

// Sink receives emitted events. Implementations must not block the billing
// path for long; delivery failures are the sink's problem, not the engine's.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink writes every event to the structured log. The default sink when no
// push transport is wired.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

var _ Sink = (*LogSink)(nil)

func (s *LogSink) Emit(ctx context.Context, e Event) {
	s.Logger.InfoContext(ctx, "event",
		"type", string(e.Type),
		"session_id", e.SessionID,
		"total_amount_cents", e.TotalAmountCents,
		"remaining_balance_cents", e.RemainingBalanceCents,
		"commission_cents", e.CommissionCents,
		"provider_amount_cents", e.ProviderAmountCents,
		"reason", e.Reason,
	)
}
