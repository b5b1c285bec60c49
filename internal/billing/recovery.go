package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/counseldesk/backend/internal/models"
)

// ActiveLister scans sessions persisted as ACTIVE.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]*models.Session, error)
}

// RecoveryManager re-attaches billing timers to sessions left ACTIVE by a
// previous process. Ticks missed while the process was down are not
// retroactively charged.
type RecoveryManager struct {
	sessions ActiveLister
	engine   *Engine
	delay    time.Duration
	logger   *slog.Logger
}

func NewRecoveryManager(sessions ActiveLister, engine *Engine, delay time.Duration, logger *slog.Logger) *RecoveryManager {
	return &RecoveryManager{sessions: sessions, engine: engine, delay: delay, logger: logger}
}

// Run waits for storage connectivity to stabilize, then resumes billing on
// every ACTIVE session not already tracked by a live timer. Invoked once at
// boot.
func (m *RecoveryManager) Run(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	active, err := m.sessions.ListActive(ctx)
	if err != nil {
		return err
	}

	resumed := 0
	for _, sess := range active {
		if m.engine.Tracks(sess.ID) {
			continue
		}
		if m.engine.StartMetering(sess.ID) {
			resumed++
			m.logger.Info("resumed billing for session",
				"session_id", sess.ID, "total_amount_cents", sess.TotalAmountCents)
		}
	}

	m.logger.Info("session recovery complete", "active", len(active), "resumed", resumed)
	return nil
}
