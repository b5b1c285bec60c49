// Package settlement computes and records the commission split once a
// session reaches a terminal state, as one atomic unit: read the current
// commission rate, insert the earning record, credit the provider's pending
// balance. The unique constraint on earnings.session_id makes the whole unit
// idempotent under duplicate invocation.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/counseldesk/backend/internal/events"
	"github.com/counseldesk/backend/internal/locks"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
)

// ErrNotSettleable is returned when settlement is invoked on a session that
// is not in a terminal state reached from ACTIVE.
var ErrNotSettleable = errors.New("session is not settleable")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SessionStore loads the session with a row lock, serializing concurrent
// settlers of the same session.
type SessionStore interface {
	GetForSettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Session, error)
}

// EarningStore inserts the earning record; must return
// repository.ErrDuplicateEarning when one already exists for the session.
type EarningStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.Earning) error
}

// ProviderStore credits the provider's pending balance.
type ProviderStore interface {
	CreditPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
}

// RateProvider supplies the current commission percentage, read fresh inside
// the settlement transaction.
type RateProvider interface {
	CommissionPercentTx(ctx context.Context, tx pgx.Tx) (int64, error)
}

// Result is the outcome of one settlement invocation. AlreadySettled results
// report zero amounts.
type Result struct {
	SessionID       uuid.UUID `json:"session_id"`
	TotalCents      int64     `json:"total_cents"`
	CommissionCents int64     `json:"commission_cents"`
	ProviderCents   int64     `json:"provider_cents"`
	AlreadySettled  bool      `json:"already_settled"`
}

type Service struct {
	pool      TxBeginner
	sessions  SessionStore
	earnings  EarningStore
	providers ProviderStore
	rates     RateProvider
	locks     locks.Service
	sink      events.Sink
	logger    *slog.Logger
}

func NewService(
	pool TxBeginner,
	sessions SessionStore,
	earnings EarningStore,
	providers ProviderStore,
	rates RateProvider,
	lockSvc locks.Service,
	sink events.Sink,
	logger *slog.Logger,
) *Service {
	return &Service{
		pool:      pool,
		sessions:  sessions,
		earnings:  earnings,
		providers: providers,
		rates:     rates,
		locks:     lockSvc,
		sink:      sink,
		logger:    logger,
	}
}

// Settle runs the settlement unit for a session in ENDED or FORCE_ENDED.
// All-or-nothing: any storage failure rolls the whole unit back and the
// caller may retry. A duplicate earning aborts cleanly and reports
// AlreadySettled instead of double-crediting. On success the terminal event
// is emitted and both party locks are released, in that order.
func (s *Service) Settle(ctx context.Context, sessionID uuid.UUID, reason string) (*Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, err := s.sessions.GetForSettlement(ctx, tx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status != models.SessionStatusEnded && sess.Status != models.SessionStatusForceEnded {
		return nil, fmt.Errorf("%w: status %s", ErrNotSettleable, sess.Status)
	}

	pct, err := s.rates.CommissionPercentTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("read commission rate: %w", err)
	}

	commission := sess.TotalAmountCents * pct / 100
	providerAmount := sess.TotalAmountCents - commission

	if err := s.earnings.CreateTx(ctx, tx, &models.Earning{
		ID:              uuid.New(),
		SessionID:       sess.ID,
		ProviderID:      sess.ProviderID,
		TotalCents:      sess.TotalAmountCents,
		CommissionCents: commission,
		ProviderCents:   providerAmount,
		Status:          models.EarningStatusPending,
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateEarning) {
			s.logger.Info("settlement skipped, already settled", "session_id", sess.ID)
			return &Result{SessionID: sess.ID, AlreadySettled: true}, nil
		}
		return nil, fmt.Errorf("insert earning: %w", err)
	}

	if providerAmount > 0 {
		if err := s.providers.CreditPending(ctx, tx, sess.ProviderID, providerAmount); err != nil {
			return nil, fmt.Errorf("credit provider: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement tx: %w", err)
	}

	s.emitTerminal(ctx, sess, commission, providerAmount, reason)
	s.releaseLocks(ctx, sess)

	return &Result{
		SessionID:       sess.ID,
		TotalCents:      sess.TotalAmountCents,
		CommissionCents: commission,
		ProviderCents:   providerAmount,
	}, nil
}

func (s *Service) emitTerminal(ctx context.Context, sess *models.Session, commission, providerAmount int64, reason string) {
	typ := events.EngagementEnded
	if sess.Status == models.SessionStatusForceEnded {
		typ = events.EngagementForceEnd
		if reason == "" {
			reason = models.ForceEndReasonInsufficientBalance
		}
	}
	s.sink.Emit(ctx, events.Event{
		Type:                typ,
		SessionID:           sess.ID,
		TotalAmountCents:    sess.TotalAmountCents,
		CommissionCents:     commission,
		ProviderAmountCents: providerAmount,
		Reason:              reason,
	})
}

func (s *Service) releaseLocks(ctx context.Context, sess *models.Session) {
	if err := s.locks.Release(ctx, locks.RequesterKey(sess.RequesterID), sess.RequesterLock); err != nil {
		s.logger.Error("release requester lock", "session_id", sess.ID, "error", err)
	}
	if err := s.locks.Release(ctx, locks.ProviderKey(sess.ProviderID), sess.ProviderLock); err != nil {
		s.logger.Error("release provider lock", "session_id", sess.ID, "error", err)
	}
}
