// Package billing drives the per-session metering clock: conditional debits
// against the requester's balance on every tick, balance-exhaustion
// detection, and force-termination with a partial final charge.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/counseldesk/backend/internal/events"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
	"github.com/counseldesk/backend/internal/settlement"
)

// DefaultTickPeriod is the nominal billing interval.
const DefaultTickPeriod = 10 * time.Second

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SessionStore is the session repository subset the engine needs.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	AddCharge(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	ForceEnd(ctx context.Context, tx pgx.Tx, id uuid.UUID, finalCharge int64) (*models.Session, error)
}

// WalletStore mutates the requester's spendable balance.
type WalletStore interface {
	ConditionalDebit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	Drain(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error)
}

// LedgerStore appends balance-mutation records.
type LedgerStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Engine owns the billing timers for all ACTIVE sessions in this process.
type Engine struct {
	pool       TxBeginner
	sessions   SessionStore
	wallets    WalletStore
	ledger     LedgerStore
	enqueue    settlement.EnqueueTxFunc
	scheduler  Scheduler
	sink       events.Sink
	tickPeriod time.Duration
	logger     *slog.Logger
}

func NewEngine(
	pool TxBeginner,
	sessions SessionStore,
	wallets WalletStore,
	ledger LedgerStore,
	enqueue settlement.EnqueueTxFunc,
	scheduler Scheduler,
	sink events.Sink,
	tickPeriod time.Duration,
	logger *slog.Logger,
) *Engine {
	if tickPeriod <= 0 {
		tickPeriod = DefaultTickPeriod
	}
	return &Engine{
		pool:       pool,
		sessions:   sessions,
		wallets:    wallets,
		ledger:     ledger,
		enqueue:    enqueue,
		scheduler:  scheduler,
		sink:       sink,
		tickPeriod: tickPeriod,
		logger:     logger,
	}
}

// StartMetering attaches the billing timer for a session that just became
// ACTIVE (or was found ACTIVE during recovery). Returns false if the session
// is already tracked.
func (e *Engine) StartMetering(sessionID uuid.UUID) bool {
	return e.scheduler.Start(sessionID, e.tickPeriod, func() {
		e.Tick(context.Background(), sessionID)
	})
}

// StopMetering tears down the session's timer, if any.
func (e *Engine) StopMetering(sessionID uuid.UUID) bool {
	return e.scheduler.Stop(sessionID)
}

// Tracks reports whether this process holds a live timer for the session.
func (e *Engine) Tracks(sessionID uuid.UUID) bool {
	return e.scheduler.Has(sessionID)
}

// Tick performs one billing evaluation. Storage errors are logged and the
// tick is skipped; the next tick retries from current state.
func (e *Engine) Tick(ctx context.Context, sessionID uuid.UUID) {
	sess, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.scheduler.Stop(sessionID)
			return
		}
		e.logger.Error("tick: load session", "session_id", sessionID, "error", err)
		return
	}

	// Termination may race with a scheduled tick; a session that left ACTIVE
	// is no longer charged and its timer is torn down.
	if sess.Status != models.SessionStatusActive {
		e.scheduler.Stop(sessionID)
		return
	}

	charge := models.TickCharge(sess.RatePerMinuteCents, int64(e.tickPeriod/time.Second))
	if charge <= 0 {
		return
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		e.logger.Error("tick: begin tx", "session_id", sessionID, "error", err)
		return
	}
	defer tx.Rollback(ctx)

	newBalance, err := e.wallets.ConditionalDebit(ctx, tx, sess.RequesterID, charge)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		e.forceEnd(ctx, tx, sess)
		return
	}
	if err != nil {
		e.logger.Error("tick: debit", "session_id", sessionID, "error", err)
		return
	}

	if err := e.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:                uuid.New(),
		UserID:            sess.RequesterID,
		Direction:         models.LedgerDirectionDebit,
		AmountCents:       charge,
		Reason:            models.LedgerReasonConsultation,
		ReferenceID:       &sess.ID,
		BalanceAfterCents: newBalance,
	}); err != nil {
		e.logger.Error("tick: ledger entry", "session_id", sessionID, "error", err)
		return
	}

	newTotal, err := e.sessions.AddCharge(ctx, tx, sess.ID, charge)
	if err != nil {
		// ErrNotFound here means a termination flipped the status after we
		// read it; roll back so the debit is not applied.
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Error("tick: add charge", "session_id", sessionID, "error", err)
		}
		return
	}

	if err := tx.Commit(ctx); err != nil {
		e.logger.Error("tick: commit", "session_id", sessionID, "error", err)
		return
	}

	e.sink.Emit(ctx, events.Event{
		Type:                  events.Progress,
		SessionID:             sess.ID,
		TotalAmountCents:      newTotal,
		RemainingBalanceCents: newBalance,
	})
}

// forceEnd handles balance exhaustion: drain whatever remains (a partial
// final tick, never more than what exists), flip the session to FORCE_ENDED
// and enqueue settlement, all in the tick's transaction.
func (e *Engine) forceEnd(ctx context.Context, tx pgx.Tx, sess *models.Session) {
	remaining, err := e.wallets.Drain(ctx, tx, sess.RequesterID)
	if err != nil {
		e.logger.Error("force end: drain", "session_id", sess.ID, "error", err)
		return
	}

	if remaining > 0 {
		if err := e.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
			ID:                uuid.New(),
			UserID:            sess.RequesterID,
			Direction:         models.LedgerDirectionDebit,
			AmountCents:       remaining,
			Reason:            models.LedgerReasonConsultation,
			ReferenceID:       &sess.ID,
			BalanceAfterCents: 0,
		}); err != nil {
			e.logger.Error("force end: ledger entry", "session_id", sess.ID, "error", err)
			return
		}
	}

	ended, err := e.sessions.ForceEnd(ctx, tx, sess.ID, remaining)
	if err != nil {
		// A manual end won the race; let its settlement handle the session.
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Error("force end: update session", "session_id", sess.ID, "error", err)
		}
		return
	}

	if err := e.enqueue(ctx, tx, settlement.SettleSessionArgs{
		SessionID: sess.ID,
		Reason:    models.ForceEndReasonInsufficientBalance,
	}); err != nil {
		e.logger.Error("force end: enqueue settlement", "session_id", sess.ID, "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		e.logger.Error("force end: commit", "session_id", sess.ID, "error", err)
		return
	}

	e.scheduler.Stop(sess.ID)
	e.logger.Info("session force ended on balance exhaustion",
		"session_id", sess.ID, "total_amount_cents", ended.TotalAmountCents, "final_charge_cents", remaining)
}
