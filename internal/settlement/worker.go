package settlement

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// SettleSessionArgs is the queue payload for settling one terminal session.
// Enqueued in the same transaction as the terminal status flip; the flip is
// conditional on the prior status, so only the winning terminator enqueues.
type SettleSessionArgs struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
}

func (SettleSessionArgs) Kind() string { return "settle_session" }

func (SettleSessionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// EnqueueTxFunc enqueues a settlement job within the given transaction, so
// the terminal status flip and the settlement dispatch commit atomically.
// Provided by main using river.Client.InsertTx.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args SettleSessionArgs) error

// SettleSessionWorker processes settlement jobs. Settlement failures are
// returned so River retries them; an already-settled session completes the
// job as a no-op.
type SettleSessionWorker struct {
	river.WorkerDefaults[SettleSessionArgs]
	svc    *Service
	logger *slog.Logger
}

func NewSettleSessionWorker(svc *Service, logger *slog.Logger) *SettleSessionWorker {
	return &SettleSessionWorker{svc: svc, logger: logger}
}

func (w *SettleSessionWorker) Work(ctx context.Context, job *river.Job[SettleSessionArgs]) error {
	res, err := w.svc.Settle(ctx, job.Args.SessionID, job.Args.Reason)
	if err != nil {
		return err
	}
	w.logger.Info("session settled",
		"session_id", res.SessionID,
		"total_cents", res.TotalCents,
		"commission_cents", res.CommissionCents,
		"provider_cents", res.ProviderCents,
		"already_settled", res.AlreadySettled,
	)
	return nil
}
