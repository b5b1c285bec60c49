// Package consult implements the engagement lifecycle: start, accept,
// decline, cancel and end, with two party locks serializing one engagement
// per requester and per provider.
package consult

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/counseldesk/backend/internal/events"
	"github.com/counseldesk/backend/internal/locks"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
	"github.com/counseldesk/backend/internal/settlement"
)

// DefaultLockTTL bounds how long a crashed holder can block a party.
const DefaultLockTTL = 5 * time.Minute

var (
	// ErrConflict signals a duplicate active engagement or a lost lock race.
	ErrConflict = errors.New("engagement already in progress")
	// ErrNotFound signals an unknown session or party.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition signals an operation not permitted in the
	// session's current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrForbidden signals a caller who is not the addressed party.
	ErrForbidden = errors.New("caller is not a party to this session")
	// ErrInsufficientBalance signals a start attempt below the minimum
	// balance threshold.
	ErrInsufficientBalance = errors.New("insufficient balance to start consultation")
	// ErrProviderUnavailable signals an unverified or offline provider.
	ErrProviderUnavailable = errors.New("provider is not available")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SessionStore is the session repository subset the lifecycle service needs.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindActiveByRequester(ctx context.Context, requesterID uuid.UUID) (*models.Session, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Terminate(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (*models.Session, error)
}

// WalletStore reads the requester's balance for the start gate.
type WalletStore interface {
	BalanceCents(ctx context.Context, id uuid.UUID) (int64, error)
}

// ProviderStore resolves the provider's rate and availability.
type ProviderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

// EarningStore looks up prior settlement results for idempotent end calls.
type EarningStore interface {
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.Earning, error)
}

// SettingsStore reads the minimum start balance.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// Metering is the billing engine surface the lifecycle drives.
type Metering interface {
	StartMetering(sessionID uuid.UUID) bool
	StopMetering(sessionID uuid.UUID) bool
}

// EndResult is what an end call reports. For an already-terminal session it
// carries the prior settlement amounts when settlement has completed, zeros
// while it is still queued.
type EndResult struct {
	Session         *models.Session `json:"session"`
	TotalCents      int64           `json:"total_cents"`
	CommissionCents int64           `json:"commission_cents"`
	ProviderCents   int64           `json:"provider_cents"`
	Settled         bool            `json:"settled"`
}

type Service struct {
	pool      TxBeginner
	sessions  SessionStore
	wallets   WalletStore
	providers ProviderStore
	earnings  EarningStore
	settings  SettingsStore
	locks     locks.Service
	engine    Metering
	enqueue   settlement.EnqueueTxFunc
	sink      events.Sink
	lockTTL   time.Duration
	logger    *slog.Logger
}

func NewService(
	pool TxBeginner,
	sessions SessionStore,
	wallets WalletStore,
	providers ProviderStore,
	earnings EarningStore,
	settings SettingsStore,
	lockSvc locks.Service,
	engine Metering,
	enqueue settlement.EnqueueTxFunc,
	sink events.Sink,
	lockTTL time.Duration,
	logger *slog.Logger,
) *Service {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Service{
		pool:      pool,
		sessions:  sessions,
		wallets:   wallets,
		providers: providers,
		earnings:  earnings,
		settings:  settings,
		locks:     lockSvc,
		engine:    engine,
		enqueue:   enqueue,
		sink:      sink,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Start creates a REQUESTED session after acquiring both party locks. The
// duplicate-session check and the locks are belt and suspenders: the locks
// are the actual serialization point for two concurrent starts.
func (s *Service) Start(ctx context.Context, requesterID, providerID uuid.UUID, kind string) (*models.Session, error) {
	if !models.ValidSessionKind(kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransition, kind)
	}

	if _, err := s.sessions.FindActiveByRequester(ctx, requesterID); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	balance, err := s.wallets.BalanceCents(ctx, requesterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if balance < settings.MinStartCents {
		return nil, ErrInsufficientBalance
	}

	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !provider.Verified || !provider.Online {
		return nil, ErrProviderUnavailable
	}

	requesterKey := locks.RequesterKey(requesterID)
	providerKey := locks.ProviderKey(providerID)

	requesterToken, ok, err := s.locks.Acquire(ctx, requesterKey, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	providerToken, ok, err := s.locks.Acquire(ctx, providerKey, s.lockTTL)
	if err != nil || !ok {
		// Never leave a stray held lock behind a failed start.
		if relErr := s.locks.Release(ctx, requesterKey, requesterToken); relErr != nil {
			s.logger.Error("rollback requester lock", "requester_id", requesterID, "error", relErr)
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	sess := &models.Session{
		ID:                 uuid.New(),
		RequesterID:        requesterID,
		ProviderID:         providerID,
		Kind:               kind,
		RatePerMinuteCents: provider.RatePerMinuteCents,
		Status:             models.SessionStatusRequested,
		RequesterLock:      requesterToken,
		ProviderLock:       providerToken,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.releaseLocks(ctx, sess)
		return nil, err
	}

	s.sink.Emit(ctx, events.Event{
		Type:               events.EngagementStarted,
		SessionID:          sess.ID,
		RatePerMinuteCents: sess.RatePerMinuteCents,
		StartedAt:          &sess.CreatedAt,
	})
	return sess, nil
}

// Accept moves a REQUESTED session to ACTIVE, stamps startedAt and starts
// the metering clock. Only the addressed provider may accept.
func (s *Service) Accept(ctx context.Context, sessionID, providerID uuid.UUID) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ProviderID != providerID {
		return nil, ErrForbidden
	}

	activated, err := s.sessions.Activate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
		}
		return nil, err
	}

	s.engine.StartMetering(activated.ID)
	s.sink.Emit(ctx, events.Event{
		Type:      events.EngagementAccepted,
		SessionID: activated.ID,
		StartedAt: activated.StartedAt,
	})
	return activated, nil
}

// Decline rejects a REQUESTED session. Provider only. Releases both locks;
// no earning record is ever created.
func (s *Service) Decline(ctx context.Context, sessionID, providerID uuid.UUID, reason string) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ProviderID != providerID {
		return nil, ErrForbidden
	}

	ended, err := s.terminateRequested(ctx, sessionID, models.SessionStatusDeclined)
	if err != nil {
		return nil, err
	}
	s.releaseLocks(ctx, ended)
	s.sink.Emit(ctx, events.Event{
		Type:      events.EngagementDeclined,
		SessionID: ended.ID,
		Reason:    reason,
	})
	return ended, nil
}

// Cancel withdraws a REQUESTED session. Requester only; an ACTIVE session
// cannot be cancelled, only ended.
func (s *Service) Cancel(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RequesterID != requesterID {
		return nil, ErrForbidden
	}

	ended, err := s.terminateRequested(ctx, sessionID, models.SessionStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.releaseLocks(ctx, ended)
	s.sink.Emit(ctx, events.Event{
		Type:      events.EngagementCancelled,
		SessionID: ended.ID,
	})
	return ended, nil
}

// End stops an ACTIVE session: the ENDED flip and the settlement enqueue
// commit in one transaction, then the timer is torn down. Calling End on an
// already-terminal session returns the prior result without mutating
// anything or settling twice.
func (s *Service) End(ctx context.Context, sessionID, requesterID uuid.UUID) (*EndResult, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RequesterID != requesterID {
		return nil, ErrForbidden
	}

	if models.IsTerminalStatus(sess.Status) {
		return s.priorResult(ctx, sess)
	}
	if sess.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ended, err := s.sessions.Terminate(ctx, tx, sessionID, models.SessionStatusActive, models.SessionStatusEnded)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race against a force-end (or a concurrent End);
			// report whatever terminal outcome won.
			fresh, ferr := s.getSession(ctx, sessionID)
			if ferr != nil {
				return nil, ferr
			}
			return s.priorResult(ctx, fresh)
		}
		return nil, err
	}
	if err := s.enqueue(ctx, tx, settlement.SettleSessionArgs{SessionID: ended.ID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.engine.StopMetering(ended.ID)
	return &EndResult{Session: ended, TotalCents: ended.TotalAmountCents}, nil
}

// GetSession returns a session visible to either of its parties.
func (s *Service) GetSession(ctx context.Context, sessionID, callerID uuid.UUID) (*models.Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RequesterID != callerID && sess.ProviderID != callerID {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *Service) getSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) terminateRequested(ctx context.Context, sessionID uuid.UUID, to string) (*models.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ended, err := s.sessions.Terminate(ctx, tx, sessionID, models.SessionStatusRequested, to)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ended, nil
}

func (s *Service) priorResult(ctx context.Context, sess *models.Session) (*EndResult, error) {
	res := &EndResult{Session: sess, TotalCents: sess.TotalAmountCents}
	earning, err := s.earnings.GetBySessionID(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return res, nil
		}
		return nil, err
	}
	res.CommissionCents = earning.CommissionCents
	res.ProviderCents = earning.ProviderCents
	res.Settled = true
	return res, nil
}

func (s *Service) releaseLocks(ctx context.Context, sess *models.Session) {
	if err := s.locks.Release(ctx, locks.RequesterKey(sess.RequesterID), sess.RequesterLock); err != nil {
		s.logger.Error("release requester lock", "session_id", sess.ID, "error", err)
	}
	if err := s.locks.Release(ctx, locks.ProviderKey(sess.ProviderID), sess.ProviderLock); err != nil {
		s.logger.Error("release provider lock", "session_id", sess.ID, "error", err)
	}
}
