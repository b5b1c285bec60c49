package consult

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counseldesk/backend/internal/events"
	"github.com/counseldesk/backend/internal/locks"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
	"github.com/counseldesk/backend/internal/settlement"
)

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- store mocks ---

type mockSessions struct {
	sessions map[uuid.UUID]*models.Session
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[uuid.UUID]*models.Session)}
}

func (m *mockSessions) Create(_ context.Context, s *models.Session) error {
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessions) FindActiveByRequester(_ context.Context, requesterID uuid.UUID) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.RequesterID != requesterID {
			continue
		}
		if s.Status == models.SessionStatusRequested || s.Status == models.SessionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockSessions) Activate(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionStatusRequested {
		return nil, repository.ErrNotFound
	}
	s.Status = models.SessionStatusActive
	now := time.Now()
	s.StartedAt = &now
	cp := *s
	return &cp, nil
}

func (m *mockSessions) Terminate(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to string) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return nil, repository.ErrNotFound
	}
	s.Status = to
	now := time.Now()
	s.EndedAt = &now
	cp := *s
	return &cp, nil
}

type mockWallet struct {
	balances map[uuid.UUID]int64
}

func (m *mockWallet) BalanceCents(_ context.Context, id uuid.UUID) (int64, error) {
	b, ok := m.balances[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return b, nil
}

type mockProviders struct {
	providers map[uuid.UUID]*models.Provider
}

func (m *mockProviders) GetByID(_ context.Context, id uuid.UUID) (*models.Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type mockEarnings struct {
	bySession map[uuid.UUID]*models.Earning
}

func (m *mockEarnings) GetBySessionID(_ context.Context, sessionID uuid.UUID) (*models.Earning, error) {
	e, ok := m.bySession[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

type mockSettings struct {
	minStart int64
}

func (m *mockSettings) Get(context.Context) (*models.Settings, error) {
	return &models.Settings{
		CommissionPercent: models.DefaultCommissionPercent,
		MinStartCents:     m.minStart,
	}, nil
}

type stubMetering struct {
	started []uuid.UUID
	stopped []uuid.UUID
}

func (m *stubMetering) StartMetering(id uuid.UUID) bool {
	m.started = append(m.started, id)
	return true
}

func (m *stubMetering) StopMetering(id uuid.UUID) bool {
	m.stopped = append(m.stopped, id)
	return true
}

type captureSink struct {
	events []events.Event
}

func (s *captureSink) Emit(_ context.Context, e events.Event) {
	s.events = append(s.events, e)
}

func (s *captureSink) last() events.Event {
	if len(s.events) == 0 {
		return events.Event{}
	}
	return s.events[len(s.events)-1]
}

// --- fixture ---

type fixture struct {
	svc       *Service
	sessions  *mockSessions
	wallet    *mockWallet
	providers *mockProviders
	earnings  *mockEarnings
	locks     *locks.MemoryService
	metering  *stubMetering
	sink      *captureSink
	enqueued  []settlement.SettleSessionArgs

	requesterID uuid.UUID
	providerID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:    newMockSessions(),
		wallet:      &mockWallet{balances: make(map[uuid.UUID]int64)},
		providers:   &mockProviders{providers: make(map[uuid.UUID]*models.Provider)},
		earnings:    &mockEarnings{bySession: make(map[uuid.UUID]*models.Earning)},
		locks:       locks.NewMemory(),
		metering:    &stubMetering{},
		sink:        &captureSink{},
		requesterID: uuid.New(),
		providerID:  uuid.New(),
	}
	f.wallet.balances[f.requesterID] = 10_000
	f.providers.providers[f.providerID] = &models.Provider{
		UserID:             f.providerID,
		RatePerMinuteCents: 6000,
		Online:             true,
		Verified:           true,
	}

	enqueue := func(_ context.Context, _ pgx.Tx, args settlement.SettleSessionArgs) error {
		f.enqueued = append(f.enqueued, args)
		return nil
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.svc = NewService(mockPool{}, f.sessions, f.wallet, f.providers, f.earnings, f.settingsStore(),
		f.locks, f.metering, enqueue, f.sink, time.Minute, logger)
	return f
}

func (f *fixture) settingsStore() *mockSettings {
	return &mockSettings{minStart: 1500}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) start(t *testing.T) *models.Session {
	t.Helper()
	sess, err := f.svc.Start(context.Background(), f.requesterID, f.providerID, models.SessionKindChat)
	require.NoError(t, err)
	return sess
}

func (f *fixture) startActive(t *testing.T) *models.Session {
	t.Helper()
	sess := f.start(t)
	activated, err := f.svc.Accept(context.Background(), sess.ID, f.providerID)
	require.NoError(t, err)
	return activated
}

// --- start ---

func TestStartCreatesRequestedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	assert.Equal(t, models.SessionStatusRequested, sess.Status)
	assert.Equal(t, int64(6000), sess.RatePerMinuteCents, "rate is snapshotted from the provider")
	assert.Nil(t, sess.StartedAt)

	assert.True(t, f.locks.Held(locks.RequesterKey(f.requesterID)))
	assert.True(t, f.locks.Held(locks.ProviderKey(f.providerID)))
	assert.Equal(t, events.EngagementStarted, f.sink.last().Type)
}

func TestStartRejectsLowBalance(t *testing.T) {
	f := newFixture(t)
	f.wallet.balances[f.requesterID] = 1499

	_, err := f.svc.Start(context.Background(), f.requesterID, f.providerID, models.SessionKindChat)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, f.locks.Held(locks.RequesterKey(f.requesterID)))
}

func TestStartRejectsUnavailableProvider(t *testing.T) {
	f := newFixture(t)

	f.providers.providers[f.providerID].Online = false
	_, err := f.svc.Start(context.Background(), f.requesterID, f.providerID, models.SessionKindChat)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	f.providers.providers[f.providerID].Online = true
	f.providers.providers[f.providerID].Verified = false
	_, err = f.svc.Start(context.Background(), f.requesterID, f.providerID, models.SessionKindChat)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestStartRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), f.requesterID, f.providerID, "CARRIER_PIGEON")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartRejectsDuplicateEngagement(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	other := uuid.New()
	f.providers.providers[other] = &models.Provider{
		UserID: other, RatePerMinuteCents: 3000, Online: true, Verified: true,
	}
	_, err := f.svc.Start(context.Background(), f.requesterID, other, models.SessionKindChat)
	require.ErrorIs(t, err, ErrConflict)
}

func TestStartReleasesRequesterLockWhenProviderBusy(t *testing.T) {
	f := newFixture(t)

	// Another requester already holds the provider's lock.
	_, ok, err := f.locks.Acquire(context.Background(), locks.ProviderKey(f.providerID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Start(context.Background(), f.requesterID, f.providerID, models.SessionKindChat)
	require.ErrorIs(t, err, ErrConflict)

	assert.False(t, f.locks.Held(locks.RequesterKey(f.requesterID)),
		"failed start must not leave the requester lock held")
	assert.True(t, f.locks.Held(locks.ProviderKey(f.providerID)),
		"the other engagement's lock must survive")
}

// --- accept / decline / cancel ---

func TestAcceptActivatesAndStartsMetering(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	activated, err := f.svc.Accept(context.Background(), sess.ID, f.providerID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, activated.Status)
	require.NotNil(t, activated.StartedAt)

	assert.Equal(t, []uuid.UUID{sess.ID}, f.metering.started)
	assert.Equal(t, events.EngagementAccepted, f.sink.last().Type)
}

func TestAcceptByWrongProvider(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	_, err := f.svc.Accept(context.Background(), sess.ID, uuid.New())
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.metering.started)
}

func TestAcceptNonRequestedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	_, err := f.svc.Accept(context.Background(), sess.ID, f.providerID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeclineReleasesLocksWithoutEarning(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	declined, err := f.svc.Decline(context.Background(), sess.ID, f.providerID, "unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusDeclined, declined.Status)

	assert.False(t, f.locks.Held(locks.RequesterKey(f.requesterID)))
	assert.False(t, f.locks.Held(locks.ProviderKey(f.providerID)))
	assert.Empty(t, f.enqueued, "declined sessions never settle")
	assert.Equal(t, events.EngagementDeclined, f.sink.last().Type)
	assert.Equal(t, "unavailable", f.sink.last().Reason)
}

func TestDeclineByRequesterForbidden(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	_, err := f.svc.Decline(context.Background(), sess.ID, f.requesterID, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCancelRequestedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	cancelled, err := f.svc.Cancel(context.Background(), sess.ID, f.requesterID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, cancelled.Status)
	assert.False(t, f.locks.Held(locks.RequesterKey(f.requesterID)))
	assert.Empty(t, f.enqueued)
}

func TestCancelActiveSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	_, err := f.svc.Cancel(context.Background(), sess.ID, f.requesterID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, gerr := f.sessions.GetByID(context.Background(), sess.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.SessionStatusActive, got.Status)
}

// --- end ---

func TestEndFlipsStatusAndEnqueuesSettlement(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	f.sessions.sessions[sess.ID].TotalAmountCents = 3000

	res, err := f.svc.End(context.Background(), sess.ID, f.requesterID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, res.Session.Status)
	assert.Equal(t, int64(3000), res.TotalCents)
	assert.False(t, res.Settled, "settlement runs asynchronously")

	require.Len(t, f.enqueued, 1)
	assert.Equal(t, sess.ID, f.enqueued[0].SessionID)
	assert.Equal(t, []uuid.UUID{sess.ID}, f.metering.stopped)
}

func TestEndTwiceReturnsPriorResult(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)
	f.sessions.sessions[sess.ID].TotalAmountCents = 3000

	_, err := f.svc.End(context.Background(), sess.ID, f.requesterID)
	require.NoError(t, err)

	// Settlement has since completed.
	f.earnings.bySession[sess.ID] = &models.Earning{
		SessionID:       sess.ID,
		ProviderID:      f.providerID,
		TotalCents:      3000,
		CommissionCents: 600,
		ProviderCents:   2400,
	}

	res, err := f.svc.End(context.Background(), sess.ID, f.requesterID)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, int64(3000), res.TotalCents)
	assert.Equal(t, int64(600), res.CommissionCents)
	assert.Equal(t, int64(2400), res.ProviderCents)

	assert.Len(t, f.enqueued, 1, "repeat end must not enqueue settlement again")
}

func TestEndByProviderForbidden(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	_, err := f.svc.End(context.Background(), sess.ID, f.providerID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestEndAfterForceEndReportsTerminalOutcome(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	// Balance exhaustion flipped the session underneath the caller.
	f.sessions.sessions[sess.ID].Status = models.SessionStatusForceEnded
	f.sessions.sessions[sess.ID].TotalAmountCents = 2500

	res, err := f.svc.End(context.Background(), sess.ID, f.requesterID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusForceEnded, res.Session.Status)
	assert.Equal(t, int64(2500), res.TotalCents)
	assert.Empty(t, f.enqueued, "force end already enqueued its own settlement")
}

func TestEndRequestedSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t)

	_, err := f.svc.End(context.Background(), sess.ID, f.requesterID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
