package auth

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/counseldesk/backend/internal/models"
)

type mockStore struct {
	byEmail   map[string]*models.User
	created   []*models.User
	createErr error
	missFirst bool
}

func newMockStore() *mockStore {
	return &mockStore{byEmail: make(map[string]*models.User)}
}

func (m *mockStore) Create(_ context.Context, u *models.User, p *models.Provider) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.byEmail[u.Email]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	m.byEmail[u.Email] = u
	m.created = append(m.created, u)
	return nil
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if m.missFirst {
		m.missFirst = false
		return nil, nil
	}
	return m.byEmail[email], nil
}

func TestEnsureAdminCreatesAdminRole(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	u, err := svc.EnsureAdmin(context.Background(), "root@example.com", "hunter22", "")
	require.NoError(t, err)

	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, "root@example.com", u.Email)
	assert.Equal(t, "Administrator", u.Name)
	require.Len(t, store.created, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")))
}

func TestEnsureAdminExistingEmailWins(t *testing.T) {
	store := newMockStore()
	existing := &models.User{Email: "root@example.com", Role: models.RoleUser, PasswordHash: "old"}
	store.byEmail[existing.Email] = existing
	svc := NewService(store)

	u, err := svc.EnsureAdmin(context.Background(), "root@example.com", "newpassword", "Root")
	require.NoError(t, err)

	assert.Same(t, existing, u)
	assert.Empty(t, store.created, "existing row must not be replaced")
}

func TestEnsureAdminLostCreateRaceReturnsWinner(t *testing.T) {
	// another instance inserts between our read and our insert: the first
	// lookup misses, the insert hits the unique violation, the re-read wins
	store := newMockStore()
	winner := &models.User{Email: "root@example.com", Role: models.RoleAdmin}
	store.byEmail[winner.Email] = winner
	store.missFirst = true
	store.createErr = &pgconn.PgError{Code: "23505"}
	svc := NewService(store)

	u, err := svc.EnsureAdmin(context.Background(), "root@example.com", "pw", "")
	require.NoError(t, err)
	assert.Same(t, winner, u)
	assert.Empty(t, store.created)
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)

	_, err := svc.Register(context.Background(), "a@example.com", "pw", "A", models.RoleAdmin, 0)
	require.Error(t, err)
	assert.Empty(t, store.created)
}
