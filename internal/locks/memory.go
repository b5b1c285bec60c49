package locks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLock struct {
	holder    uuid.UUID
	expiresAt time.Time
}

// MemoryService is an in-process Service with the same semantics as the
// Postgres implementation. Used in tests and single-node development.
type MemoryService struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemory() *MemoryService {
	return &MemoryService{locks: make(map[string]memoryLock), now: time.Now}
}

var _ Service = (*MemoryService)(nil)

func (s *MemoryService) Acquire(_ context.Context, key string, ttl time.Duration) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok && l.expiresAt.After(s.now()) {
		return uuid.Nil, false, nil
	}
	token := uuid.New()
	s.locks[key] = memoryLock{holder: token, expiresAt: s.now().Add(ttl)}
	return token, true, nil
}

func (s *MemoryService) Release(_ context.Context, key string, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok && l.holder == token {
		delete(s.locks, key)
	}
	return nil
}

// Held reports whether key is currently held (and unexpired).
func (s *MemoryService) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	return ok && l.expiresAt.After(s.now())
}
