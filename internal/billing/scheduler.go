package billing

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler owns the per-session billing timers. Each active session has at
// most one timer; Start is a no-op on a session that is already tracked.
type Scheduler interface {
	// Start begins firing fn every period for the given session. Returns
	// false if a timer for the session already exists.
	Start(id uuid.UUID, period time.Duration, fn func()) bool
	// Stop cancels the session's timer. Idempotent; returns false if no
	// timer was tracked. Safe to call from inside fn.
	Stop(id uuid.UUID) bool
	// Has reports whether a timer is tracked for the session.
	Has(id uuid.UUID) bool
}

// TickerScheduler runs one goroutine with a time.Ticker per session.
type TickerScheduler struct {
	mu     sync.Mutex
	timers map[uuid.UUID]chan struct{}
}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{timers: make(map[uuid.UUID]chan struct{})}
}

var _ Scheduler = (*TickerScheduler)(nil)

func (s *TickerScheduler) Start(id uuid.UUID, period time.Duration, fn func()) bool {
	s.mu.Lock()
	if _, exists := s.timers[id]; exists {
		s.mu.Unlock()
		return false
	}
	stop := make(chan struct{})
	s.timers[id] = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
	return true
}

func (s *TickerScheduler) Stop(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop, exists := s.timers[id]
	if !exists {
		return false
	}
	delete(s.timers, id)
	close(stop)
	return true
}

func (s *TickerScheduler) Has(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.timers[id]
	return exists
}

// StopAll cancels every tracked timer. Used at shutdown.
func (s *TickerScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stop := range s.timers {
		delete(s.timers, id)
		close(stop)
	}
}
