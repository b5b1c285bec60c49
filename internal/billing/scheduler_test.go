package billing

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerSchedulerFiresPeriodically(t *testing.T) {
	s := NewTickerScheduler()
	defer s.StopAll()

	id := uuid.New()
	var fired atomic.Int64
	require.True(t, s.Start(id, 5*time.Millisecond, func() { fired.Add(1) }))

	assert.Eventually(t, func() bool { return fired.Load() >= 3 },
		time.Second, 2*time.Millisecond)
}

func TestTickerSchedulerOneTimerPerID(t *testing.T) {
	s := NewTickerScheduler()
	defer s.StopAll()

	id := uuid.New()
	require.True(t, s.Start(id, time.Hour, func() {}))
	assert.False(t, s.Start(id, time.Hour, func() {}))
	assert.True(t, s.Has(id))

	assert.True(t, s.Stop(id))
	assert.False(t, s.Has(id))
	assert.False(t, s.Stop(id), "stop is idempotent")
}

func TestTickerSchedulerStopHaltsFiring(t *testing.T) {
	s := NewTickerScheduler()
	defer s.StopAll()

	id := uuid.New()
	var fired atomic.Int64
	require.True(t, s.Start(id, 5*time.Millisecond, func() { fired.Add(1) }))

	require.Eventually(t, func() bool { return fired.Load() >= 1 },
		time.Second, 2*time.Millisecond)
	require.True(t, s.Stop(id))

	at := fired.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, fired.Load(), at+1, "timer must not keep firing after stop")
}

func TestTickerSchedulerStopFromInsideFn(t *testing.T) {
	s := NewTickerScheduler()
	defer s.StopAll()

	id := uuid.New()
	done := make(chan struct{})
	require.True(t, s.Start(id, 5*time.Millisecond, func() {
		s.Stop(id)
		select {
		case <-done:
		default:
			close(done)
		}
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.Eventually(t, func() bool { return !s.Has(id) },
		time.Second, 2*time.Millisecond)
}

func TestTickerSchedulerStopAll(t *testing.T) {
	s := NewTickerScheduler()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.True(t, s.Start(id, time.Hour, func() {}))
	}

	s.StopAll()
	for _, id := range ids {
		assert.False(t, s.Has(id))
	}
}
