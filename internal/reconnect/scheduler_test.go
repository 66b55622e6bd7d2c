package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestScheduler(t *testing.T) (*Scheduler, *time.Time) {
	t.Helper()
	s := NewScheduler(DefaultConfig())
	clock := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestScheduler_DelayGrowsUntilCap(t *testing.T) {
	s, _ := newTestScheduler(t)

	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second, // 320 capped
		300 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, s.Delay("cam-1"), "after %d failures", i)
		s.RecordAttempt("cam-1", false)
	}
}

func TestScheduler_ShouldRetryHonorsBackoffWindow(t *testing.T) {
	s, clock := newTestScheduler(t)

	assert.True(t, s.ShouldRetry("cam-1"), "unknown device retries immediately")

	s.RecordAttempt("cam-1", false)
	assert.False(t, s.ShouldRetry("cam-1"), "window still open")

	*clock = clock.Add(19 * time.Second)
	assert.False(t, s.ShouldRetry("cam-1"), "delay after one failure is 20s")

	*clock = clock.Add(1 * time.Second)
	assert.True(t, s.ShouldRetry("cam-1"))
}

func TestScheduler_MaxAttemptsStopsRetries(t *testing.T) {
	s, clock := newTestScheduler(t)

	for i := 0; i < 5; i++ {
		s.RecordAttempt("cam-1", false)
		*clock = clock.Add(10 * time.Minute)
	}
	assert.False(t, s.ShouldRetry("cam-1"), "ceiling reached, no more retries regardless of elapsed time")

	// Other devices are unaffected.
	assert.True(t, s.ShouldRetry("cam-2"))
}

func TestScheduler_SuccessResets(t *testing.T) {
	s, _ := newTestScheduler(t)

	for i := 0; i < 3; i++ {
		s.RecordAttempt("cam-1", false)
	}
	assert.Equal(t, 80*time.Second, s.Delay("cam-1"))

	s.RecordAttempt("cam-1", true)
	assert.Equal(t, 10*time.Second, s.Delay("cam-1"))
	assert.True(t, s.ShouldRetry("cam-1"))

	// Success on an untracked device is a no-op, not a panic.
	s.RecordAttempt("cam-9", true)
	assert.Equal(t, 0, s.GetStatus("cam-9").Attempts)
}

func TestScheduler_Reset(t *testing.T) {
	s, clock := newTestScheduler(t)

	for i := 0; i < 5; i++ {
		s.RecordAttempt("cam-1", false)
	}
	assert.False(t, s.ShouldRetry("cam-1"))

	s.Reset("cam-1")
	assert.True(t, s.ShouldRetry("cam-1"))

	_ = clock
}

func TestScheduler_GetStatus(t *testing.T) {
	s, clock := newTestScheduler(t)

	st := s.GetStatus("cam-1")
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, 5, st.MaxAttempts)
	assert.Nil(t, st.LastAttempt)

	s.RecordAttempt("cam-1", false)
	*clock = clock.Add(5 * time.Second)

	st = s.GetStatus("cam-1")
	assert.Equal(t, 1, st.Attempts)
	assert.NotNil(t, st.LastAttempt)
	assert.InDelta(t, 15.0, st.NextRetryInSeconds, 0.01, "20s delay, 5s elapsed")
}

func TestNewScheduler_ZeroConfigGetsDefaults(t *testing.T) {
	s := NewScheduler(Config{})
	assert.Equal(t, 10*time.Second, s.cfg.InitialDelay)
	assert.Equal(t, 300*time.Second, s.cfg.MaxDelay)
	assert.Equal(t, 2.0, s.cfg.BackoffFactor)
	assert.Equal(t, 5, s.cfg.MaxAttempts)
}
