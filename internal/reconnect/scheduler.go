// Package reconnect tracks per-device reconnection attempts and computes
// exponential backoff. Pure bookkeeping: the scheduler never performs I/O.
package reconnect

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	MaxAttempts   int
}

func DefaultConfig() Config {
	return Config{
		InitialDelay:  10 * time.Second,
		MaxDelay:      300 * time.Second,
		BackoffFactor: 2.0,
		MaxAttempts:   5,
	}
}

// Status is a read-only snapshot of one device's reconnection state.
type Status struct {
	Attempts           int        `json:"attempts"`
	MaxAttempts        int        `json:"max_attempts"`
	LastAttempt        *time.Time `json:"last_attempt,omitempty"`
	NextRetryInSeconds float64    `json:"next_retry_in_seconds"`
}

type deviceState struct {
	attempts    int
	lastAttempt time.Time
}

// Scheduler answers "should this device be retried now". One state record per
// device id; success wipes it.
type Scheduler struct {
	cfg Config

	mu    sync.Mutex
	state map[string]*deviceState

	now func() time.Time // test hook
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 10 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 300 * time.Second
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Scheduler{
		cfg:   cfg,
		state: make(map[string]*deviceState),
		now:   time.Now,
	}
}

// Delay returns the wait before the next attempt for a device:
// min(initial * factor^attempts, max).
func (s *Scheduler) Delay(deviceID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayLocked(s.attemptsLocked(deviceID))
}

func (s *Scheduler) delayLocked(attempts int) time.Duration {
	d := float64(s.cfg.InitialDelay) * math.Pow(s.cfg.BackoffFactor, float64(attempts))
	if d > float64(s.cfg.MaxDelay) {
		return s.cfg.MaxDelay
	}
	return time.Duration(d)
}

func (s *Scheduler) attemptsLocked(deviceID string) int {
	if st, ok := s.state[deviceID]; ok {
		return st.attempts
	}
	return 0
}

// ShouldRetry is false once the attempt ceiling is reached, or while the
// backoff window since the last attempt is still open.
func (s *Scheduler) ShouldRetry(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[deviceID]
	if !ok {
		return true
	}
	if st.attempts >= s.cfg.MaxAttempts {
		return false
	}
	if !st.lastAttempt.IsZero() {
		if s.now().Sub(st.lastAttempt) < s.delayLocked(st.attempts) {
			return false
		}
	}
	return true
}

// RecordAttempt registers the outcome of a connection attempt. Success resets
// the counter and clears the timestamp, so a later failure restarts backoff
// from the initial delay.
func (s *Scheduler) RecordAttempt(deviceID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		delete(s.state, deviceID)
		return
	}
	st, ok := s.state[deviceID]
	if !ok {
		st = &deviceState{}
		s.state[deviceID] = st
	}
	st.attempts++
	st.lastAttempt = s.now()
}

// Reset wipes a device's state, re-enabling retries immediately. Used by
// manual re-check requests.
func (s *Scheduler) Reset(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, deviceID)
}

func (s *Scheduler) GetStatus(deviceID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Status{MaxAttempts: s.cfg.MaxAttempts}
	st, ok := s.state[deviceID]
	if !ok {
		return out
	}
	out.Attempts = st.attempts
	if !st.lastAttempt.IsZero() {
		la := st.lastAttempt
		out.LastAttempt = &la
		remaining := s.delayLocked(st.attempts) - s.now().Sub(st.lastAttempt)
		if remaining > 0 {
			out.NextRetryInSeconds = remaining.Seconds()
		}
	}
	return out
}
