package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmvision/ov-fleet/internal/connect"
	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/events"
	"github.com/ohmvision/ov-fleet/internal/profiles"
	"github.com/ohmvision/ov-fleet/internal/reconnect"
)

type stubChecker struct {
	mu          sync.Mutex
	healthFn    func(url string, kind profiles.Kind) connect.HealthResult
	detectFn    func(ip string) connect.DetectOutcome
	detectCalls int
}

func (s *stubChecker) CheckHealth(_ context.Context, url string, kind profiles.Kind) connect.HealthResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthFn(url, kind)
}

func (s *stubChecker) AutoDetectBestConnection(_ context.Context, ip, _, _, _ string) connect.DetectOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectCalls++
	if s.detectFn == nil {
		return connect.DetectOutcome{}
	}
	return s.detectFn(ip)
}

func (s *stubChecker) setHealth(fn func(url string, kind profiles.Kind) connect.HealthResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFn = fn
}

func (s *stubChecker) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectCalls
}

type capturingBus struct {
	mu   sync.Mutex
	evts []events.StatusEvent
}

func (b *capturingBus) Publish(evt events.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evts = append(b.evts, evt)
	return nil
}

func (b *capturingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.evts))
	for _, e := range b.evts {
		out = append(out, e.Type)
	}
	return out
}

func online(rtt time.Duration) connect.HealthResult {
	return connect.HealthResult{Online: true, ResponseTime: rtt, Tier: connect.TierFor(rtt)}
}

func offline(detail string) connect.HealthResult {
	return connect.HealthResult{Tier: data.TierOffline, Detail: detail}
}

func newTestMonitor(t *testing.T, checker Checker, bus events.Publisher) (*Monitor, *data.MemoryDeviceRepository) {
	t.Helper()
	repo := data.NewMemoryDeviceRepository()
	repo.AddDevice(data.DeviceTarget{
		ID: "cam-1", IP: "192.168.1.64", URL: "rtsp://192.168.1.64:554/old",
		Kind: profiles.KindStream, Username: "admin", Password: "pw", VendorHint: "hikvision",
	})
	cfg := Config{Interval: time.Minute, BatchSize: 10, UptimeWindow: 100}
	m := NewMonitor(zerolog.Nop(), cfg, repo, checker, reconnect.NewScheduler(reconnect.DefaultConfig()), bus, nil)
	return m, repo
}

func TestSweep_HealthyDevice(t *testing.T) {
	checker := &stubChecker{healthFn: func(string, profiles.Kind) connect.HealthResult {
		return online(120 * time.Millisecond)
	}}
	m, _ := newTestMonitor(t, checker, nil)

	m.Sweep(context.Background())

	st, ok := m.CameraHealth("cam-1")
	require.True(t, ok)
	assert.True(t, st.Online)
	assert.Equal(t, data.TierExcellent, st.Health)
	assert.EqualValues(t, 120, st.ResponseTimeMS)
	assert.Equal(t, 100.0, st.UptimePercent)
	assert.Zero(t, st.FailedAttempts)
	assert.Equal(t, 60, st.NextCheckIn)
	assert.Zero(t, checker.calls(), "healthy device needs no renegotiation")
}

func TestSweep_OfflineThenReconnectsOnNewURL(t *testing.T) {
	checker := &stubChecker{}
	checker.setHealth(func(string, profiles.Kind) connect.HealthResult { return online(100 * time.Millisecond) })
	bus := &capturingBus{}
	m, repo := newTestMonitor(t, checker, bus)

	m.Sweep(context.Background())

	// Device drops; renegotiation finds a working URL on a different path.
	checker.setHealth(func(string, profiles.Kind) connect.HealthResult { return offline("timeout") })
	checker.detectFn = func(string) connect.DetectOutcome {
		best := connect.Result{
			URL: "rtsp://192.168.1.64:554/Streaming/Channels/101",
			Kind: profiles.KindStream, OK: true, ResponseTime: 90 * time.Millisecond,
		}
		return connect.DetectOutcome{Best: &best}
	}
	m.Sweep(context.Background())

	st, ok := m.CameraHealth("cam-1")
	require.True(t, ok)
	assert.True(t, st.Online, "reconnection flips the device back online in the same sweep")
	assert.Equal(t, 1, checker.calls())

	dev, err := repo.GetDevice(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://192.168.1.64:554/Streaming/Channels/101", dev.URL)

	assert.Equal(t, []string{"device.offline", "device.reconnected"}, bus.types())
}

func TestSweep_FailedReconnectBacksOff(t *testing.T) {
	checker := &stubChecker{}
	checker.setHealth(func(string, profiles.Kind) connect.HealthResult { return offline("timeout") })
	m, _ := newTestMonitor(t, checker, nil)

	m.Sweep(context.Background())
	assert.Equal(t, 1, checker.calls())

	// Immediately sweeping again stays inside the backoff window, so no
	// second renegotiation happens.
	m.Sweep(context.Background())
	assert.Equal(t, 1, checker.calls())

	st, _ := m.CameraHealth("cam-1")
	assert.False(t, st.Online)
	assert.Equal(t, 2, st.FailedAttempts)
	assert.Equal(t, "timeout", st.LastError)
	assert.Equal(t, 0.0, st.UptimePercent, "never seen up in the window")

	rs := m.ReconnectionStatus("cam-1")
	assert.Equal(t, 1, rs.Attempts)
}

func TestCheckNow_ResetsExhaustedRetries(t *testing.T) {
	checker := &stubChecker{}
	checker.setHealth(func(string, profiles.Kind) connect.HealthResult { return offline("refused") })
	m, _ := newTestMonitor(t, checker, nil)

	// Burn the retry budget.
	for i := 0; i < 5; i++ {
		m.sched.RecordAttempt("cam-1", false)
	}
	assert.False(t, m.sched.ShouldRetry("cam-1"))

	st, err := m.CheckNow(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Equal(t, 1, checker.calls(), "manual check renegotiates despite the spent budget")
}

func TestCheckNow_UnknownDevice(t *testing.T) {
	checker := &stubChecker{healthFn: func(string, profiles.Kind) connect.HealthResult { return online(time.Millisecond) }}
	m, _ := newTestMonitor(t, checker, nil)

	_, err := m.CheckNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, data.ErrDeviceNotFound)
}

func TestAllHealthAndSummary(t *testing.T) {
	checker := &stubChecker{healthFn: func(url string, _ profiles.Kind) connect.HealthResult {
		if url == "rtsp://192.168.1.64:554/old" {
			return online(2 * time.Second)
		}
		return offline("timeout")
	}}
	m, repo := newTestMonitor(t, checker, nil)
	repo.AddDevice(data.DeviceTarget{ID: "cam-2", IP: "192.168.1.65", URL: "rtsp://192.168.1.65:554/s", Kind: profiles.KindStream})

	m.Sweep(context.Background())

	all := m.AllHealth()
	assert.Len(t, all, 2)

	// The returned map is a copy.
	delete(all, "cam-1")
	_, ok := m.CameraHealth("cam-1")
	assert.True(t, ok)

	s := m.SystemSummary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Online)
	assert.Equal(t, 1, s.Offline)
	assert.Equal(t, 1, s.ByTier[data.TierFair])
	assert.Equal(t, 1, s.ByTier[data.TierOffline])
}

func TestStartStop(t *testing.T) {
	checker := &stubChecker{healthFn: func(string, profiles.Kind) connect.HealthResult { return online(time.Millisecond) }}
	m, _ := newTestMonitor(t, checker, nil)
	m.cfg.Interval = 10 * time.Millisecond

	m.Start()
	m.Start() // second call is a no-op
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	st, ok := m.CameraHealth("cam-1")
	require.True(t, ok)
	assert.True(t, st.Online)
}
