// Package health keeps the per-device health table current: a periodic sweep
// checks every active device, tracks uptime, and drives reconnection when a
// device goes dark.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/connect"
	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/events"
	"github.com/ohmvision/ov-fleet/internal/metrics"
	"github.com/ohmvision/ov-fleet/internal/profiles"
	"github.com/ohmvision/ov-fleet/internal/reconnect"
)

// Checker verifies a device's accepted URL and renegotiates candidates when
// it stops answering.
type Checker interface {
	CheckHealth(ctx context.Context, url string, kind profiles.Kind) connect.HealthResult
	AutoDetectBestConnection(ctx context.Context, ip, username, password, vendorHint string) connect.DetectOutcome
}

type Config struct {
	Interval     time.Duration
	BatchSize    int
	UptimeWindow int
}

func DefaultConfig() Config {
	return Config{
		Interval:     60 * time.Second,
		BatchSize:    10,
		UptimeWindow: defaultUptimeWindow,
	}
}

type entry struct {
	status data.CameraHealthStatus
	ring   *uptimeRing
}

type Monitor struct {
	log     zerolog.Logger
	cfg     Config
	repo    data.DeviceRepository
	checker Checker
	sched   *reconnect.Scheduler
	bus     events.Publisher
	met     *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry

	quit    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewMonitor(log zerolog.Logger, cfg Config, repo data.DeviceRepository, checker Checker, sched *reconnect.Scheduler, bus events.Publisher, met *metrics.Metrics) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if bus == nil {
		bus = events.Noop{}
	}
	return &Monitor{
		log:     log.With().Str("component", "health").Logger(),
		cfg:     cfg,
		repo:    repo,
		checker: checker,
		sched:   sched,
		bus:     bus,
		met:     met,
		entries: make(map[string]*entry),
		quit:    make(chan struct{}),
	}
}

// Start launches the sweep loop. Safe to call once.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()
	m.log.Info().Dur("interval", m.cfg.Interval).Int("batch", m.cfg.BatchSize).Msg("health monitor started")
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.quit)
	m.wg.Wait()
	m.log.Info().Msg("health monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Sweep(context.Background())
	for {
		select {
		case <-ticker.C:
			m.Sweep(context.Background())
		case <-m.quit:
			return
		}
	}
}

// Sweep checks every active device once, in fixed-size concurrent batches so
// a large fleet cannot open hundreds of sockets at once.
func (m *Monitor) Sweep(ctx context.Context) {
	targets, err := m.repo.ListActiveDevices(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("device list unavailable, sweep skipped")
		return
	}

	for start := 0; start < len(targets); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		var wg sync.WaitGroup
		for _, t := range targets[start:end] {
			wg.Add(1)
			go func(t data.DeviceTarget) {
				defer wg.Done()
				m.checkDevice(ctx, t)
			}(t)
		}
		wg.Wait()

		select {
		case <-m.quit:
			return
		default:
		}
	}
	m.publishGauges()
}

func (m *Monitor) checkDevice(ctx context.Context, t data.DeviceTarget) {
	var res connect.HealthResult
	if t.URL == "" {
		res = connect.HealthResult{Tier: data.TierOffline, Detail: "no connection url"}
	} else {
		res = m.checker.CheckHealth(ctx, t.URL, t.Kind)
	}

	if m.met != nil {
		outcome := "offline"
		if res.Online {
			outcome = "online"
			m.met.HealthCheckRTT.Observe(res.ResponseTime.Seconds())
		}
		m.met.HealthChecksTotal.WithLabelValues(outcome).Inc()
	}

	if res.Online {
		m.recordOnline(ctx, t, res, false)
		return
	}
	m.recordOffline(ctx, t, res)

	if !m.sched.ShouldRetry(t.ID) {
		return
	}
	outcome := m.checker.AutoDetectBestConnection(ctx, t.IP, t.Username, t.Password, t.VendorHint)
	m.sched.RecordAttempt(t.ID, outcome.Best != nil)
	if outcome.Best == nil {
		m.log.Debug().Str("camera", t.ID).Msg("reconnection attempt found nothing")
		return
	}

	best := outcome.Best
	if err := m.repo.UpdateDeviceConnection(ctx, t.ID, best.URL, string(best.Kind)); err != nil {
		m.log.Warn().Err(err).Str("camera", t.ID).Msg("new connection url not persisted")
	}
	t.URL, t.Kind = best.URL, best.Kind
	m.recordOnline(ctx, t, connect.HealthResult{
		Online:       true,
		ResponseTime: best.ResponseTime,
		Tier:         connect.TierFor(best.ResponseTime),
	}, true)
	m.log.Info().Str("camera", t.ID).Str("url", best.URL).Str("kind", string(best.Kind)).
		Msg("device reconnected on a new url")
}

func (m *Monitor) recordOnline(ctx context.Context, t data.DeviceTarget, res connect.HealthResult, reconnected bool) {
	now := time.Now()

	m.mu.Lock()
	e := m.ensureEntry(t.ID)
	wasOnline, known := e.status.Online, !e.status.LastCheck.IsZero()
	e.ring.Add(true)
	e.status = data.CameraHealthStatus{
		CameraID:       t.ID,
		Online:         true,
		Health:         res.Tier,
		LastCheck:      now,
		ResponseTimeMS: res.ResponseTime.Milliseconds(),
		UptimePercent:  e.ring.UptimePercent(),
		NextCheckIn:    int(m.cfg.Interval.Seconds()),
	}
	m.mu.Unlock()

	m.sched.Reset(t.ID)

	if err := m.repo.UpdateDeviceStatus(ctx, t.ID, true, now, res.Tier, 0, ""); err != nil {
		m.log.Warn().Err(err).Str("camera", t.ID).Msg("status not persisted")
	}

	if reconnected {
		m.publish(events.StatusEvent{
			Type: events.TypeReconnected, CameraID: t.ID, Online: true,
			Health: string(res.Tier), ResponseTimeMS: res.ResponseTime.Milliseconds(),
			URL: t.URL, At: now,
		})
	} else if known && !wasOnline {
		m.publish(events.StatusEvent{
			Type: events.TypeOnline, CameraID: t.ID, Online: true,
			Health: string(res.Tier), ResponseTimeMS: res.ResponseTime.Milliseconds(), At: now,
		})
	}
}

func (m *Monitor) recordOffline(ctx context.Context, t data.DeviceTarget, res connect.HealthResult) {
	now := time.Now()

	m.mu.Lock()
	e := m.ensureEntry(t.ID)
	wasOnline, known := e.status.Online, !e.status.LastCheck.IsZero()
	e.ring.Add(false)
	failed := e.status.FailedAttempts + 1
	e.status = data.CameraHealthStatus{
		CameraID:       t.ID,
		Online:         false,
		Health:         data.TierOffline,
		LastCheck:      now,
		UptimePercent:  e.ring.UptimePercent(),
		FailedAttempts: failed,
		LastError:      res.Detail,
		NextCheckIn:    m.nextCheckIn(t.ID),
	}
	m.mu.Unlock()

	if err := m.repo.UpdateDeviceStatus(ctx, t.ID, false, now, data.TierOffline, failed, res.Detail); err != nil {
		m.log.Warn().Err(err).Str("camera", t.ID).Msg("status not persisted")
	}

	if known && wasOnline {
		m.publish(events.StatusEvent{
			Type: events.TypeOffline, CameraID: t.ID, Online: false,
			Health: string(data.TierOffline), Detail: res.Detail, At: now,
		})
	}
}

func (m *Monitor) ensureEntry(id string) *entry {
	e, ok := m.entries[id]
	if !ok {
		e = &entry{ring: newUptimeRing(m.cfg.UptimeWindow)}
		m.entries[id] = e
	}
	return e
}

func (m *Monitor) nextCheckIn(id string) int {
	st := m.sched.GetStatus(id)
	if st.NextRetryInSeconds > 0 {
		return int(st.NextRetryInSeconds)
	}
	return int(m.cfg.Interval.Seconds())
}

func (m *Monitor) publish(evt events.StatusEvent) {
	if err := m.bus.Publish(evt); err != nil {
		m.log.Warn().Err(err).Str("type", evt.Type).Str("camera", evt.CameraID).Msg("event not published")
	}
}

func (m *Monitor) publishGauges() {
	if m.met == nil {
		return
	}
	online := 0
	m.mu.Lock()
	for _, e := range m.entries {
		if e.status.Online {
			online++
		}
	}
	m.mu.Unlock()
	m.met.DevicesOnline.Set(float64(online))
}

// CheckNow forces an immediate check of one device, clearing any exhausted
// retry budget first. Manual intervention always gets a fresh start.
func (m *Monitor) CheckNow(ctx context.Context, id string) (data.CameraHealthStatus, error) {
	t, err := m.repo.GetDevice(ctx, id)
	if err != nil {
		return data.CameraHealthStatus{}, err
	}
	m.sched.Reset(id)
	m.checkDevice(ctx, *t)

	st, _ := m.CameraHealth(id)
	return st, nil
}

// CameraHealth returns a copy of one device's health row.
func (m *Monitor) CameraHealth(id string) (data.CameraHealthStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return data.CameraHealthStatus{}, false
	}
	return e.status, true
}

// AllHealth returns a copy of the whole health table.
func (m *Monitor) AllHealth() map[string]data.CameraHealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]data.CameraHealthStatus, len(m.entries))
	for id, e := range m.entries {
		out[id] = e.status
	}
	return out
}

// ReconnectionStatus exposes the backoff bookkeeping for one device.
func (m *Monitor) ReconnectionStatus(id string) reconnect.Status {
	return m.sched.GetStatus(id)
}

// Summary is the fleet-wide health rollup.
type Summary struct {
	Total   int                     `json:"total"`
	Online  int                     `json:"online"`
	Offline int                     `json:"offline"`
	ByTier  map[data.HealthTier]int `json:"by_tier"`
}

func (m *Monitor) SystemSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{ByTier: make(map[data.HealthTier]int)}
	for _, e := range m.entries {
		s.Total++
		if e.status.Online {
			s.Online++
		} else {
			s.Offline++
		}
		s.ByTier[e.status.Health]++
	}
	return s
}
