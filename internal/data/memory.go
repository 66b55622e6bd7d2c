package data

import (
	"context"
	"sync"
	"time"

	"github.com/ohmvision/ov-fleet/internal/profiles"
)

// MemoryDeviceRepository keeps the device table in process memory. Used for
// tests and for running fleetd without a database.
type MemoryDeviceRepository struct {
	mu         sync.RWMutex
	targets    map[string]DeviceTarget
	discovered map[string]DeviceRecord
	status     map[string]statusRow
}

type statusRow struct {
	Online       bool
	LastSeen     time.Time
	Health       HealthTier
	FailureCount int
	LastError    string
}

var _ DeviceRepository = (*MemoryDeviceRepository)(nil)

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		targets:    make(map[string]DeviceTarget),
		discovered: make(map[string]DeviceRecord),
		status:     make(map[string]statusRow),
	}
}

// AddDevice seeds an active device. Not part of DeviceRepository; the
// onboarding flow that would normally populate the table is external.
func (r *MemoryDeviceRepository) AddDevice(t DeviceTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID] = t
}

func (r *MemoryDeviceRepository) ListActiveDevices(_ context.Context) ([]DeviceTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceTarget, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	return out, nil
}

func (r *MemoryDeviceRepository) GetDevice(_ context.Context, id string) (*DeviceTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	cp := t
	return &cp, nil
}

func (r *MemoryDeviceRepository) UpdateDeviceConnection(_ context.Context, id, url string, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return ErrDeviceNotFound
	}
	t.URL = url
	t.Kind = profiles.Kind(kind)
	r.targets[id] = t
	return nil
}

func (r *MemoryDeviceRepository) UpdateDeviceStatus(_ context.Context, id string, online bool, lastSeen time.Time, health HealthTier, failureCount int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[id] = statusRow{
		Online:       online,
		LastSeen:     lastSeen,
		Health:       health,
		FailureCount: failureCount,
		LastError:    lastError,
	}
	return nil
}

func (r *MemoryDeviceRepository) UpsertDiscovered(_ context.Context, rec *DeviceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered[rec.IP] = *rec
	return nil
}

// Discovered returns the parked discovery results, for inspection.
func (r *MemoryDeviceRepository) Discovered() []DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceRecord, 0, len(r.discovered))
	for _, rec := range r.discovered {
		out = append(out, rec)
	}
	return out
}
