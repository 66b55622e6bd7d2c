package data

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceNotFound is returned when a device id has no row.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository is the persistence collaborator for the fleet core. The
// health monitor reads its sweep targets from here and writes status back;
// discovery can park merged records for the onboarding flow to pick up.
type DeviceRepository interface {
	ListActiveDevices(ctx context.Context) ([]DeviceTarget, error)
	GetDevice(ctx context.Context, id string) (*DeviceTarget, error)
	UpdateDeviceConnection(ctx context.Context, id, url string, kind string) error
	UpdateDeviceStatus(ctx context.Context, id string, online bool, lastSeen time.Time, health HealthTier, failureCount int, lastError string) error
	UpsertDiscovered(ctx context.Context, rec *DeviceRecord) error
}
