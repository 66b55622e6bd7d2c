package data

import (
	"time"

	"github.com/ohmvision/ov-fleet/internal/profiles"
)

// HealthTier is the coarse latency-derived health bucket.
type HealthTier string

const (
	TierUnknown   HealthTier = "unknown"
	TierExcellent HealthTier = "excellent"
	TierGood      HealthTier = "good"
	TierFair      HealthTier = "fair"
	TierPoor      HealthTier = "poor"
	TierOffline   HealthTier = "offline"
)

// DeviceRecord is a discovered network endpoint with whatever identity
// evidence the scan or discovery probe produced. Records live for the duration
// of a scan and are merged by IP address.
type DeviceRecord struct {
	IP         string   `json:"ip"`
	Hostname   string   `json:"hostname,omitempty"`
	MAC        string   `json:"mac,omitempty"`
	Vendor     string   `json:"vendor,omitempty"`
	Model      string   `json:"model,omitempty"`
	Firmware   string   `json:"firmware,omitempty"`
	Name       string   `json:"name,omitempty"`
	HardwareID string   `json:"hardware_id,omitempty"`
	OpenPorts  []int    `json:"open_ports,omitempty"`
	DeviceType string   `json:"device_type,omitempty"` // camera, nvr, unknown
	ViaONVIF   bool     `json:"via_onvif"`
	XAddr      string   `json:"xaddr,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	StreamURLs []string `json:"stream_urls,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
}

// DeviceTarget is what the health sweep needs to verify one device: the
// currently-accepted URL, its connection kind, and the credentials to retry
// auto-detection with.
type DeviceTarget struct {
	ID         string
	Name       string
	IP         string
	URL        string
	Kind       profiles.Kind
	Username   string
	Password   string
	VendorHint string
}

// CameraHealthStatus is the per-device row of the health table. Owned by the
// health monitor; external readers always get copies.
type CameraHealthStatus struct {
	CameraID       string     `json:"camera_id"`
	Online         bool       `json:"online"`
	Health         HealthTier `json:"health"`
	LastCheck      time.Time  `json:"last_check"`
	ResponseTimeMS int64      `json:"response_time_ms"`
	UptimePercent  float64    `json:"uptime_percent"`
	FailedAttempts int        `json:"failed_attempts"`
	LastError      string     `json:"last_error,omitempty"`
	NextCheckIn    int        `json:"next_check_in_seconds"`
}
