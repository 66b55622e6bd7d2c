package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/ohmvision/ov-fleet/internal/profiles"
)

// DeviceModel is the Postgres-backed DeviceRepository.
type DeviceModel struct {
	DB *sql.DB
}

var _ DeviceRepository = (*DeviceModel)(nil)

func (m *DeviceModel) ListActiveDevices(ctx context.Context) ([]DeviceTarget, error) {
	query := `
		SELECT id, name, ip_address, stream_url, connection_kind, username, password, vendor_hint
		FROM devices
		WHERE is_active = TRUE
		ORDER BY id
	`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []DeviceTarget
	for rows.Next() {
		var t DeviceTarget
		var kind string
		var name, url, user, pass, hint sql.NullString
		if err := rows.Scan(&t.ID, &name, &t.IP, &url, &kind, &user, &pass, &hint); err != nil {
			return nil, err
		}
		t.Name = name.String
		t.URL = url.String
		t.Kind = profiles.Kind(kind)
		t.Username = user.String
		t.Password = pass.String
		t.VendorHint = hint.String
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (m *DeviceModel) GetDevice(ctx context.Context, id string) (*DeviceTarget, error) {
	query := `
		SELECT id, name, ip_address, stream_url, connection_kind, username, password, vendor_hint
		FROM devices
		WHERE id = $1
	`
	var t DeviceTarget
	var kind string
	var name, url, user, pass, hint sql.NullString
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&t.ID, &name, &t.IP, &url, &kind, &user, &pass, &hint)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Name = name.String
	t.URL = url.String
	t.Kind = profiles.Kind(kind)
	t.Username = user.String
	t.Password = pass.String
	t.VendorHint = hint.String
	return &t, nil
}

func (m *DeviceModel) UpdateDeviceConnection(ctx context.Context, id, url string, kind string) error {
	query := `
		UPDATE devices
		SET stream_url = $2, connection_kind = $3, updated_at = NOW()
		WHERE id = $1
	`
	res, err := m.DB.ExecContext(ctx, query, id, url, kind)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (m *DeviceModel) UpdateDeviceStatus(ctx context.Context, id string, online bool, lastSeen time.Time, health HealthTier, failureCount int, lastError string) error {
	query := `
		UPDATE devices
		SET is_online = $2, last_seen = $3, connection_health = $4,
		    failed_attempts = $5, last_error = $6, updated_at = NOW()
		WHERE id = $1
	`
	_, err := m.DB.ExecContext(ctx, query, id, online, lastSeen, string(health), failureCount, lastError)
	return err
}

func (m *DeviceModel) UpsertDiscovered(ctx context.Context, rec *DeviceRecord) error {
	query := `
		INSERT INTO discovered_devices (ip_address, hostname, mac, vendor, model, firmware, name, hardware_id, open_ports, device_type, via_onvif, xaddr, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (ip_address) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			mac = EXCLUDED.mac,
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			firmware = EXCLUDED.firmware,
			name = EXCLUDED.name,
			hardware_id = EXCLUDED.hardware_id,
			open_ports = EXCLUDED.open_ports,
			device_type = EXCLUDED.device_type,
			via_onvif = EXCLUDED.via_onvif,
			xaddr = EXCLUDED.xaddr,
			last_seen = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query,
		rec.IP, rec.Hostname, rec.MAC, rec.Vendor, rec.Model, rec.Firmware,
		rec.Name, rec.HardwareID, pq.Array(rec.OpenPorts), rec.DeviceType, rec.ViaONVIF, rec.XAddr,
	)
	return err
}
