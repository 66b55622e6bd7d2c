package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmvision/ov-fleet/internal/profiles"
)

func TestDeviceModel_ListActiveDevices(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "ip_address", "stream_url", "connection_kind", "username", "password", "vendor_hint"}).
		AddRow("cam-1", "Lobby", "192.168.1.64", "rtsp://192.168.1.64:554/stream1", "stream", "admin", "pw", "hikvision").
		AddRow("cam-2", nil, "192.168.1.65", nil, "snapshot", nil, nil, nil)

	mock.ExpectQuery("SELECT id, name, ip_address, stream_url").WillReturnRows(rows)

	m := &DeviceModel{DB: db}
	targets, err := m.ListActiveDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "cam-1", targets[0].ID)
	assert.Equal(t, profiles.KindStream, targets[0].Kind)
	assert.Equal(t, "hikvision", targets[0].VendorHint)

	// NULL columns come back as empty strings, not errors.
	assert.Equal(t, "", targets[1].URL)
	assert.Equal(t, "", targets[1].Username)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceModel_UpdateDeviceConnection_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE devices").
		WithArgs("ghost", "rtsp://x/", "stream").
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := &DeviceModel{DB: db}
	err = m.UpdateDeviceConnection(context.Background(), "ghost", "rtsp://x/", "stream")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceModel_UpdateDeviceStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seen := time.Now()
	mock.ExpectExec("UPDATE devices").
		WithArgs("cam-1", true, seen, "excellent", 0, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &DeviceModel{DB: db}
	err = m.UpdateDeviceStatus(context.Background(), "cam-1", true, seen, TierExcellent, 0, "")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceModel_UpsertDiscovered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO discovered_devices").
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := &DeviceModel{DB: db}
	err = m.UpsertDiscovered(context.Background(), &DeviceRecord{
		IP:        "192.168.1.70",
		Vendor:    "dahua",
		OpenPorts: []int{80, 554},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
