package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/metrics"
	"github.com/ohmvision/ov-fleet/internal/profiles"
	"github.com/ohmvision/ov-fleet/internal/scan"
)

const sampleProbeMatch = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope"
                   xmlns:wsdd="http://schemas.xmlsoap.org/ws/2005/04/discovery"
                   xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing">
  <SOAP-ENV:Body>
    <wsdd:ProbeMatches>
      <wsdd:ProbeMatch>
        <wsa:EndpointReference>
          <wsa:Address>urn:uuid:2419d68a-2dd2-21b2-a205-ec3f64ab9a21</wsa:Address>
        </wsa:EndpointReference>
        <wsdd:Types>dn:NetworkVideoTransmitter tds:Device</wsdd:Types>
        <wsdd:Scopes>onvif://www.onvif.org/type/video_encoder onvif://www.onvif.org/name/Front%20Door onvif://www.onvif.org/hardware/DS-2CD2042WD onvif://www.onvif.org/Profile/Streaming onvif://www.onvif.org/manufacturer/HIKVISION</wsdd:Scopes>
        <wsdd:XAddrs>http://192.168.1.64:80/onvif/device_service</wsdd:XAddrs>
        <wsdd:MetadataVersion>1</wsdd:MetadataVersion>
      </wsdd:ProbeMatch>
    </wsdd:ProbeMatches>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func TestParseProbeMatch(t *testing.T) {
	rec, ok := parseProbeMatch([]byte(sampleProbeMatch), "192.168.1.64")
	require.True(t, ok)

	assert.Equal(t, "192.168.1.64", rec.IP)
	assert.True(t, rec.ViaONVIF)
	assert.Equal(t, "http://192.168.1.64:80/onvif/device_service", rec.XAddr)
	assert.Equal(t, "Front Door", rec.Name)
	assert.Equal(t, "DS-2CD2042WD", rec.HardwareID)
	assert.Equal(t, "hikvision", rec.Vendor)
}

func TestParseProbeMatch_Garbage(t *testing.T) {
	_, ok := parseProbeMatch([]byte("not xml at all"), "10.0.0.1")
	assert.False(t, ok)

	_, ok = parseProbeMatch([]byte(`<?xml version="1.0"?><Envelope xmlns="http://www.w3.org/2003/05/soap-envelope"><Body/></Envelope>`), "10.0.0.1")
	assert.False(t, ok, "an envelope without matches is not a device")
}

func TestIPFromXAddrs(t *testing.T) {
	assert.Equal(t, "192.168.1.64", ipFromXAddrs([]string{"http://192.168.1.64/onvif/device_service"}))
	assert.Equal(t, "10.0.0.8", ipFromXAddrs([]string{
		"http://[fe80::1]/onvif/device_service",
		"http://10.0.0.8:8080/onvif/device_service",
	}))
	assert.Empty(t, ipFromXAddrs([]string{"http://camera.local/onvif"}))
}

func TestVendorFromScope(t *testing.T) {
	assert.Equal(t, "dahua", vendorFromScope("onvif://www.onvif.org/name/DAHUA-IPC"))
	assert.Equal(t, "hanwha", vendorFromScope("onvif://www.onvif.org/manufacturer/Samsung%20Techwin"))
	assert.Empty(t, vendorFromScope("onvif://www.onvif.org/type/video_encoder"))
}

func TestBuildProbe(t *testing.T) {
	payload, err := buildProbe("uuid:test-message-id")
	require.NoError(t, err)

	s := string(payload)
	assert.Contains(t, s, "uuid:test-message-id")
	assert.Contains(t, s, "dn:NetworkVideoTransmitter")
	assert.Contains(t, s, nsWSDiscovery+"/Probe")
}

func TestBuildSecurityHeader_KnownVector(t *testing.T) {
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(i)
	}
	sec := BuildSecurityHeader("admin", "secret", nonce, "2026-01-15T09:30:00Z")

	assert.Equal(t, "admin", sec.Username)
	assert.Equal(t, "olwRZ540h6ulDR2no2PUOVq0i3Q=", sec.Digest)
	assert.Equal(t, "AAECAwQFBgcICQoLDA0ODw==", sec.NonceB64)
	assert.Equal(t, "2026-01-15T09:30:00Z", sec.Created)

	// Deterministic, and sensitive to every input.
	again := BuildSecurityHeader("admin", "secret", nonce, "2026-01-15T09:30:00Z")
	assert.Equal(t, sec.Digest, again.Digest)
	other := BuildSecurityHeader("admin", "Secret", nonce, "2026-01-15T09:30:00Z")
	assert.NotEqual(t, sec.Digest, other.Digest)
}

func TestDiscover_SilentNetworkYieldsEmptyList(t *testing.T) {
	p := NewProber(zerolog.Nop())
	// Loopback port that nothing answers on.
	p.probeAddr = "127.0.0.1:39999"

	recs := p.Discover(context.Background(), 150*time.Millisecond)
	assert.Empty(t, recs)
}

type stubScanner struct {
	recs []data.DeviceRecord
	err  error
}

func (s stubScanner) Scan(_ context.Context, _ string, _ scan.Options, _ scan.Progress) ([]data.DeviceRecord, error) {
	return s.recs, s.err
}

type stubProber struct {
	recs []data.DeviceRecord
}

func (s stubProber) Discover(context.Context, time.Duration) []data.DeviceRecord {
	return s.recs
}

func newTestService(scanner NetworkScanner, prober AnnouncementProber, repo data.DeviceRepository) *Service {
	return NewService(zerolog.Nop(), scanner, prober, profiles.NewCatalog(zerolog.Nop()), repo, nil)
}

func TestDiscoverNetwork_MergesByIP(t *testing.T) {
	scanner := stubScanner{recs: []data.DeviceRecord{
		{IP: "192.168.1.64", OpenPorts: []int{80, 554}, MAC: "44:85:44:11:22:33", Vendor: "hikvision", DeviceType: "camera"},
		{IP: "192.168.1.80", OpenPorts: []int{80}, DeviceType: "unknown"},
	}}
	prober := stubProber{recs: []data.DeviceRecord{
		{IP: "192.168.1.64", ViaONVIF: true, Name: "Front Door", HardwareID: "DS-2CD2042WD", XAddr: "http://192.168.1.64/onvif/device_service"},
		{IP: "192.168.1.90", ViaONVIF: true, Name: "Yard", Vendor: "dahua"},
	}}
	repo := data.NewMemoryDeviceRepository()

	svc := newTestService(scanner, prober, repo)
	recs, err := svc.DiscoverNetwork(context.Background(), "192.168.1.0/24", RunOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Sorted by IP: .64, .80, .90.
	merged := recs[0]
	assert.Equal(t, "192.168.1.64", merged.IP)
	assert.True(t, merged.ViaONVIF)
	assert.Equal(t, []int{80, 554}, merged.OpenPorts, "port evidence survives the merge")
	assert.Equal(t, "Front Door", merged.Name)
	assert.Equal(t, "hikvision", merged.Vendor, "hardware-address vendor wins")
	assert.Equal(t, "camera", merged.DeviceType)

	assert.Equal(t, "192.168.1.80", recs[1].IP)
	assert.False(t, recs[1].ViaONVIF)

	announceOnly := recs[2]
	assert.Equal(t, "192.168.1.90", announceOnly.IP)
	assert.Equal(t, "camera", announceOnly.DeviceType)
	assert.Empty(t, announceOnly.OpenPorts)

	assert.Len(t, repo.Discovered(), 3, "all merged records persisted")
}

func TestDiscoverNetwork_ScanErrorPropagates(t *testing.T) {
	svc := newTestService(stubScanner{err: errors.New("bad cidr")}, stubProber{}, nil)
	_, err := svc.DiscoverNetwork(context.Background(), "nope", RunOptions{}, nil)
	assert.Error(t, err)
}

func TestDiscoverNetwork_EnrichesONVIFResponders(t *testing.T) {
	prober := stubProber{recs: []data.DeviceRecord{
		{IP: "192.168.1.64", ViaONVIF: true},
	}}
	svc := newTestService(stubScanner{}, prober, nil)

	var asked []string
	svc.fetchInfo = func(_ context.Context, ip string, port int, username, password string) (*DeviceInfo, error) {
		asked = append(asked, ip)
		assert.Equal(t, 80, port, "no announced XAddr means the default port")
		assert.Equal(t, "admin", username)
		return &DeviceInfo{Manufacturer: "HIKVISION", Model: "DS-2CD2042WD", FirmwareVersion: "V5.5.0"}, nil
	}

	recs, err := svc.DiscoverNetwork(context.Background(), "192.168.1.0/24", RunOptions{Username: "admin", Password: "pw"}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"192.168.1.64"}, asked)
	assert.Equal(t, "DS-2CD2042WD", recs[0].Model)
	assert.Equal(t, "V5.5.0", recs[0].Firmware)
	assert.Equal(t, "hikvision", recs[0].Vendor)
}

func TestDiscoverNetwork_UsesAnnouncedONVIFPort(t *testing.T) {
	prober := stubProber{recs: []data.DeviceRecord{
		{IP: "192.168.1.64", ViaONVIF: true, XAddr: "http://192.168.1.64:8899/onvif/device_service"},
	}}
	svc := newTestService(stubScanner{}, prober, nil)

	var askedPort int
	svc.fetchInfo = func(_ context.Context, _ string, port int, _, _ string) (*DeviceInfo, error) {
		askedPort = port
		return &DeviceInfo{}, nil
	}

	_, err := svc.DiscoverNetwork(context.Background(), "192.168.1.0/24", RunOptions{Username: "admin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8899, askedPort, "device information goes to the announced service port")
}

func TestOnvifPort(t *testing.T) {
	assert.Equal(t, 8899, onvifPort("http://192.168.1.64:8899/onvif/device_service"))
	assert.Equal(t, 80, onvifPort("http://192.168.1.64/onvif/device_service"))
	assert.Equal(t, 80, onvifPort(""))
	assert.Equal(t, 80, onvifPort("::::not a url"))
	assert.Equal(t, 80, onvifPort("http://10.0.0.1:99999/onvif"))
}

type captureScanner struct {
	recs []data.DeviceRecord
	opts scan.Options
}

func (s *captureScanner) Scan(_ context.Context, _ string, opts scan.Options, _ scan.Progress) ([]data.DeviceRecord, error) {
	s.opts = opts
	return s.recs, nil
}

type captureProber struct {
	timeout time.Duration
}

func (p *captureProber) Discover(_ context.Context, timeout time.Duration) []data.DeviceRecord {
	p.timeout = timeout
	return nil
}

func TestDiscoverNetwork_AppliesConfiguredDefaults(t *testing.T) {
	scanner := &captureScanner{}
	prober := &captureProber{}
	svc := newTestService(scanner, prober, nil)
	svc.SetScanDefaults(2*time.Second, scan.Options{Workers: 7, ConnectTimeout: 250 * time.Millisecond})

	_, err := svc.DiscoverNetwork(context.Background(), "192.168.1.0/24", RunOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, scanner.opts.Workers)
	assert.Equal(t, 250*time.Millisecond, scanner.opts.ConnectTimeout)
	assert.Equal(t, 2*time.Second, prober.timeout)

	// A per-run value beats the default, untouched fields keep it.
	_, err = svc.DiscoverNetwork(context.Background(), "192.168.1.0/24",
		RunOptions{Scan: scan.Options{Workers: 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, scanner.opts.Workers)
	assert.Equal(t, 250*time.Millisecond, scanner.opts.ConnectTimeout)
}

func TestDiscoverNetwork_ObservesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	scanner := stubScanner{recs: []data.DeviceRecord{
		{IP: "192.168.1.64"},
		{IP: "192.168.1.80"},
	}}
	svc := NewService(zerolog.Nop(), scanner, stubProber{}, profiles.NewCatalog(zerolog.Nop()), nil, met)

	_, err := svc.DiscoverNetwork(context.Background(), "192.168.1.0/24", RunOptions{}, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, mf := range families {
		switch mf.GetName() {
		case "ovfleet_devices_discovered_total":
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, 2.0, mf.Metric[0].GetCounter().GetValue())
			seen["discovered"] = true
		case "ovfleet_scan_duration_seconds":
			require.Len(t, mf.Metric, 1)
			assert.EqualValues(t, 1, mf.Metric[0].GetHistogram().GetSampleCount())
			seen["duration"] = true
		}
	}
	assert.Len(t, seen, 2, "both scan instruments recorded the run")
}

func TestCandidateURLs_MultiChannel(t *testing.T) {
	svc := newTestService(stubScanner{}, stubProber{}, nil)

	chans := svc.CandidateURLs("hikvision", "10.0.0.5", "admin", "pw", 2)
	require.Len(t, chans, 2)
	assert.Equal(t, 1, chans[0].Channel)
	assert.Equal(t, 2, chans[1].Channel)
	assert.Contains(t, chans[0].URLs.Streaming[0], "/Streaming/Channels/101")
	assert.Contains(t, chans[1].URLs.Streaming[0], "/Streaming/Channels/201")

	// Zero clamps to one channel.
	assert.Len(t, svc.CandidateURLs("generic", "10.0.0.5", "", "", 0), 1)
}
