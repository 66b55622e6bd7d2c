package discovery

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/metrics"
	"github.com/ohmvision/ov-fleet/internal/profiles"
	"github.com/ohmvision/ov-fleet/internal/scan"
)

// NetworkScanner is the port-sweep side of a discovery run.
type NetworkScanner interface {
	Scan(ctx context.Context, cidr string, opts scan.Options, onProgress scan.Progress) ([]data.DeviceRecord, error)
}

// AnnouncementProber is the WS-Discovery side.
type AnnouncementProber interface {
	Discover(ctx context.Context, timeout time.Duration) []data.DeviceRecord
}

// Service runs both discovery mechanisms and merges their evidence per IP.
type Service struct {
	log     zerolog.Logger
	scanner NetworkScanner
	prober  AnnouncementProber
	catalog *profiles.Catalog
	repo    data.DeviceRepository
	met     *metrics.Metrics

	probeTimeout time.Duration
	scanDefaults scan.Options

	// device info fetch, replaceable in tests
	fetchInfo func(ctx context.Context, ip string, port int, username, password string) (*DeviceInfo, error)
}

func NewService(log zerolog.Logger, scanner NetworkScanner, prober AnnouncementProber, catalog *profiles.Catalog, repo data.DeviceRepository, met *metrics.Metrics) *Service {
	return &Service{
		log:          log.With().Str("component", "discovery").Logger(),
		scanner:      scanner,
		prober:       prober,
		catalog:      catalog,
		repo:         repo,
		met:          met,
		probeTimeout: 4 * time.Second,
		fetchInfo: func(ctx context.Context, ip string, port int, username, password string) (*DeviceInfo, error) {
			return NewClient(ip, port, username, password).GetDeviceInformation(ctx)
		},
	}
}

// SetScanDefaults installs the configured probe timeout and scan options
// applied when a run does not carry its own.
func (s *Service) SetScanDefaults(probeTimeout time.Duration, defaults scan.Options) {
	if probeTimeout > 0 {
		s.probeTimeout = probeTimeout
	}
	s.scanDefaults = defaults
}

// RunOptions configures one discovery run. Credentials, when set, let the run
// interrogate ONVIF responders for model and firmware.
type RunOptions struct {
	Scan     scan.Options
	Username string
	Password string
}

// DiscoverNetwork port-scans the CIDR and probes for announcements in
// parallel, then merges by IP. A record found both ways carries the scan's
// port evidence plus the announcement's identity. Results are persisted
// best-effort when a repository is attached.
func (s *Service) DiscoverNetwork(ctx context.Context, cidr string, opts RunOptions, onProgress scan.Progress) ([]data.DeviceRecord, error) {
	start := time.Now()

	probeCh := make(chan []data.DeviceRecord, 1)
	go func() {
		probeCh <- s.prober.Discover(ctx, s.probeTimeout)
	}()

	scanned, err := s.scanner.Scan(ctx, cidr, s.scanOptions(opts.Scan), onProgress)
	if err != nil {
		return nil, err
	}
	announced := <-probeCh

	merged := mergeRecords(scanned, announced)

	if opts.Username != "" {
		s.enrich(ctx, merged, opts.Username, opts.Password)
	}

	out := make([]data.DeviceRecord, 0, len(merged))
	for _, rec := range merged {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })

	if s.repo != nil {
		for i := range out {
			if err := s.repo.UpsertDiscovered(ctx, &out[i]); err != nil {
				s.log.Warn().Err(err).Str("ip", out[i].IP).Msg("discovered device not persisted")
			}
		}
	}

	if s.met != nil {
		s.met.ScanDuration.Observe(time.Since(start).Seconds())
		s.met.DevicesDiscovered.Add(float64(len(out)))
	}
	s.log.Info().Int("scanned", len(scanned)).Int("announced", len(announced)).
		Int("merged", len(out)).Msg("discovery run finished")
	return out, nil
}

// scanOptions fills unset per-run fields from the configured defaults.
func (s *Service) scanOptions(o scan.Options) scan.Options {
	if o.Workers == 0 {
		o.Workers = s.scanDefaults.Workers
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = s.scanDefaults.ConnectTimeout
	}
	if o.Ports == nil {
		o.Ports = s.scanDefaults.Ports
	}
	if o.QuickPorts == nil {
		o.QuickPorts = s.scanDefaults.QuickPorts
	}
	return o
}

func mergeRecords(scanned, announced []data.DeviceRecord) map[string]*data.DeviceRecord {
	merged := make(map[string]*data.DeviceRecord, len(scanned)+len(announced))
	for i := range scanned {
		rec := scanned[i]
		merged[rec.IP] = &rec
	}
	for i := range announced {
		a := announced[i]
		if a.IP == "" {
			continue
		}
		base, ok := merged[a.IP]
		if !ok {
			rec := a
			rec.DeviceType = "camera"
			merged[a.IP] = &rec
			continue
		}
		base.ViaONVIF = true
		base.XAddr = a.XAddr
		base.Scopes = a.Scopes
		base.DeviceType = "camera"
		if a.Name != "" {
			base.Name = a.Name
		}
		if a.HardwareID != "" {
			base.HardwareID = a.HardwareID
		}
		if a.Model != "" && base.Model == "" {
			base.Model = a.Model
		}
		// Hardware-address vendor detection beats scope guessing.
		if base.Vendor == "" {
			base.Vendor = a.Vendor
		}
	}
	return merged
}

// onvifPort extracts the device service port from an announced XAddr.
// Announcements without a usable port fall back to 80.
func onvifPort(xaddr string) int {
	u, err := url.Parse(xaddr)
	if err != nil || u.Port() == "" {
		return 80
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil || p < 1 || p > 65535 {
		return 80
	}
	return p
}

// enrich interrogates ONVIF responders for authoritative identity.
func (s *Service) enrich(ctx context.Context, merged map[string]*data.DeviceRecord, username, password string) {
	for ip, rec := range merged {
		if !rec.ViaONVIF {
			continue
		}
		info, err := s.fetchInfo(ctx, ip, onvifPort(rec.XAddr), username, password)
		if err != nil {
			s.log.Debug().Err(err).Str("ip", ip).Msg("device information unavailable")
			continue
		}
		if info.Model != "" {
			rec.Model = info.Model
		}
		if info.FirmwareVersion != "" {
			rec.Firmware = info.FirmwareVersion
		}
		if info.HardwareID != "" {
			rec.HardwareID = info.HardwareID
		}
		if rec.Vendor == "" && info.Manufacturer != "" {
			rec.Vendor = vendorFromScope(info.Manufacturer)
		}
	}
}

// ChannelCandidates is the expanded URL set for one channel of a device.
// Multi-channel recorders expose the same templates per channel index.
type ChannelCandidates struct {
	Channel int                    `json:"channel"`
	URLs    profiles.CandidateURLs `json:"urls"`
}

// CandidateURLs expands the vendor's templates for each channel. Channel
// numbering starts at 1; channels is clamped to at least one.
func (s *Service) CandidateURLs(vendorID, ip, username, password string, channels int) []ChannelCandidates {
	if channels < 1 {
		channels = 1
	}
	out := make([]ChannelCandidates, 0, channels)
	for ch := 1; ch <= channels; ch++ {
		out = append(out, ChannelCandidates{
			Channel: ch,
			URLs:    s.catalog.Expand(vendorID, ip, username, password, ch, 0),
		})
	}
	return out
}
