// Package scan sweeps a subnet for devices that look like cameras. The scan
// is TCP-only: a quick gate on the common camera ports decides whether a host
// is worth the full port list, and identity evidence (hostname, hardware
// address, vendor) is collected best-effort.
package scan

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/profiles"
)

const (
	defaultWorkers        = 128
	defaultConnectTimeout = 400 * time.Millisecond
	maxHostsPerScan       = 4096
	dnsCacheSize          = 1024
	reverseDNSTimeout     = 500 * time.Millisecond
)

// Ports a camera plausibly listens on. The quick gate ports are tried first;
// hosts with none of them open are skipped without touching the full list.
var (
	cameraPorts = []int{80, 443, 554, 8080, 8554, 8000, 8899, 37777, 34567}
	quickPorts  = []int{554, 80, 8080}
)

type Options struct {
	Workers        int
	ConnectTimeout time.Duration
	Ports          []int
	QuickPorts     []int
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if len(o.Ports) == 0 {
		o.Ports = cameraPorts
	}
	if len(o.QuickPorts) == 0 {
		o.QuickPorts = quickPorts
	}
}

// Progress is invoked after each host finishes, from scanner goroutines.
type Progress func(scanned, total int, currentIP string)

type Scanner struct {
	log       zerolog.Logger
	catalog   *profiles.Catalog
	neighbors NeighborResolver
	dnsCache  *lru.Cache[string, string]

	dialTimeout func(network, addr string, timeout time.Duration) (net.Conn, error)
	lookupAddr  func(ctx context.Context, ip string) ([]string, error)
}

func NewScanner(log zerolog.Logger, catalog *profiles.Catalog, neighbors NeighborResolver) *Scanner {
	cache, _ := lru.New[string, string](dnsCacheSize)
	var resolver net.Resolver
	return &Scanner{
		log:         log.With().Str("component", "scan").Logger(),
		catalog:     catalog,
		neighbors:   neighbors,
		dnsCache:    cache,
		dialTimeout: net.DialTimeout,
		lookupAddr:  resolver.LookupAddr,
	}
}

// Scan walks every host in the CIDR with a bounded worker pool. Per-host
// failures are silent; the only error a caller sees is an invalid CIDR.
func (s *Scanner) Scan(ctx context.Context, cidr string, opts Options, onProgress Progress) ([]data.DeviceRecord, error) {
	opts.applyDefaults()

	hosts, err := hostsInCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cidr, err)
	}
	total := len(hosts)
	s.log.Info().Str("cidr", cidr).Int("hosts", total).Int("workers", opts.Workers).Msg("scan started")

	jobs := make(chan string)
	results := make(chan data.DeviceRecord, opts.Workers)
	var scanned atomic.Int64

	var wg sync.WaitGroup
	workers := opts.Workers
	if workers > total {
		workers = total
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range jobs {
				if rec, ok := s.scanHost(ctx, ip, opts); ok {
					results <- rec
				}
				n := int(scanned.Add(1))
				if onProgress != nil {
					onProgress(n, total, ip)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ip := range hosts {
			select {
			case jobs <- ip:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var records []data.DeviceRecord
	for rec := range results {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return ipLess(records[i].IP, records[j].IP) })

	s.log.Info().Int("found", len(records)).Msg("scan finished")
	return records, nil
}

// scanHost runs the quick gate and, on a hit, the full port list plus the
// best-effort identity lookups.
func (s *Scanner) scanHost(ctx context.Context, ip string, opts Options) (data.DeviceRecord, bool) {
	if ctx.Err() != nil {
		return data.DeviceRecord{}, false
	}

	gateOpen := false
	for _, p := range opts.QuickPorts {
		if s.portOpen(ip, p, opts.ConnectTimeout) {
			gateOpen = true
			break
		}
	}
	if !gateOpen {
		return data.DeviceRecord{}, false
	}

	var open []int
	for _, p := range opts.Ports {
		if s.portOpen(ip, p, opts.ConnectTimeout) {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return data.DeviceRecord{}, false
	}

	rec := data.DeviceRecord{
		IP:         ip,
		OpenPorts:  open,
		DeviceType: classifyPorts(open),
	}
	rec.Hostname = s.reverseDNS(ctx, ip)
	if s.neighbors != nil {
		if mac, ok := s.neighbors.HardwareAddr(ip); ok {
			rec.MAC = mac
			if vendor, ok := s.catalog.DetectVendorFromMAC(mac); ok {
				rec.Vendor = vendor
			}
		}
	}
	return rec, true
}

func (s *Scanner) portOpen(ip string, port int, timeout time.Duration) bool {
	conn, err := s.dialTimeout("tcp", net.JoinHostPort(ip, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Scanner) reverseDNS(ctx context.Context, ip string) string {
	if name, ok := s.dnsCache.Get(ip); ok {
		return name
	}
	ctx, cancel := context.WithTimeout(ctx, reverseDNSTimeout)
	defer cancel()
	names, err := s.lookupAddr(ctx, ip)
	name := ""
	if err == nil && len(names) > 0 {
		name = names[0]
	}
	s.dnsCache.Add(ip, name)
	return name
}

// classifyPorts guesses a device type from its open ports. RTSP or one of the
// vendor media ports means camera; a lone web port stays unknown.
func classifyPorts(open []int) string {
	for _, p := range open {
		switch p {
		case 554, 8554, 37777, 34567, 8899:
			return "camera"
		}
	}
	return "unknown"
}

// hostsInCIDR expands a CIDR into host addresses, excluding the network and
// broadcast addresses and capped at maxHostsPerScan.
func hostsInCIDR(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("only IPv4 ranges are scannable")
	}

	var hosts []string
	for addr := ip4.Mask(ipnet.Mask); ipnet.Contains(addr); incIP(addr) {
		hosts = append(hosts, addr.String())
		if len(hosts) > maxHostsPerScan+2 {
			return nil, fmt.Errorf("range too large (max %d hosts)", maxHostsPerScan)
		}
	}
	if len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

func ipLess(a, b string) bool {
	pa, pb := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if pa == nil || pb == nil {
		return a < b
	}
	for i := 0; i < 4; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

// LocalNetwork derives the /24 this host sits on using a throwaway UDP dial.
// No packet is sent.
func LocalNetwork() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("local network detect: %w", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", fmt.Errorf("local network detect: no IPv4 address")
	}
	ip := addr.IP.To4()
	return fmt.Sprintf("%d.%d.%d.0/24", ip[0], ip[1], ip[2]), nil
}
