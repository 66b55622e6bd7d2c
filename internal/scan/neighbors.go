package scan

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
)

// NeighborResolver maps an IP to the hardware address the OS has cached for
// it. Resolution is best-effort; a miss is normal for hosts that were never
// talked to at layer 2.
type NeighborResolver interface {
	HardwareAddr(ip string) (string, bool)
}

// ProcNeighborResolver reads the kernel ARP table. Zero value uses the
// standard path.
type ProcNeighborResolver struct {
	Path string
}

func (r *ProcNeighborResolver) HardwareAddr(ip string) (string, bool) {
	path := r.Path
	if path == "" {
		path = "/proc/net/arp"
	}
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// IP address, HW type, Flags, HW address, Mask, Device
		if len(fields) < 4 || fields[0] != ip {
			continue
		}
		mac := fields[3]
		if mac == "" || mac == "00:00:00:00:00:00" {
			return "", false
		}
		return strings.ToUpper(mac), true
	}
	return "", false
}

// ExecNeighborResolver shells out to `ip neigh`, for systems without
// /proc/net/arp.
type ExecNeighborResolver struct{}

func (ExecNeighborResolver) HardwareAddr(ip string) (string, bool) {
	out, err := exec.Command("ip", "neigh", "show", ip).Output()
	if err != nil {
		return "", false
	}
	fields := strings.Fields(string(out))
	for i, f := range fields {
		if f == "lladdr" && i+1 < len(fields) {
			return strings.ToUpper(fields[i+1]), true
		}
	}
	return "", false
}

// ChainNeighborResolver tries each resolver in order.
type ChainNeighborResolver []NeighborResolver

func (c ChainNeighborResolver) HardwareAddr(ip string) (string, bool) {
	for _, r := range c {
		if mac, ok := r.HardwareAddr(ip); ok {
			return mac, true
		}
	}
	return "", false
}

// DefaultNeighborResolver is the ARP table with an ip-neigh fallback.
func DefaultNeighborResolver() NeighborResolver {
	return ChainNeighborResolver{&ProcNeighborResolver{}, ExecNeighborResolver{}}
}
