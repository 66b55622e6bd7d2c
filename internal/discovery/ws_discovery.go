// Package discovery finds cameras that announce themselves: WS-Discovery
// multicast probing plus the SOAP device-information call for devices that
// answered.
package discovery

import (
	"context"
	"encoding/xml"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/data"
)

const (
	multicastAddr = "239.255.255.250:3702"
	maxPacketSize = 8192
)

const (
	nsSOAPEnvelope = "http://www.w3.org/2003/05/soap-envelope"
	nsWSDiscovery  = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	nsWSAddressing = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	nsONVIFNetwork = "http://www.onvif.org/ver10/network/wsdl"
)

// probeEnvelope is the ProbeMatches response shape. Cameras vary in prefix
// choice; namespace-qualified unmarshalling absorbs that.
type probeEnvelope struct {
	XMLName xml.Name `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
	Body    struct {
		ProbeMatches struct {
			ProbeMatch []struct {
				EndpointReference struct {
					Address string `xml:"Address"`
				}
				Types  string `xml:"Types"`
				Scopes string `xml:"Scopes"`
				XAddrs string `xml:"XAddrs"`
			} `xml:"ProbeMatch"`
		} `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery ProbeMatches"`
	}
}

// Prober sends WS-Discovery probes and collects unicast replies.
type Prober struct {
	log       zerolog.Logger
	probeAddr string
}

func NewProber(log zerolog.Logger) *Prober {
	return &Prober{
		log:       log.With().Str("component", "discovery").Logger(),
		probeAddr: multicastAddr,
	}
}

// Discover multicasts a probe and gathers replies until the timeout passes.
// Silence and send failures both yield an empty list: an empty network is not
// an error.
func (p *Prober) Discover(ctx context.Context, timeout time.Duration) []data.DeviceRecord {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		p.log.Warn().Err(err).Msg("ws-discovery socket unavailable")
		return nil
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", p.probeAddr)
	if err != nil {
		p.log.Warn().Err(err).Str("addr", p.probeAddr).Msg("bad probe address")
		return nil
	}

	msgID := "uuid:" + uuid.New().String()
	probe, err := buildProbe(msgID)
	if err != nil {
		p.log.Warn().Err(err).Msg("probe build failed")
		return nil
	}
	if _, err := conn.WriteToUDP(probe, dst); err != nil {
		p.log.Warn().Err(err).Msg("probe send failed")
		return nil
	}

	// One record per responding source address. A chatty device that answers
	// twice is still one device.
	seen := make(map[string]data.DeviceRecord)
	buf := make([]byte, maxPacketSize)
	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		conn.SetReadDeadline(time.Now().Add(remaining))

		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		if n == 0 {
			continue
		}
		rec, ok := parseProbeMatch(buf[:n], src.IP.String())
		if !ok {
			continue
		}
		seen[src.IP.String()] = rec
	}

	out := make([]data.DeviceRecord, 0, len(seen))
	for _, rec := range seen {
		out = append(out, rec)
	}
	p.log.Info().Int("devices", len(out)).Msg("ws-discovery finished")
	return out
}

// buildProbe constructs the WS-Discovery Probe for network video transmitters.
func buildProbe(messageID string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("e:Envelope")
	env.CreateAttr("xmlns:e", nsSOAPEnvelope)
	env.CreateAttr("xmlns:w", nsWSAddressing)
	env.CreateAttr("xmlns:d", nsWSDiscovery)
	env.CreateAttr("xmlns:dn", nsONVIFNetwork)

	header := env.CreateElement("e:Header")
	header.CreateElement("w:MessageID").SetText(messageID)
	to := header.CreateElement("w:To")
	to.CreateAttr("e:mustUnderstand", "true")
	to.SetText("urn:schemas-xmlsoap-org:ws:2005:04:discovery")
	action := header.CreateElement("w:Action")
	action.CreateAttr("e:mustUnderstand", "true")
	action.SetText(nsWSDiscovery + "/Probe")

	body := env.CreateElement("e:Body")
	probe := body.CreateElement("d:Probe")
	probe.CreateElement("d:Types").SetText("dn:NetworkVideoTransmitter")

	return doc.WriteToBytes()
}

// parseProbeMatch turns one ProbeMatches reply into a device record. The
// source IP is authoritative; XAddrs only fills it in when the reply arrived
// through a relay.
func parseProbeMatch(payload []byte, srcIP string) (data.DeviceRecord, bool) {
	var env probeEnvelope
	if err := xml.Unmarshal(payload, &env); err != nil {
		return data.DeviceRecord{}, false
	}
	matches := env.Body.ProbeMatches.ProbeMatch
	if len(matches) == 0 {
		return data.DeviceRecord{}, false
	}
	m := matches[0]

	xaddrs := strings.Fields(m.XAddrs)
	scopes := strings.Fields(m.Scopes)

	rec := data.DeviceRecord{
		IP:       srcIP,
		ViaONVIF: true,
		Scopes:   scopes,
	}
	if len(xaddrs) > 0 {
		rec.XAddr = xaddrs[0]
	}
	if rec.IP == "" {
		rec.IP = ipFromXAddrs(xaddrs)
	}
	applyScopes(&rec, scopes)
	return rec, true
}

func ipFromXAddrs(xaddrs []string) string {
	for _, x := range xaddrs {
		u, err := url.Parse(x)
		if err != nil {
			continue
		}
		host := u.Hostname()
		if ip := net.ParseIP(host); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
			return host
		}
	}
	return ""
}

// applyScopes mines the onvif:// scope URIs for identity. Scopes follow the
// /key/value convention with URL escaping; vendor is matched by substring
// against the catalog names since cameras rarely use a dedicated key.
func applyScopes(rec *data.DeviceRecord, scopes []string) {
	for _, sc := range scopes {
		trimmed := strings.TrimPrefix(sc, "onvif://www.onvif.org/")
		key, rawVal, ok := strings.Cut(trimmed, "/")
		if !ok {
			continue
		}
		val, err := url.PathUnescape(rawVal)
		if err != nil {
			val = rawVal
		}
		switch strings.ToLower(key) {
		case "name":
			rec.Name = val
		case "hardware":
			rec.HardwareID = val
			if rec.Model == "" {
				rec.Model = val
			}
		}
		if rec.Vendor == "" {
			if v := vendorFromScope(sc); v != "" {
				rec.Vendor = v
			}
		}
	}
}

var scopeVendors = []string{
	"hikvision", "dahua", "axis", "foscam", "vivotek", "bosch",
	"uniview", "hanwha", "samsung", "reolink", "tplink", "xiaomi",
}

func vendorFromScope(scope string) string {
	lower := strings.ToLower(scope)
	for _, v := range scopeVendors {
		if strings.Contains(lower, v) {
			if v == "samsung" {
				return "hanwha"
			}
			return v
		}
	}
	return ""
}
