package profiles

import (
	"strconv"
	"strings"
)

// Kind identifies one of the ways imagery can be pulled from a device.
type Kind string

const (
	KindONVIF     Kind = "onvif"
	KindStream    Kind = "stream"
	KindHTTPImage Kind = "http_image"
	KindSnapshot  Kind = "snapshot"
)

// Profile is the per-vendor connection template set. Profiles are pure data;
// expansion never touches the network.
type Profile struct {
	Vendor            string   `yaml:"vendor"`
	DefaultPort       int      `yaml:"default_port"`
	DefaultHTTPPort   int      `yaml:"default_http_port"`
	DefaultONVIFPort  int      `yaml:"default_onvif_port"`
	DefaultUsername   string   `yaml:"default_username"`
	DefaultPassword   string   `yaml:"default_password"`
	StreamTemplates   []string `yaml:"stream_templates"`
	HTTPTemplates     []string `yaml:"http_templates"`
	SnapshotTemplates []string `yaml:"snapshot_templates"`
	ONVIFSupported    bool     `yaml:"onvif_supported"`
	Capabilities      []string `yaml:"capabilities"`
}

// CandidateURLs groups expanded connection candidates by kind, in catalog order.
type CandidateURLs struct {
	Streaming []string `json:"streaming"`
	HTTPImage []string `json:"http_image"`
	Snapshot  []string `json:"snapshot"`
}

// ExpandURLs fills a profile's templates for one device. Placeholders:
// {auth} {ip} {port} {channel} {stream} {username} {password}.
// Total function: an empty template list yields an empty slice, never an error.
func ExpandURLs(p Profile, ip, username, password string, channel, streamIdx int) CandidateURLs {
	auth := ""
	if username != "" {
		auth = username + ":" + password + "@"
	}

	expand := func(templates []string, port int) []string {
		if len(templates) == 0 {
			return nil
		}
		r := strings.NewReplacer(
			"{auth}", auth,
			"{ip}", ip,
			"{port}", strconv.Itoa(port),
			"{channel}", strconv.Itoa(channel),
			"{stream}", strconv.Itoa(streamIdx),
			"{username}", username,
			"{password}", password,
		)
		out := make([]string, 0, len(templates))
		for _, t := range templates {
			out = append(out, r.Replace(t))
		}
		return out
	}

	return CandidateURLs{
		Streaming: expand(p.StreamTemplates, p.DefaultPort),
		HTTPImage: expand(p.HTTPTemplates, p.DefaultHTTPPort),
		Snapshot:  expand(p.SnapshotTemplates, p.DefaultHTTPPort),
	}
}
