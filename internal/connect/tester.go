// Package connect verifies that a camera endpoint actually serves media. It
// speaks just enough RTSP and HTTP to tell a live endpoint from a dead port,
// and classifies response latency into health tiers.
package connect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/profiles"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrUnreachable  = errors.New("endpoint unreachable")
)

// Result is the outcome of probing one candidate URL.
type Result struct {
	URL          string        `json:"url"`
	Kind         profiles.Kind `json:"kind"`
	OK           bool          `json:"ok"`
	AuthRequired bool          `json:"auth_required"`
	ResponseTime time.Duration `json:"response_time"`
	Resolution   string        `json:"resolution,omitempty"`
	Codec        string        `json:"codec,omitempty"`
	Detail       string        `json:"detail,omitempty"`
}

// HealthResult is what a periodic check reports for one device.
type HealthResult struct {
	Online       bool
	ResponseTime time.Duration
	Tier         data.HealthTier
	Detail       string
}

// TierFor buckets a response latency. Offline devices never reach this.
func TierFor(d time.Duration) data.HealthTier {
	ms := d.Milliseconds()
	switch {
	case ms < 500:
		return data.TierExcellent
	case ms < 1500:
		return data.TierGood
	case ms < 3000:
		return data.TierFair
	default:
		return data.TierPoor
	}
}

type Tester struct {
	log     zerolog.Logger
	catalog *profiles.Catalog
	timeout time.Duration
	pause   time.Duration
	client  *http.Client

	// probe indirection for the auto-detect tests
	streamFn    func(ctx context.Context, rawURL string) Result
	httpImageFn func(ctx context.Context, rawURL string) Result
	snapshotFn  func(ctx context.Context, rawURL string) Result
}

func NewTester(log zerolog.Logger, catalog *profiles.Catalog, timeout time.Duration) *Tester {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &Tester{
		log:     log.With().Str("component", "connect").Logger(),
		catalog: catalog,
		timeout: timeout,
		pause:   500 * time.Millisecond,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
	t.streamFn = t.TestStreamURL
	t.httpImageFn = t.TestHTTPImageURL
	t.snapshotFn = t.TestSnapshotURL
	return t
}

// TestStreamURL dials the RTSP endpoint, sends OPTIONS and then DESCRIBE, and
// reads the SDP for resolution and codec. A 401 on either request marks the
// candidate as auth-required rather than dead.
func (t *Tester) TestStreamURL(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL, Kind: profiles.KindStream}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		res.Detail = "invalid url"
		return res
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":554"
	}

	start := time.Now()
	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		res.Detail = connectErrDetail(err)
		return res
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(t.timeout))

	br := bufio.NewReader(conn)

	status, _, err := rtspExchange(conn, br, "OPTIONS", rawURL, 1, "")
	if err != nil {
		res.Detail = "options: " + err.Error()
		return res
	}
	res.ResponseTime = time.Since(start)
	switch {
	case status == 401:
		res.AuthRequired = true
		res.Detail = "401 unauthorized"
		return res
	case status != 200:
		res.Detail = fmt.Sprintf("options status %d", status)
		return res
	}

	status, body, err := rtspExchange(conn, br, "DESCRIBE", rawURL, 2, "Accept: application/sdp\r\n")
	if err != nil {
		// OPTIONS succeeded, so the endpoint speaks RTSP. Treat a broken
		// DESCRIBE as a usable stream with no media details.
		res.OK = true
		res.Detail = "describe: " + err.Error()
		return res
	}
	switch status {
	case 200:
		res.OK = true
		res.Resolution, res.Codec = parseSDP(body)
	case 401:
		res.AuthRequired = true
		res.Detail = "401 unauthorized"
	case 404:
		res.Detail = "404 not found"
	default:
		res.Detail = fmt.Sprintf("describe status %d", status)
	}
	return res
}

// rtspExchange writes one request and reads the full response, including a
// Content-Length body when present.
func rtspExchange(w io.Writer, br *bufio.Reader, method, rawURL string, cseq int, extraHeaders string) (status int, body string, err error) {
	req := fmt.Sprintf("%s %s RTSP/1.0\r\nCSeq: %d\r\nUser-Agent: ov-fleet\r\n%s\r\n", method, rawURL, cseq, extraHeaders)
	if _, err = w.Write([]byte(req)); err != nil {
		return 0, "", err
	}

	line, err := br.ReadString('\n')
	if err != nil {
		return 0, "", err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "RTSP/") {
		return 0, "", fmt.Errorf("not an rtsp response: %q", strings.TrimSpace(line))
	}
	status, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", fmt.Errorf("bad status line: %q", strings.TrimSpace(line))
	}

	contentLen := 0
	for {
		h, err := br.ReadString('\n')
		if err != nil {
			return status, "", err
		}
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		if k, v, ok := strings.Cut(h, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
			contentLen, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	if contentLen > 0 {
		buf := make([]byte, contentLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return status, "", err
		}
		body = string(buf)
	}
	return status, body, nil
}

// parseSDP pulls resolution and video codec out of an SDP document. Cameras
// report dimensions in several vendor-specific attributes.
func parseSDP(sdp string) (resolution, codec string) {
	for _, line := range strings.Split(sdp, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "a=rtpmap:") && codec == "":
			// a=rtpmap:96 H264/90000
			if _, v, ok := strings.Cut(line, " "); ok {
				codec, _, _ = strings.Cut(v, "/")
			}
		case strings.HasPrefix(line, "a=framesize:"):
			// a=framesize:96 1920-1080
			if _, v, ok := strings.Cut(line, " "); ok {
				resolution = strings.Replace(v, "-", "x", 1)
			}
		case strings.HasPrefix(line, "a=x-dimensions:"):
			// a=x-dimensions:1920,1080
			v := strings.TrimPrefix(line, "a=x-dimensions:")
			if w, h, ok := strings.Cut(v, ","); ok {
				resolution = strings.TrimSpace(w) + "x" + strings.TrimSpace(h)
			}
		}
	}
	return resolution, codec
}

// TestHTTPImageURL checks for a motion-JPEG endpoint: a multipart/x-mixed-replace
// content type, or JPEG magic inside the first bytes of the body.
func (t *Tester) TestHTTPImageURL(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL, Kind: profiles.KindHTTPImage}

	start := time.Now()
	resp, err := t.httpGet(ctx, rawURL)
	if err != nil {
		res.Detail = connectErrDetail(err)
		return res
	}
	defer resp.Body.Close()
	res.ResponseTime = time.Since(start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		res.AuthRequired = true
		res.Detail = "401 unauthorized"
		return res
	case resp.StatusCode != http.StatusOK:
		res.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		return res
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		res.OK = true
		return res
	}

	prefix := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, prefix)
	prefix = prefix[:n]
	if containsJPEGStart(prefix) {
		res.OK = true
		return res
	}
	res.Detail = "no mjpeg markers in response"
	return res
}

func containsJPEGStart(b []byte) bool {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			return true
		}
	}
	return false
}

// TestSnapshotURL fetches a still image and decodes its header for dimensions.
// A working snapshot proves the device is alive but callers treat this kind as
// a fallback, not a full stream.
func (t *Tester) TestSnapshotURL(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL, Kind: profiles.KindSnapshot}

	start := time.Now()
	resp, err := t.httpGet(ctx, rawURL)
	if err != nil {
		res.Detail = connectErrDetail(err)
		return res
	}
	defer resp.Body.Close()
	res.ResponseTime = time.Since(start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		res.AuthRequired = true
		res.Detail = "401 unauthorized"
		return res
	case resp.StatusCode != http.StatusOK:
		res.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		return res
	}

	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		res.Detail = "not a decodable image"
		return res
	}
	res.OK = true
	res.Resolution = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	return res
}

func (t *Tester) httpGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	// Credentials travel in the URL userinfo; mirror them into basic auth for
	// devices that ignore userinfo.
	if u := req.URL.User; u != nil {
		pw, _ := u.Password()
		req.SetBasicAuth(u.Username(), pw)
	}
	return t.client.Do(req)
}

// CheckHealth probes the accepted URL of a device without renegotiating
// candidates. Stream URLs get an RTSP OPTIONS round trip; everything else an
// HTTP GET.
func (t *Tester) CheckHealth(ctx context.Context, rawURL string, kind profiles.Kind) HealthResult {
	var r Result
	switch kind {
	case profiles.KindHTTPImage:
		r = t.httpImageFn(ctx, rawURL)
	case profiles.KindSnapshot:
		r = t.snapshotFn(ctx, rawURL)
	default:
		r = t.streamFn(ctx, rawURL)
	}

	// An endpoint demanding credentials is still an endpoint that answered.
	online := r.OK || r.AuthRequired
	hr := HealthResult{
		Online:       online,
		ResponseTime: r.ResponseTime,
		Detail:       r.Detail,
	}
	if online {
		hr.Tier = TierFor(r.ResponseTime)
	} else {
		hr.Tier = data.TierOffline
	}
	return hr
}

func connectErrDetail(err error) string {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
