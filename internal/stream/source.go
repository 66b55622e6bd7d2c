package stream

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// FrameSource yields encoded JPEG frames from one device. Next blocks until a
// frame arrives or the context ends; implementations are not safe for
// concurrent Next calls.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// SourceFactory opens the right source for a URL. Injectable so tests can
// feed synthetic frames.
type SourceFactory func(ctx context.Context, url string) (FrameSource, error)

// OpenSource picks the capture backend by URL shape: multipart endpoints are
// read continuously, plain image URLs are polled.
func OpenSource(ctx context.Context, url string) (FrameSource, error) {
	if strings.HasPrefix(url, "rtsp://") {
		return nil, fmt.Errorf("rtsp capture not supported, use an http image endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if u := req.URL.User; u != nil {
		pw, _ := u.Password()
		req.SetBasicAuth(u.Username(), pw)
	}

	client := &http.Client{} // no overall timeout, the body is a live stream
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream open: status %d", resp.StatusCode)
	}

	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		return &mjpegSource{
			body:   resp.Body,
			reader: multipart.NewReader(resp.Body, params["boundary"]),
		}, nil
	}

	// Single still image: close this response and poll the URL.
	resp.Body.Close()
	return &snapshotSource{url: url, interval: 500 * time.Millisecond}, nil
}

// mjpegSource reads parts off a multipart/x-mixed-replace body.
type mjpegSource struct {
	body   io.ReadCloser
	reader *multipart.Reader
}

const maxFrameSize = 8 << 20

func (s *mjpegSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	part, err := s.reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("mjpeg part: %w", err)
	}
	defer part.Close()

	frame, err := io.ReadAll(io.LimitReader(part, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("mjpeg frame: %w", err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("mjpeg frame: empty part")
	}
	return frame, nil
}

func (s *mjpegSource) Close() error { return s.body.Close() }

// snapshotSource turns a still-image endpoint into a low-rate frame stream.
type snapshotSource struct {
	url      string
	interval time.Duration
	client   http.Client
	fetched  bool
}

func (s *snapshotSource) Next(ctx context.Context) ([]byte, error) {
	if s.fetched {
		timer := time.NewTimer(s.interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	s.fetched = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if u := req.URL.User; u != nil {
		pw, _ := u.Password()
		req.SetBasicAuth(u.Username(), pw)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot poll: status %d", resp.StatusCode)
	}
	frame, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("snapshot poll: empty body")
	}
	return frame, nil
}

func (s *snapshotSource) Close() error { return nil }
