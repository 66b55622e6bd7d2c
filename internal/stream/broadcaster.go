// Package stream fans encoded JPEG frames out from one capture loop per
// device to any number of subscribers. Producers never block: a subscriber
// that cannot keep up loses frames, not the fleet.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/metrics"
)

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusErrored    Status = "errored"
	StatusStopped    Status = "stopped"
)

const (
	subscriberQueueLen = 10
	captureRetryDelay  = 5 * time.Second
	captureMaxRetries  = 5
)

// Info is a point-in-time snapshot of one stream.
type Info struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Status        Status    `json:"status"`
	FrameCount    uint64    `json:"frame_count"`
	DroppedFrames uint64    `json:"dropped_frames"`
	Subscribers   int       `json:"subscribers"`
	StartedAt     time.Time `json:"started_at"`
	LastFrameAt   time.Time `json:"last_frame_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

type streamState struct {
	id     string
	name   string
	url    string
	cancel context.CancelFunc
	done   chan struct{}

	status        Status
	latest        []byte
	frameCount    uint64
	droppedFrames uint64
	startedAt     time.Time
	lastFrameAt   time.Time
	lastError     string
	subs          map[string]chan []byte
}

type Broadcaster struct {
	log        zerolog.Logger
	openSource SourceFactory
	cache      FrameCache
	met        *metrics.Metrics

	retryDelay time.Duration
	maxRetries int

	mu      sync.Mutex
	streams map[string]*streamState
}

func NewBroadcaster(log zerolog.Logger, cache FrameCache, met *metrics.Metrics) *Broadcaster {
	if cache == nil {
		cache = NoopFrameCache{}
	}
	return &Broadcaster{
		log:        log.With().Str("component", "stream").Logger(),
		openSource: OpenSource,
		cache:      cache,
		met:        met,
		retryDelay: captureRetryDelay,
		maxRetries: captureMaxRetries,
		streams:    make(map[string]*streamState),
	}
}

// SetSourceFactory replaces the capture backend. Call before any stream
// starts; tests use it to feed synthetic frames.
func (b *Broadcaster) SetSourceFactory(f SourceFactory) {
	b.openSource = f
}

// StartStream ensures a capture loop is running for the device. Starting an
// id that is already live is a success; there is never more than one loop
// per id.
func (b *Broadcaster) StartStream(id, url, name string) bool {
	b.mu.Lock()
	if _, exists := b.streams[id]; exists {
		b.mu.Unlock()
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	st := &streamState{
		id: id, name: name, url: url,
		cancel: cancel, done: make(chan struct{}),
		status: StatusConnecting, startedAt: time.Now(),
		subs: make(map[string]chan []byte),
	}
	b.streams[id] = st
	b.mu.Unlock()

	if b.met != nil {
		b.met.ActiveStreams.Inc()
	}
	go b.captureLoop(ctx, st)
	b.log.Info().Str("stream", id).Str("url", url).Msg("stream started")
	return true
}

// StopStream cancels the capture loop and waits for it to exit before
// returning.
func (b *Broadcaster) StopStream(id string) bool {
	b.mu.Lock()
	st, ok := b.streams[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.streams, id)
	b.mu.Unlock()

	st.cancel()
	<-st.done

	b.mu.Lock()
	for subID, ch := range st.subs {
		close(ch)
		delete(st.subs, subID)
	}
	st.status = StatusStopped
	b.mu.Unlock()

	if b.met != nil {
		b.met.ActiveStreams.Dec()
	}
	b.log.Info().Str("stream", id).Msg("stream stopped")
	return true
}

// StopAll shuts every stream down. Used at process exit.
func (b *Broadcaster) StopAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.streams))
	for id := range b.streams {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.StopStream(id)
	}
}

func (b *Broadcaster) captureLoop(ctx context.Context, st *streamState) {
	defer close(st.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		src, err := b.openSource(ctx, st.url)
		if err != nil {
			failures++
			if !b.retryOrGiveUp(ctx, st, failures, err) {
				return
			}
			continue
		}

		b.setStatus(st, StatusLive, "")
		failures = 0

		for {
			frame, err := src.Next(ctx)
			if err != nil {
				src.Close()
				if ctx.Err() != nil {
					return
				}
				failures++
				if !b.retryOrGiveUp(ctx, st, failures, err) {
					return
				}
				break
			}
			b.deliver(ctx, st, frame)
		}
	}
}

// retryOrGiveUp sleeps the fixed retry delay, or marks the stream errored
// once the attempt budget is spent. Returns false when the loop should end.
func (b *Broadcaster) retryOrGiveUp(ctx context.Context, st *streamState, failures int, err error) bool {
	if failures >= b.maxRetries {
		b.setStatus(st, StatusErrored, err.Error())
		b.log.Warn().Err(err).Str("stream", st.id).Int("attempts", failures).Msg("capture gave up")
		return false
	}
	b.setStatus(st, StatusConnecting, err.Error())
	timer := time.NewTimer(b.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (b *Broadcaster) setStatus(st *streamState, status Status, lastError string) {
	b.mu.Lock()
	st.status = status
	st.lastError = lastError
	b.mu.Unlock()
}

// deliver stores the frame as latest, mirrors it to the cache, and offers it
// to every subscriber. A full subscriber queue drops this frame for that
// subscriber only.
func (b *Broadcaster) deliver(ctx context.Context, st *streamState, frame []byte) {
	b.mu.Lock()
	st.latest = frame
	st.frameCount++
	st.lastFrameAt = time.Now()
	delivered, dropped := 0, 0
	for _, ch := range st.subs {
		select {
		case ch <- frame:
			delivered++
		default:
			dropped++
		}
	}
	st.droppedFrames += uint64(dropped)
	b.mu.Unlock()

	if err := b.cache.Store(ctx, st.id, frame); err != nil {
		b.log.Debug().Err(err).Str("stream", st.id).Msg("frame cache write failed")
	}
	if b.met != nil {
		b.met.FramesTotal.WithLabelValues("delivered").Add(float64(delivered))
		b.met.FramesTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// Frame returns the most recent frame of a stream. When the capture loop has
// nothing yet, or has already stopped, the shared frame cache answers as long
// as its TTL holds.
func (b *Broadcaster) Frame(id string) ([]byte, bool) {
	b.mu.Lock()
	st, ok := b.streams[id]
	if ok && st.latest != nil {
		latest := st.latest
		b.mu.Unlock()
		return latest, true
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := b.cache.Latest(ctx, id)
	if err != nil {
		return nil, false
	}
	return frame, true
}

// StreamInfo returns a snapshot of one stream's state.
func (b *Broadcaster) StreamInfo(id string) (Info, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[id]
	if !ok {
		return Info{}, false
	}
	return b.infoLocked(st), true
}

// ListStreams snapshots every active stream.
func (b *Broadcaster) ListStreams() []Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Info, 0, len(b.streams))
	for _, st := range b.streams {
		out = append(out, b.infoLocked(st))
	}
	return out
}

func (b *Broadcaster) infoLocked(st *streamState) Info {
	return Info{
		ID: st.id, Name: st.name, URL: st.url,
		Status: st.status, FrameCount: st.frameCount,
		DroppedFrames: st.droppedFrames, Subscribers: len(st.subs),
		StartedAt: st.startedAt, LastFrameAt: st.lastFrameAt,
		LastError: st.lastError,
	}
}

// Subscribe attaches a bounded frame queue to a stream. Subscribing twice
// with the same id replaces the previous queue.
func (b *Broadcaster) Subscribe(id, subID string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[id]
	if !ok {
		return nil, fmt.Errorf("no stream for %s", id)
	}
	if old, exists := st.subs[subID]; exists {
		close(old)
	}
	ch := make(chan []byte, subscriberQueueLen)
	st.subs[subID] = ch
	if b.met != nil {
		b.met.Subscribers.Inc()
	}
	return ch, nil
}

// Unsubscribe detaches and closes a subscriber queue.
func (b *Broadcaster) Unsubscribe(id, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[id]
	if !ok {
		return
	}
	ch, exists := st.subs[subID]
	if !exists {
		return
	}
	delete(st.subs, subID)
	close(ch)
	if b.met != nil {
		b.met.Subscribers.Dec()
	}
}

// ServeMJPEG bridges one subscriber to an HTTP response as
// multipart/x-mixed-replace, optionally rate-limited to maxFPS and
// re-compressed at the requested JPEG quality.
func (b *Broadcaster) ServeMJPEG(w http.ResponseWriter, r *http.Request, id string, maxFPS float64, quality int) error {
	subID := uuid.New().String()
	frames, err := b.Subscribe(id, subID)
	if err != nil {
		return err
	}
	defer b.Unsubscribe(id, subID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer is not flushable")
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var minInterval time.Duration
	if maxFPS > 0 {
		minInterval = time.Duration(float64(time.Second) / maxFPS)
	}
	var lastWrite time.Time

	for {
		select {
		case <-r.Context().Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if minInterval > 0 && time.Since(lastWrite) < minInterval {
				continue // skip, the next frame will do
			}
			frame = ReencodeJPEG(frame, quality)
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return nil
			}
			if _, err := w.Write(frame); err != nil {
				return nil
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return nil
			}
			flusher.Flush()
			lastWrite = time.Now()
		}
	}
}
