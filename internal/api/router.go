// Package api is the HTTP surface of fleetd. Handlers stay thin: decode,
// forward into the core, encode. No fleet logic lives here.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/connect"
	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/discovery"
	"github.com/ohmvision/ov-fleet/internal/health"
	"github.com/ohmvision/ov-fleet/internal/metrics"
	"github.com/ohmvision/ov-fleet/internal/reconnect"
	"github.com/ohmvision/ov-fleet/internal/scan"
	"github.com/ohmvision/ov-fleet/internal/stream"
)

type DiscoveryService interface {
	DiscoverNetwork(ctx context.Context, cidr string, opts discovery.RunOptions, onProgress scan.Progress) ([]data.DeviceRecord, error)
	CandidateURLs(vendorID, ip, username, password string, channels int) []discovery.ChannelCandidates
}

type Detector interface {
	AutoDetectBestConnection(ctx context.Context, ip, username, password, vendorHint string) connect.DetectOutcome
}

type HealthService interface {
	AllHealth() map[string]data.CameraHealthStatus
	CameraHealth(id string) (data.CameraHealthStatus, bool)
	CheckNow(ctx context.Context, id string) (data.CameraHealthStatus, error)
	ReconnectionStatus(id string) reconnect.Status
	SystemSummary() health.Summary
}

type StreamService interface {
	StartStream(id, url, name string) bool
	StopStream(id string) bool
	ListStreams() []stream.Info
	StreamInfo(id string) (stream.Info, bool)
	Frame(id string) ([]byte, bool)
	Subscribe(id, subID string) (<-chan []byte, error)
	Unsubscribe(id, subID string)
	ServeMJPEG(w http.ResponseWriter, r *http.Request, id string, maxFPS float64, quality int) error
}

type Server struct {
	log       zerolog.Logger
	discovery DiscoveryService
	detector  Detector
	health    HealthService
	streams   StreamService
	met       *metrics.Metrics
	gatherer  prometheus.Gatherer
}

func NewServer(log zerolog.Logger, disc DiscoveryService, det Detector, hs HealthService, ss StreamService, met *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	return &Server{
		log:       log.With().Str("component", "api").Logger(),
		discovery: disc,
		detector:  det,
		health:    hs,
		streams:   ss,
		met:       met,
		gatherer:  gatherer,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/discovery/scan", s.handleScan)
		r.Get("/discovery/local-network", s.handleLocalNetwork)
		r.Get("/discovery/candidates", s.handleCandidates)
		r.Post("/discovery/detect", s.handleDetect)

		r.Get("/health", s.handleAllHealth)
		r.Get("/health/summary", s.handleHealthSummary)
		r.Get("/cameras/{id}/health", s.handleCameraHealth)
		r.Post("/cameras/{id}/health/check", s.handleCheckNow)
		r.Get("/cameras/{id}/reconnect", s.handleReconnectStatus)

		r.Get("/streams", s.handleListStreams)
		r.Post("/streams/{id}/start", s.handleStartStream)
		r.Post("/streams/{id}/stop", s.handleStopStream)
		r.Get("/streams/{id}", s.handleStreamInfo)
		r.Get("/streams/{id}/frame", s.handleFrame)
		r.Get("/streams/{id}/live", s.handleLiveMJPEG)
		r.Get("/streams/{id}/ws", s.handleFrameSocket)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		if s.met != nil {
			routePattern := chi.RouteContext(r.Context()).RoutePattern()
			if routePattern == "" {
				routePattern = r.URL.Path
			}
			s.met.HTTPRequests.WithLabelValues(routePattern, http.StatusText(ww.Status())).Inc()
		}
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
