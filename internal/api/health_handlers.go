package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ohmvision/ov-fleet/internal/data"
)

// GET /api/v1/health
func (s *Server) handleAllHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.health.AllHealth())
}

// GET /api/v1/health/summary
func (s *Server) handleHealthSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.health.SystemSummary())
}

// GET /api/v1/cameras/{id}/health
func (s *Server) handleCameraHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.health.CameraHealth(id)
	if !ok {
		respondError(w, http.StatusNotFound, "camera not monitored")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// POST /api/v1/cameras/{id}/health/check
func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.health.CheckNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrDeviceNotFound) {
			respondError(w, http.StatusNotFound, "camera not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GET /api/v1/cameras/{id}/reconnect
func (s *Server) handleReconnectStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, s.health.ReconnectionStatus(id))
}
