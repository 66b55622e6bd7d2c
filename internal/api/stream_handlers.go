package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ohmvision/ov-fleet/internal/stream"
)

// GET /api/v1/streams
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.streams.ListStreams())
}

// POST /api/v1/streams/{id}/start
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		respondError(w, http.StatusBadRequest, "url required")
		return
	}

	started := s.streams.StartStream(id, req.URL, req.Name)
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"started": started, // true also when the stream was already running
	})
}

// POST /api/v1/streams/{id}/stop
func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.streams.StopStream(id) {
		respondError(w, http.StatusNotFound, "no such stream")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopped"})
}

// GET /api/v1/streams/{id}
func (s *Server) handleStreamInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.streams.StreamInfo(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no such stream")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// GET /api/v1/streams/{id}/frame?quality=75
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frame, ok := s.streams.Frame(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}
	if quality, _ := strconv.Atoi(r.URL.Query().Get("quality")); quality > 0 {
		frame = stream.ReencodeJPEG(frame, quality)
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

// GET /api/v1/streams/{id}/live?fps=10&quality=75
func (s *Server) handleLiveMJPEG(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fps, _ := strconv.ParseFloat(r.URL.Query().Get("fps"), 64)
	quality, _ := strconv.Atoi(r.URL.Query().Get("quality"))
	if err := s.streams.ServeMJPEG(w, r, id, fps, quality); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
	}
}
