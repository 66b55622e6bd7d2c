package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ohmvision/ov-fleet/internal/discovery"
	"github.com/ohmvision/ov-fleet/internal/scan"
)

// POST /api/v1/discovery/scan
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CIDR     string `json:"cidr"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.CIDR == "" {
		local, err := scan.LocalNetwork()
		if err != nil {
			respondError(w, http.StatusBadRequest, "cidr required and local network not detectable")
			return
		}
		req.CIDR = local
	}

	recs, err := s.discovery.DiscoverNetwork(r.Context(), req.CIDR, discovery.RunOptions{
		Username: req.Username,
		Password: req.Password,
	}, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cidr":    req.CIDR,
		"count":   len(recs),
		"devices": recs,
	})
}

// GET /api/v1/discovery/local-network
func (s *Server) handleLocalNetwork(w http.ResponseWriter, r *http.Request) {
	cidr, err := scan.LocalNetwork()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"cidr": cidr})
}

// GET /api/v1/discovery/candidates?vendor=&ip=&username=&password=&channels=
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip := q.Get("ip")
	if ip == "" {
		respondError(w, http.StatusBadRequest, "ip required")
		return
	}
	channels, _ := strconv.Atoi(q.Get("channels"))
	out := s.discovery.CandidateURLs(q.Get("vendor"), ip, q.Get("username"), q.Get("password"), channels)
	respondJSON(w, http.StatusOK, out)
}

// POST /api/v1/discovery/detect
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP       string `json:"ip"`
		Username string `json:"username"`
		Password string `json:"password"`
		Vendor   string `json:"vendor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		respondError(w, http.StatusBadRequest, "ip required")
		return
	}
	out := s.detector.AutoDetectBestConnection(r.Context(), req.IP, req.Username, req.Password, req.Vendor)
	respondJSON(w, http.StatusOK, out)
}
