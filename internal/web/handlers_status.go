package web

import (
	"net/http"
)

func (s *Server) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GlobalStats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type generationStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
	MaxBatchSize  int `json:"max_batch_size"`
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.GenerationStatus()
	writeJSON(w, http.StatusOK, generationStatus{
		Active:        st.Active,
		Available:     st.Available,
		MaxConcurrent: st.MaxConcurrent,
		MaxBatchSize:  s.service.MaxBatchSize(),
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Registry())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Health(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
