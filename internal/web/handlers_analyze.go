package web

import (
	"net/http"
)

type analyzeRequest struct {
	ICCID string `json:"iccid"`
}

type bulkAnalyzeRequest struct {
	ICCIDs []string `json:"iccids"`
}

type completeRequest struct {
	Body string `json:"body"`
}

// handleAnalyze never rejects a malformed identifier; problems come back as
// warnings in a 200 response.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Analyze(r.Context(), req.ICCID))
}

func (s *Server) handleAnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.AnalyzeBulk(r.Context(), req.ICCIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	analysis, err := s.service.CompleteBody(r.Context(), req.Body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
