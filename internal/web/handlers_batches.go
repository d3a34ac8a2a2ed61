package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Werdo/ose-platform-sub000/internal/core"
	"github.com/Werdo/ose-platform-sub000/internal/logging"
)

type previewRequest struct {
	ICCIDStart string `json:"iccid_start"`
	ICCIDEnd   string `json:"iccid_end"`
	Limit      int    `json:"limit"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req core.CreateBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	batch, err := s.service.CreateBatch(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/batches/"+url.PathEscape(batch.ID))
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(r.Context(), req.ICCIDStart, req.ICCIDEnd, req.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListBatches(r.Context(),
		parseIntParam(r, "limit", 0),
		parseIntParam(r, "offset", 0),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportCSV streams the batch. Headers are written lazily by
// csvResponse so a missing batch still gets a JSON 404.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out := &csvResponse{w: w, filename: fmt.Sprintf("batch-%s.csv", id)}

	downloads, err := s.service.ExportCSV(r.Context(), id, out)
	if err != nil {
		if !out.started {
			s.respondError(w, r, err)
			return
		}
		// Too late for an error status; the client sees a truncated file.
		logging.FromContext(r.Context()).Error("csv export interrupted",
			"batch_id", id,
			"error", err,
			"canceled", errors.Is(err, r.Context().Err()),
		)
		return
	}
	logging.FromContext(r.Context()).Info("csv exported", "batch_id", id, "downloads", downloads)
}

// csvResponse sets the CSV headers on first write.
type csvResponse struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (c *csvResponse) Write(p []byte) (int, error) {
	if !c.started {
		h := c.w.Header()
		h.Set("Content-Type", "text/csv; charset=utf-8")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.filename))
		c.w.WriteHeader(http.StatusOK)
		c.started = true
	}
	return c.w.Write(p)
}
