package web

import (
	"net/http"

	"github.com/JonMunkholm/landrecords/internal/core"
)

// handleSyncStatus reports whether the village has unsaved edits.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

// handleFlush saves pending edits now, retrying a failed save.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}
	if err := sess.Flush(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

// handleCloseSession saves and releases the village's editing session.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(r.Context(), core.DatasetFromContext(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExtract turns a free-text description into prefilled record fields.
// The record is not added; the client reviews it and posts it to /records.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	fields, err := sess.Extract(r.Context(), req.Text)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordRequest{Fields: fields})
}
