package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/go-chi/chi/v5"
)

// recordRequest carries field values keyed by column id.
type recordRequest struct {
	Fields map[string]any `json:"fields"`
}

// handleRecordTemplate returns default values for a new record.
func (s *Server) handleRecordTemplate(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, recordRequest{Fields: sess.NewRecordTemplate()})
}

// handleAddRecord appends a record. Omitted fields take their column default.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	rec, err := sess.AddRecord(req.Fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateRecord edits the given fields of one record.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	recordID := strings.TrimSpace(chi.URLParam(r, "recordID"))
	if recordID == "" {
		s.badRequest(w, r, "missing record ID")
		return
	}
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	if len(req.Fields) == 0 {
		s.badRequest(w, r, "no fields to update")
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	rec, err := sess.UpdateRecord(recordID, req.Fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteRecord removes one record.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}
	if err := sess.DeleteRecord(chi.URLParam(r, "recordID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddColumn appends a column; every record receives its default.
func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string          `json:"name"`
		Type core.ColumnType `json:"type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = core.ColumnText
	}
	if !req.Type.Valid() {
		s.badRequest(w, r, "column type must be text or number")
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	col, err := sess.AddColumn(req.Name, req.Type)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// handleRenameColumn changes a column's display name. Its id is unchanged.
func (s *Server) handleRenameColumn(w http.ResponseWriter, r *http.Request) {
	columnID := chi.URLParam(r, "columnID")
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	if err := sess.RenameColumn(columnID, req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	col, _ := sess.Snapshot().Column(columnID)
	writeJSON(w, http.StatusOK, col)
}
