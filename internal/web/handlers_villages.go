package web

import (
	"net/http"

	"github.com/JonMunkholm/landrecords/internal/core"
)

// handleListVillages returns the village catalogue, optionally filtered by
// ?q= against the English and Tamil names.
func (s *Server) handleListVillages(w http.ResponseWriter, r *http.Request) {
	villages, err := s.service.ListDatasets(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	villages = core.FilterSummaries(villages, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"villages": villages,
		"count":    len(villages),
	})
}

// handleCreateVillage adds a village with the default columns.
func (s *Server) handleCreateVillage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		NameTamil string `json:"nameTamil"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}

	d, err := s.service.CreateDataset(r.Context(), req.Name, req.NameTamil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleGetVillage returns one village with its columns and records.
func (s *Server) handleGetVillage(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.GetDataset(r.Context(), core.DatasetFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteVillage removes a village and discards its open session.
func (s *Server) handleDeleteVillage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDataset(r.Context(), core.DatasetFromContext(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
