package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/JonMunkholm/landrecords/internal/logging"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 64 << 10

// importResponse summarises an import.
type importResponse struct {
	Format   core.FileFormat     `json:"format"`
	Columns  []core.ColumnSchema `json:"columns"`
	Records  int                 `json:"recordCount"`
	Warnings int                 `json:"warningCount"`
	Empty    bool                `json:"empty"`
	Saved    bool                `json:"saved"`
	Sync     core.SyncStatus     `json:"sync"`
	Error    *ErrorResponse      `json:"saveError,omitempty"`
}

// handleImport replaces a village's columns and records with an uploaded
// spreadsheet. The file is sent as multipart field "file" or as the raw
// request body with a ?filename= hint.
//
// A file that cannot be parsed leaves the village unchanged. If the import
// succeeds but the save does not, the response is 202 with saveError set;
// the imported data is kept and saved by the next flush.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	logging.WithFields(r.Context(), "filename", filename, "bytes", len(data)).Info("import started")

	result, err := sess.Import(r.Context(), data, filename)
	var se *core.SyncError
	switch {
	case err == nil:
	case result != nil && errors.As(err, &se):
		msg := core.MapError(err)
		resp := newImportResponse(result, sess.Status())
		resp.Error = &ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
		logging.FromContext(r.Context()).Warn("import kept locally, save failed", "error", err)
		writeJSON(w, http.StatusAccepted, resp)
		return
	default:
		s.respondError(w, r, err)
		return
	}

	resp := newImportResponse(result, sess.Status())
	resp.Saved = true
	writeJSON(w, http.StatusOK, resp)
}

func newImportResponse(res *core.ImportResult, status core.SyncStatus) importResponse {
	return importResponse{
		Format:   res.Format,
		Columns:  res.Schema,
		Records:  len(res.Records),
		Warnings: len(res.Warnings),
		Empty:    res.Empty,
		Sync:     status,
	}
}

// readUpload returns the uploaded bytes and the client's file name.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				return nil, "", fmt.Errorf("upload exceeds %d bytes: %w", limit, core.ErrFileTooLarge)
			}
			return nil, "", core.ErrNoFile
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("read upload: %w", err)
		}
		return data, header.Filename, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			return nil, "", fmt.Errorf("upload exceeds %d bytes: %w", limit, core.ErrFileTooLarge)
		}
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, r.URL.Query().Get("filename"), nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// handleExport downloads a village as xlsx (default), csv or tsv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := core.FormatWorkbook
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := core.ParseFormat(f)
		if err != nil {
			s.badRequest(w, r, "format must be xlsx, csv or tsv")
			return
		}
		format = parsed
	}
	sess := s.openSession(w, r)
	if sess == nil {
		return
	}

	data, filename, err := sess.Export(format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
