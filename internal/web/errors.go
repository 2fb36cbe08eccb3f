package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with its technical detail and the request id (server-side)
//   - Mapped through core.MapError to a coded, user-friendly message
//   - Written as JSON with a status derived from the error identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/JonMunkholm/landrecords/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var pe *core.ParseError
	var se *core.SyncError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.As(err, &pe), errors.Is(err, core.ErrEmptyFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownColumn), errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrExtractorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case core.MapError(err).Code == "RATE001":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	log := logger.Warn
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeError(w, status, msg)
}

// badRequest rejects a malformed request body or parameter.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	logging.FromContext(r.Context()).Debug("bad request", "path", r.URL.Path, "detail", detail)
	writeError(w, http.StatusBadRequest, core.UserMessage{
		Message: detail,
		Action:  "Check the request and try again",
		Code:    "VAL003",
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg core.UserMessage) {
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON request body of at most maxJSONBody bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}
