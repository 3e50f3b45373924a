package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// ErrorResponse is the error envelope for every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Table   string `json:"table,omitempty"`
	Details any    `json:"details,omitempty"`
}

// MessageResponse acknowledges a completed policy.
type MessageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: string(ir.ErrCodeInvalidInput)})
}

// decode reads a JSON body into dst. It writes a 400 and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch ir.CodeOf(err) {
	case ir.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ir.ErrCodeNotFound:
		return http.StatusNotFound
	case ir.ErrCodeNoMatch, ir.ErrCodeUnsupportedType:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Errors without a code are logged and
// hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: string(ir.CodeOf(err))}
	var e *ir.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		resp.Table = e.Table
	}
	writeJSON(w, status, resp)
}
