// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/containerd/errdefs"

	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteMirrorError maps err to a status code and writes a response that names the failing
// layer without leaking upstream URLs or connection strings
func WriteMirrorError(w http.ResponseWriter, err error) {
	status, message := StatusForError(err)
	resp := ErrorResponse{Error: message}
	if kind, ok := mirrorerr.KindOf(err); ok {
		resp.Kind = string(kind)
	}
	WriteJSONResponse(w, resp, status)
}

// StatusForError picks the HTTP status for a mirror failure:
// upstream failures are 502 (504 on timeout), store failures 503, everything else 500.
func StatusForError(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) || errdefs.IsDeadlineExceeded(err) {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}

	kind, _ := mirrorerr.KindOf(err)
	switch kind {
	case mirrorerr.KindUpstreamFetch:
		if errdefs.IsUnauthorized(err) || errdefs.IsPermissionDenied(err) {
			return http.StatusBadGateway, "upstream rejected the mirror's credentials"
		}
		return http.StatusBadGateway, "failed to fetch from upstream"
	case mirrorerr.KindStore:
		return http.StatusServiceUnavailable, "local store unavailable"
	case mirrorerr.KindResolution:
		return http.StatusInternalServerError, "failed to resolve entries"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
