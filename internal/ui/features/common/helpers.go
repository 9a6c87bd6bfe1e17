// Package common provides shared types and utilities for UI features.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/jobs"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// maxBodyBytes caps request bodies; graphs are small.
const maxBodyBytes = 4 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorResponse with the status StatusFor picks.
func WriteError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verr *editor.ValidationError
	if errors.As(err, &verr) {
		resp.Issues = verr.Issues
	}
	WriteJSON(w, StatusFor(err), resp)
}

// StatusFor maps editor errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		verr   *editor.ValidationError
		status *api.StatusError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrUnknownNode),
		errors.Is(err, jobs.ErrUnknownNode),
		errors.Is(err, store.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSelfLoop),
		errors.Is(err, store.ErrNoteEdge),
		errors.Is(err, editor.ErrUnknownNodeType),
		errors.Is(err, editor.ErrUnknownAction),
		errors.Is(err, editor.ErrActionUnavailable),
		errors.Is(err, jobs.ErrNotPreviewable),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrRunInProgress), errors.Is(err, jobs.ErrNoActiveRun):
		return http.StatusConflict
	case errors.As(err, &status):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrBadRequest marks a malformed request body or parameter.
var ErrBadRequest = errors.New("bad request")

// DecodeJSON decodes a request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
