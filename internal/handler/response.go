// Package handler holds the HTTP helpers shared by the controllers: JSON
// encoding, error to status mapping and path parameter parsing.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/middleware"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrWebhookAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, appErrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidStateTransition), errors.Is(err, appErrors.ErrChannelNotSendable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"error": ...}. Internal errors are logged and
// their detail hidden from the client.
func WriteError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, errorBody{Error: msg})
}

// DecodeJSON decodes a bounded request body, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return appErrors.Validation("invalid request body: %v", err)
	}
	return nil
}

// ParseID reads a positive int64 path parameter.
func ParseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Validation("invalid %s", name)
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter, falling back to def.
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// Actor returns the owner id placed in the context by middleware.RequireActor.
func Actor(r *http.Request) (int64, error) {
	id, ok := middleware.ActorFrom(r.Context())
	if !ok {
		return 0, fmt.Errorf("%w: no actor on request", appErrors.ErrForbidden)
	}
	return id, nil
}
