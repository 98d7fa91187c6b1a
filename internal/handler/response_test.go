package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{appErrors.Validation("name is required"), http.StatusBadRequest},
		{fmt.Errorf("%w: sms", appErrors.ErrUnsupported), http.StatusBadRequest},
		{appErrors.ErrWebhookAuthFailed, http.StatusUnauthorized},
		{appErrors.ErrForbidden, http.StatusForbidden},
		{appErrors.NewCampaignNotFound(9), http.StatusNotFound},
		{appErrors.InvalidTransition("completed", "paused"), http.StatusConflict},
		{appErrors.ErrChannelNotSendable, http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zerolog.Nop(), errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestParseID(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var gotErr error
	r.Get("/things/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = ParseID(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/12", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(12), got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/-1", nil))
	assert.ErrorIs(t, gotErr, appErrors.ErrValidation)
}
