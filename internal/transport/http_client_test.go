package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

func TestHTTPClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/3/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "628123", req.To)
		assert.Equal(t, "halo", req.Content.Text)

		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "wamid.1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", time.Second, zerolog.Nop())
	id, err := c.Send(context.Background(), 3, "628123", Content{Type: model.ContentText, Text: "halo"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)
}

func TestHTTPClient_SendErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		throttled bool
	}{
		{"throttled", http.StatusTooManyRequests, `{"error":"slow down"}`, true},
		{"rejected", http.StatusBadRequest, `{"error":"invalid number"}`, false},
		{"no id", http.StatusOK, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "", time.Second, zerolog.Nop()).
				Send(context.Background(), 1, "x", Content{Type: model.ContentText, Text: "hi"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrTransportSendFailed))
			assert.Equal(t, tt.throttled, appErrors.IsThrottle(err))
		})
	}
}

func TestHTTPClient_IsLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := "disconnected"
		if r.URL.Path == "/channels/1/status" {
			state = "connected"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"state": state})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second, zerolog.Nop())
	live, err := c.IsLive(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, live)

	live, err = c.IsLive(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, live)
}
