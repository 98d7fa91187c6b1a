package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/controller"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/webhook"
)

const gatewayPayload = `{"event":"message","session":"6281100","message":{"id":"IN1","from":"628555","push_name":"Budi","type":"chat","body":"halo"}}`

func (s *testServer) postWebhook(t *testing.T, path, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(webhook.HeaderGatewaySignature, "sha256="+signature)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookReceive(t *testing.T) {
	s := newTestServer(t)

	rec := s.postWebhook(t, "/webhooks/whatsapp", gatewayPayload, webhook.Sign(hookSecret, []byte(gatewayPayload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[webhook.Result](t, rec)
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, s.channel.ID, res.ChannelID)

	rec = s.postWebhook(t, "/webhooks/whatsapp", gatewayPayload, webhook.Sign(hookSecret, []byte(gatewayPayload)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.WebhookDuplicate, decode[webhook.Result](t, rec).Outcome)

	assert.Len(t, s.store.MessageList(), 1)
	assert.Len(t, s.store.WebhookLogList(), 2)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)

	rec := s.postWebhook(t, "/webhooks/whatsapp", gatewayPayload, webhook.Sign("wrong", []byte(gatewayPayload)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.store.MessageList())

	logs := s.store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Equal(t, model.WebhookFailed, logs[0].Outcome)
}

func TestWebhookAcknowledgesProcessingFailures(t *testing.T) {
	s := newTestServer(t)
	body := `{"event":"message","session":"unknown","message":{"id":"IN1","from":"628555","type":"chat","body":"halo"}}`

	rec := s.postWebhook(t, "/webhooks/whatsapp", body, webhook.Sign(hookSecret, []byte(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[webhook.Result](t, rec)
	assert.Equal(t, model.WebhookFailed, res.Outcome)
	assert.NotEmpty(t, res.Error)
}

func TestWebhookOversizedBodyIsLogged(t *testing.T) {
	s := newTestServer(t)
	body := strings.Repeat("x", handler.MaxBodyBytes+1)

	rec := s.postWebhook(t, "/webhooks/whatsapp", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[webhook.Result](t, rec)
	assert.Equal(t, model.WebhookFailed, res.Outcome)
	assert.Contains(t, res.Error, "reading body")

	logs := s.store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Equal(t, model.WebhookFailed, logs[0].Outcome)
	assert.Len(t, logs[0].Payload, handler.MaxBodyBytes)
	assert.Empty(t, s.store.MessageList())
}

func TestWebhookUnknownPlatform(t *testing.T) {
	s := newTestServer(t)
	rec := s.postWebhook(t, "/webhooks/sms", "{}", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.store.WebhookLogList())
}

func TestChannelEvents(t *testing.T) {
	s := newTestServer(t)
	event := `{"channel_id":` + strconv.FormatInt(s.channel.ID, 10) + `,"state":"disconnected","occurred_at":"` +
		time.Now().Add(time.Minute).UTC().Format(time.RFC3339) + `"}`

	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/channels/events", bytes.NewBufferString(event))
		if token != "" {
			req.Header.Set(controller.HeaderEventToken, token)
		}
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, post("").Code)
	assert.Equal(t, http.StatusUnauthorized, post("nope").Code)
	require.Equal(t, http.StatusAccepted, post(eventSecret).Code)

	type channelStatus struct {
		Channel   model.Channel      `json:"channel"`
		Sendable  bool               `json:"sendable"`
		RateLimit ratelimit.Snapshot `json:"rate_limit"`
	}
	path := "/channels/" + strconv.FormatInt(s.channel.ID, 10) + "/rate-limit"

	// the event reaches the registry through the queue subscriber
	var status channelStatus
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, path, owner, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(rec.Body.Bytes(), &status) == nil &&
			status.Channel.LiveState == model.LiveStateDisconnected
	}, time.Second, 5*time.Millisecond)
	assert.False(t, status.Sendable)
	assert.Equal(t, 100, status.RateLimit.HourlyCap)
	assert.Equal(t, 1000, status.RateLimit.DailyCap)
}

func TestChannelEventsValidation(t *testing.T) {
	s := newTestServer(t)
	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/channels/events", bytes.NewBufferString(body))
		req.Header.Set(controller.HeaderEventToken, eventSecret)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"channel_id":1,"state":"asleep"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"state":"connected"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"channel_id":1,"state":"connected","extra":true}`))
}

func TestRateLimitSnapshotOwnership(t *testing.T) {
	s := newTestServer(t)
	path := "/channels/" + strconv.FormatInt(s.channel.ID, 10) + "/rate-limit"

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, owner+1, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/channels/999/rate-limit", owner, nil).Code)
}
