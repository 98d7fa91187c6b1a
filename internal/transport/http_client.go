package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
)

// HTTPClient talks to the session gateway over its REST API:
//
//	POST {base}/channels/{id}/messages  -> {"message_id": "..."}
//	GET  {base}/channels/{id}/status    -> {"state": "connected"}
type HTTPClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "transport").Logger(),
	}
}

type sendRequest struct {
	To      string  `json:"to"`
	Content Content `json:"content"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, respBody, err
}

func (c *HTTPClient) Send(ctx context.Context, channelID int64, recipient string, content Content) (string, error) {
	status, body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/messages", channelID),
		sendRequest{To: recipient, Content: content})
	if err != nil {
		return "", &appErrors.TransportError{Message: err.Error()}
	}

	var out sendResponse
	_ = json.Unmarshal(body, &out)

	switch {
	case status == http.StatusTooManyRequests:
		return "", &appErrors.TransportError{Throttled: true, Message: orStatus(out.Error, status)}
	case status >= 400:
		return "", &appErrors.TransportError{Message: orStatus(out.Error, status)}
	case out.MessageID == "":
		return "", &appErrors.TransportError{Message: "gateway returned no message id"}
	}

	c.logger.Debug().
		Int64("channel_id", channelID).
		Str("provider_message_id", out.MessageID).
		Msg("message handed to gateway")
	return out.MessageID, nil
}

func (c *HTTPClient) IsLive(ctx context.Context, channelID int64) (bool, error) {
	status, body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/channels/%d/status", channelID), nil)
	if err != nil {
		return false, err
	}
	if status >= 400 {
		return false, fmt.Errorf("gateway status %d", status)
	}
	var out struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decoding channel status: %w", err)
	}
	return out.State == "connected", nil
}

func orStatus(msg string, status int) string {
	if msg != "" {
		return msg
	}
	return fmt.Sprintf("gateway status %d", status)
}

var _ Sender = (*HTTPClient)(nil)
