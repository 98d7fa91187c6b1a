// Package transport is the boundary to the session service that owns provider
// connections. The orchestrator only sees success (a provider message id) or
// failure (an *appErrors.TransportError).
package transport

import (
	"context"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// Content is one outbound payload.
type Content struct {
	Type         model.ContentType `json:"type"`
	Text         string            `json:"text,omitempty"`
	MediaURL     string            `json:"media_url,omitempty"`
	FileName     string            `json:"file_name,omitempty"`
	TemplateName string            `json:"template_name,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, channelID int64, recipient string, content Content) (providerMessageID string, err error)
	IsLive(ctx context.Context, channelID int64) (bool, error)
}

// Func adapts plain functions to Sender. A nil LiveFunc reports every channel live.
type Func struct {
	SendFunc func(ctx context.Context, channelID int64, recipient string, content Content) (string, error)
	LiveFunc func(ctx context.Context, channelID int64) (bool, error)
}

func (f Func) Send(ctx context.Context, channelID int64, recipient string, content Content) (string, error) {
	return f.SendFunc(ctx, channelID, recipient, content)
}

func (f Func) IsLive(ctx context.Context, channelID int64) (bool, error) {
	if f.LiveFunc == nil {
		return true, nil
	}
	return f.LiveFunc(ctx, channelID)
}

var _ Sender = Func{}
