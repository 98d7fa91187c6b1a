// internal/model/webhook_log.go
package model

import (
	"encoding/json"
	"time"
)

type WebhookOutcome string

const (
	WebhookSuccess   WebhookOutcome = "success"
	WebhookFailed    WebhookOutcome = "failed"
	WebhookDuplicate WebhookOutcome = "duplicate"
)

// WebhookLogEntry is append-only.
type WebhookLogEntry struct {
	ID                int64           `db:"id" json:"id"`
	Platform          Platform        `db:"platform" json:"platform"`
	ChannelID         *int64          `db:"channel_id" json:"channel_id,omitempty"`
	Payload           json.RawMessage `db:"payload" json:"payload"`
	Outcome           WebhookOutcome  `db:"outcome" json:"outcome"`
	Sender            string          `db:"sender" json:"sender,omitempty"`
	Recipient         string          `db:"recipient" json:"recipient,omitempty"`
	ProviderMessageID string          `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Error             string          `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
