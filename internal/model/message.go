// internal/model/message.go
package model

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentDocument ContentType = "document"
	ContentSticker  ContentType = "sticker"
	ContentLocation ContentType = "location"
	ContentTemplate ContentType = "template"
	ContentUnknown  ContentType = "unknown"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case MessageStatusPending:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return -1
}

func (s MessageStatus) Valid() bool {
	return s == MessageStatusFailed || s.rank() >= 0
}

// CanAdvanceTo reports whether a message in status s may move to next.
// Status only moves forward along pending -> sent -> delivered -> read;
// failed is reachable from pending or sent and is final.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	if s == MessageStatusFailed || !next.Valid() {
		return false
	}
	if next == MessageStatusFailed {
		return s == MessageStatusPending || s == MessageStatusSent
	}
	return next.rank() > s.rank()
}

type Message struct {
	ID                int64         `db:"id" json:"id"`
	ProviderMessageID string        `db:"provider_message_id" json:"provider_message_id"`
	ChannelID         int64         `db:"channel_id" json:"channel_id"`
	ContactID         int64         `db:"contact_id" json:"contact_id"`
	Direction         Direction     `db:"direction" json:"direction"`
	ContentType       ContentType   `db:"content_type" json:"content_type"`
	Body              string        `db:"body" json:"body"`
	MediaURL          string        `db:"media_url" json:"media_url,omitempty"`
	Status            MessageStatus `db:"status" json:"status"`
	IsAutoReply       bool          `db:"is_auto_reply" json:"is_auto_reply"`
	SourceRuleID      *int64        `db:"source_rule_id" json:"source_rule_id,omitempty"`
	CampaignID        *int64        `db:"campaign_id" json:"campaign_id,omitempty"`
	Error             string        `db:"error" json:"error,omitempty"`
	ProviderTimestamp *time.Time    `db:"provider_timestamp" json:"provider_timestamp,omitempty"`
	SentAt            *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time    `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time    `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// StampStatus sets the timestamp column that belongs to status.
func (m *Message) StampStatus(status MessageStatus, at time.Time) {
	m.Status = status
	switch status {
	case MessageStatusSent:
		m.SentAt = &at
	case MessageStatusDelivered:
		m.DeliveredAt = &at
	case MessageStatusRead:
		m.ReadAt = &at
	case MessageStatusFailed:
		m.FailedAt = &at
	}
}
