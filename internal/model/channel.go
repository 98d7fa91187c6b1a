// internal/model/channel.go
package model

import "time"

// Platform is the provider kind behind a channel.
type Platform string

const (
	// PlatformWhatsApp is a QR-paired chat-app session.
	PlatformWhatsApp Platform = "whatsapp"
	// PlatformTelegram is a bot account.
	PlatformTelegram Platform = "telegram"
	// PlatformWhatsAppBusiness is a business-messaging API account.
	PlatformWhatsAppBusiness Platform = "whatsapp_business"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformWhatsApp, PlatformTelegram, PlatformWhatsAppBusiness}

func (p Platform) Valid() bool {
	switch p {
	case PlatformWhatsApp, PlatformTelegram, PlatformWhatsAppBusiness:
		return true
	}
	return false
}

// LiveState is the transport-reported connection state of a channel.
type LiveState string

const (
	LiveStateConnecting   LiveState = "connecting"
	LiveStateConnected    LiveState = "connected"
	LiveStateDisconnected LiveState = "disconnected"
	LiveStateFailed       LiveState = "failed"
)

func (s LiveState) Valid() bool {
	switch s {
	case LiveStateConnecting, LiveStateConnected, LiveStateDisconnected, LiveStateFailed:
		return true
	}
	return false
}

type Channel struct {
	ID                int64      `db:"id" json:"id"`
	Platform          Platform   `db:"platform" json:"platform"`
	OwnerID           int64      `db:"owner_id" json:"owner_id"`
	ExternalAccountID string     `db:"external_account_id" json:"external_account_id"`
	LiveState         LiveState  `db:"live_state" json:"live_state"`
	AutoReplyEnabled  bool       `db:"auto_reply_enabled" json:"auto_reply_enabled"`
	AutoSaveContacts  bool       `db:"auto_save_contacts" json:"auto_save_contacts"`
	Active            bool       `db:"active" json:"active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ChannelEvent is a live-state change emitted by the transport service.
type ChannelEvent struct {
	ChannelID         int64     `json:"channel_id"`
	Platform          Platform  `json:"platform,omitempty"`
	ExternalAccountID string    `json:"external_account_id,omitempty"`
	State             LiveState `json:"state"`
	OccurredAt        time.Time `json:"occurred_at"`
}
