// internal/model/delivery_record.go
package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	// DeliverySending marks a record claimed by a tick; never visible between ticks.
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed || s == DeliveryCancelled
}

// DeliveryRecord tracks one recipient of one campaign.
type DeliveryRecord struct {
	ID                  int64          `db:"id" json:"id"`
	CampaignID          int64          `db:"campaign_id" json:"campaign_id"`
	Position            int            `db:"position" json:"position"`
	RecipientIdentifier string         `db:"recipient_identifier" json:"recipient_identifier"`
	Status              DeliveryStatus `db:"status" json:"status"`
	ProviderMessageID   string         `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Error               string         `db:"error" json:"error,omitempty"`
	ClaimToken          string         `db:"claim_token" json:"-"`
	SentAt              *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}
