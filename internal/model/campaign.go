// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignScheduled  CampaignStatus = "scheduled"
	CampaignProcessing CampaignStatus = "processing"
	CampaignPaused     CampaignStatus = "paused"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
	CampaignCancelled  CampaignStatus = "cancelled"
)

func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed || s == CampaignCancelled
}

// MessageTemplate is the content every recipient receives. Content may hold
// {name}, {identifier} or recipient variable placeholders.
type MessageTemplate struct {
	Type     ContentType `json:"type"`
	Content  string      `json:"content"`
	MediaURL string      `json:"media_url,omitempty"`
}

type Recipient struct {
	Identifier string            `json:"identifier"`
	Name       string            `json:"name,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

type Campaign struct {
	ID          int64           `json:"id"`
	ChannelID   int64           `json:"channel_id"`
	OwnerID     int64           `json:"owner_id"`
	Name        string          `json:"name"`
	Template    MessageTemplate `json:"template"`
	Recipients  []Recipient     `json:"recipients,omitempty"`
	BatchSize   int             `json:"batch_size"`
	BatchDelay  time.Duration   `json:"batch_delay"`
	Status      CampaignStatus  `json:"status"`
	TotalCount  int             `json:"total_count"`
	SentCount   int             `json:"sent_count"`
	FailedCount int             `json:"failed_count"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	NextTickAt  *time.Time      `json:"next_tick_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// CampaignStats is derived from delivery records, never stored independently.
type CampaignStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sending   int `json:"sending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Open reports whether records are still waiting for a terminal outcome.
func (s CampaignStats) Open() int {
	return s.Pending + s.Sending
}
