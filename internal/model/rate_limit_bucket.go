// internal/model/rate_limit_bucket.go
package model

import "time"

type RateLimitBucket struct {
	ChannelID            int64      `json:"channel_id"`
	HourBucket           time.Time  `json:"hour_bucket"`
	HourlyCount          int        `json:"hourly_count"`
	Day                  string     `json:"day"`
	DailyCount           int        `json:"daily_count"`
	LastSendAt           *time.Time `json:"last_send_at,omitempty"`
	CooldownUntil        *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveThrottles int        `json:"consecutive_throttles"`
}
