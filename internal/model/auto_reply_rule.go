// internal/model/auto_reply_rule.go
package model

import (
	"fmt"
	"time"
)

type TriggerType string

const (
	TriggerExact      TriggerType = "exact"
	TriggerContains   TriggerType = "contains"
	TriggerStartsWith TriggerType = "starts_with"
	TriggerRegex      TriggerType = "regex"
	TriggerAll        TriggerType = "all"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerExact, TriggerContains, TriggerStartsWith, TriggerRegex, TriggerAll:
		return true
	}
	return false
}

type ReplyType string

const (
	ReplyText     ReplyType = "text"
	ReplyPhoto    ReplyType = "photo"
	ReplyDocument ReplyType = "document"
	ReplyTemplate ReplyType = "template"
)

func (r ReplyType) Valid() bool {
	switch r {
	case ReplyText, ReplyPhoto, ReplyDocument, ReplyTemplate:
		return true
	}
	return false
}

// Reply is the content a rule answers with. Which fields are meaningful
// depends on Type: Text for text (caption for media), MediaURL and FileName
// for photo/document, TemplateName plus Text (with {placeholders}) for template.
type Reply struct {
	Type         ReplyType `json:"type"`
	Text         string    `json:"text,omitempty"`
	MediaURL     string    `json:"media_url,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	TemplateName string    `json:"template_name,omitempty"`
}

func (r Reply) Validate() error {
	switch r.Type {
	case ReplyText:
		if r.Text == "" {
			return fmt.Errorf("text reply requires text")
		}
	case ReplyPhoto, ReplyDocument:
		if r.MediaURL == "" {
			return fmt.Errorf("%s reply requires media_url", r.Type)
		}
	case ReplyTemplate:
		if r.TemplateName == "" {
			return fmt.Errorf("template reply requires template_name")
		}
	default:
		return fmt.Errorf("unknown reply type %q", r.Type)
	}
	return nil
}

// BusinessHours is a daily window in the owner's timezone. Start after End
// means the window wraps midnight. An empty Days set means every day.
type BusinessHours struct {
	Start string         `json:"start"`
	End   string         `json:"end"`
	Days  []time.Weekday `json:"days,omitempty"`
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (b BusinessHours) Validate() error {
	start, err := parseClock(b.Start)
	if err != nil {
		return err
	}
	end, err := parseClock(b.End)
	if err != nil {
		return err
	}
	if start == end {
		return fmt.Errorf("business hours window is empty")
	}
	for _, d := range b.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}

// Contains reports whether t (already converted to the owner's location)
// falls inside the window. Invalid windows contain nothing.
func (b BusinessHours) Contains(t time.Time) bool {
	start, err := parseClock(b.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(b.End)
	if err != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()

	day := t.Weekday()
	if start > end && minute < end {
		// early-morning part of an overnight window belongs to the previous day
		day = (day + 6) % 7
	}
	if len(b.Days) > 0 && !containsWeekday(b.Days, day) {
		return false
	}

	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

type AutoReplyRule struct {
	ID               int64          `json:"id"`
	ChannelID        int64          `json:"channel_id"`
	Name             string         `json:"name"`
	TriggerType      TriggerType    `json:"trigger_type"`
	TriggerValue     *string        `json:"trigger_value,omitempty"`
	Reply            Reply          `json:"reply"`
	Active           bool           `json:"active"`
	Priority         int            `json:"priority"`
	BusinessHours    *BusinessHours `json:"business_hours,omitempty"`
	OnlyFirstMessage bool           `json:"only_first_message"`
	UsageCount       int64          `json:"usage_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

// Trigger returns the trigger value or "" for the fallback rule.
func (r *AutoReplyRule) Trigger() string {
	if r.TriggerValue == nil {
		return ""
	}
	return *r.TriggerValue
}
