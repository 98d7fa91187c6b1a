// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition is an illegal campaign state change. Not retried.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrChannelNotSendable means the channel is not connected; reconnect before retrying.
	ErrChannelNotSendable = errors.New("channel not sendable")
	// ErrRateLimited is a deferred outcome, not a failure.
	ErrRateLimited = errors.New("rate limited")
	// ErrWebhookAuthFailed rejects a webhook at ingestion.
	ErrWebhookAuthFailed = errors.New("webhook authentication failed")
	// ErrDuplicateMessage is a benign redelivery of an already stored message.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrTransportSendFailed is a per-recipient send failure.
	ErrTransportSendFailed = errors.New("transport send failed")
	// ErrProviderThrottled is a transport failure that also escalates the channel cooldown.
	ErrProviderThrottled = fmt.Errorf("provider throttled: %w", ErrTransportSendFailed)

	ErrForbidden   = errors.New("forbidden")
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported platform")
)

// ErrCampaignNotFound is returned when a campaign id does not exist.
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Is(target error) bool { return target == ErrNotFound }

func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrRuleNotFound struct {
	RuleID int64
}

func (e *ErrRuleNotFound) Error() string {
	return fmt.Sprintf("auto-reply rule with ID %d not found", e.RuleID)
}

func (e *ErrRuleNotFound) Is(target error) bool { return target == ErrNotFound }

func NewRuleNotFound(id int64) error {
	return &ErrRuleNotFound{RuleID: id}
}

type ErrChannelNotFound struct {
	ChannelID int64
}

func (e *ErrChannelNotFound) Error() string {
	return fmt.Sprintf("channel with ID %d not found", e.ChannelID)
}

func (e *ErrChannelNotFound) Is(target error) bool { return target == ErrNotFound }

func NewChannelNotFound(id int64) error {
	return &ErrChannelNotFound{ChannelID: id}
}

// InvalidTransition wraps ErrInvalidStateTransition with the offending states.
func InvalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TransportError is what a transport collaborator returns for a failed send.
type TransportError struct {
	Throttled bool
	Message   string
}

func (e *TransportError) Error() string {
	if e.Throttled {
		return "provider throttled: " + e.Message
	}
	return "transport send failed: " + e.Message
}

func (e *TransportError) Is(target error) bool {
	if target == ErrTransportSendFailed {
		return true
	}
	return target == ErrProviderThrottled && e.Throttled
}

// IsThrottle reports whether err carries a provider throttle signal.
func IsThrottle(err error) bool {
	return errors.Is(err, ErrProviderThrottled)
}
