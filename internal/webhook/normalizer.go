// Package webhook turns provider webhook deliveries into stored inbound
// messages. Every delivery leaves exactly one audit log entry.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/metrics"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

// ChannelResolver maps a provider account to a channel; nil when unknown.
type ChannelResolver interface {
	ResolveAccount(ctx context.Context, platform model.Platform, externalAccountID string) (*model.Channel, error)
}

// InboundHandler receives every newly stored inbound message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, ch *model.Channel, contact *model.Contact, msg *model.Message) error
}

type Request struct {
	Platform model.Platform
	// Account is the optional account segment of the webhook URL.
	Account string
	Body    []byte
	Headers http.Header
	// ReadErr is set when the body could not be read in full; Body then
	// holds what was read.
	ReadErr error
}

type Result struct {
	Outcome         model.WebhookOutcome `json:"outcome"`
	ChannelID       int64                `json:"channel_id,omitempty"`
	Stored          int                  `json:"stored"`
	Duplicates      int                  `json:"duplicates"`
	StatusesApplied int                  `json:"statuses_applied"`
	Error           string               `json:"error,omitempty"`
}

type Normalizer struct {
	channels ChannelResolver
	messages repository.MessageRepositoryInterface
	logs     repository.WebhookLogRepositoryInterface
	secrets  func(model.Platform) string
	handler  InboundHandler
	logger   zerolog.Logger
	now      func() time.Time
}

func NewNormalizer(
	channels ChannelResolver,
	messages repository.MessageRepositoryInterface,
	logs repository.WebhookLogRepositoryInterface,
	secrets func(model.Platform) string,
	logger zerolog.Logger,
) *Normalizer {
	return &Normalizer{
		channels: channels,
		messages: messages,
		logs:     logs,
		secrets:  secrets,
		logger:   logger.With().Str("component", "webhook").Logger(),
		now:      time.Now,
	}
}

// SetHandler installs the downstream consumer of stored inbound messages.
func (n *Normalizer) SetHandler(h InboundHandler) { n.handler = h }

// Ingest processes one webhook delivery. The returned error is non-nil only
// when the delivery is rejected (authentication or unsupported platform);
// every other failure is reported in Result and the audit log.
func (n *Normalizer) Ingest(ctx context.Context, req Request) (*Result, error) {
	entry := &model.WebhookLogEntry{
		Platform:  req.Platform,
		Payload:   json.RawMessage(req.Body),
		CreatedAt: n.now(),
	}
	res := &Result{Outcome: model.WebhookSuccess}
	var errs []string

	defer func() {
		if len(errs) > 0 {
			res.Error = strings.Join(errs, "; ")
		}
		entry.Outcome = res.Outcome
		entry.Error = res.Error
		n.writeLog(ctx, entry)
	}()

	if req.ReadErr != nil {
		res.Outcome = model.WebhookFailed
		errs = append(errs, fmt.Sprintf("reading body: %v", req.ReadErr))
		n.logger.Warn().Err(req.ReadErr).Str("platform", string(req.Platform)).Msg("webhook body unreadable")
		return res, nil
	}

	if err := Verify(req.Platform, n.secrets(req.Platform), req.Body, req.Headers); err != nil {
		res.Outcome = model.WebhookFailed
		errs = append(errs, err.Error())
		n.logger.Warn().Err(err).Str("platform", string(req.Platform)).Msg("webhook rejected")
		return res, err
	}

	env, err := Parse(req.Platform, req.Account, req.Body)
	if err != nil {
		res.Outcome = model.WebhookFailed
		errs = append(errs, err.Error())
		return res, nil
	}
	describe(entry, env)

	ch, err := n.channels.ResolveAccount(ctx, req.Platform, env.AccountID)
	if err == nil && ch == nil {
		err = fmt.Errorf("%w: no active channel for account %s", appErrors.ErrNotFound, env.AccountID)
	}
	if err != nil {
		res.Outcome = model.WebhookFailed
		errs = append(errs, err.Error())
		return res, nil
	}
	res.ChannelID = ch.ID
	entry.ChannelID = &ch.ID

	for _, in := range env.Messages {
		dup, err := n.storeInbound(ctx, ch, in)
		switch {
		case errors.Is(err, errDownstream):
			res.Stored++
			errs = append(errs, err.Error())
		case err != nil:
			res.Outcome = model.WebhookFailed
			errs = append(errs, err.Error())
		case dup:
			res.Duplicates++
		default:
			res.Stored++
		}
	}

	for _, su := range env.Statuses {
		at := n.now()
		if su.Timestamp != nil {
			at = *su.Timestamp
		}
		applied, err := n.messages.AdvanceStatus(ctx, su.ProviderMessageID, su.Status, su.Error, at)
		if err != nil {
			res.Outcome = model.WebhookFailed
			errs = append(errs, fmt.Sprintf("status %s: %v", su.ProviderMessageID, err))
			continue
		}
		if applied {
			res.StatusesApplied++
		}
	}

	if res.Outcome == model.WebhookSuccess && res.Duplicates > 0 && res.Stored == 0 && len(env.Statuses) == 0 {
		res.Outcome = model.WebhookDuplicate
	}
	return res, nil
}

var errDownstream = errors.New("inbound handler")

// storeInbound persists one canonical message. A failure of the downstream
// handler is wrapped in errDownstream; the message stays stored.
func (n *Normalizer) storeInbound(ctx context.Context, ch *model.Channel, in Inbound) (bool, error) {
	log := n.logger.With().
		Int64("channel_id", ch.ID).
		Str("provider_message_id", in.ProviderMessageID).
		Logger()

	existing, err := n.messages.GetByProviderID(ctx, in.ProviderMessageID)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		log.Debug().Msg("duplicate webhook delivery")
		return true, nil
	}

	now := n.now()
	sender := &model.Contact{
		OwnerID:           ch.OwnerID,
		Platform:          ch.Platform,
		Identifier:        in.Sender,
		DisplayName:       in.SenderName,
		Saved:             ch.AutoSaveContacts,
		LastInteractionAt: now,
	}
	msg := &model.Message{
		ProviderMessageID: in.ProviderMessageID,
		ChannelID:         ch.ID,
		Direction:         model.DirectionInbound,
		ContentType:       in.ContentType,
		Body:              in.Body,
		MediaURL:          in.MediaURL,
		ProviderTimestamp: in.Timestamp,
		CreatedAt:         now,
	}
	msg.StampStatus(model.MessageStatusDelivered, now)

	contact, inserted, err := n.messages.InsertInbound(ctx, sender, msg)
	if err != nil {
		return false, fmt.Errorf("storing message: %w", err)
	}
	if !inserted {
		// lost the race against a concurrent delivery of the same id
		log.Debug().Msg("duplicate webhook delivery")
		return true, nil
	}
	log.Info().Str("sender", in.Sender).Str("content_type", string(in.ContentType)).Msg("inbound message stored")

	if n.handler != nil {
		if err := n.handler.HandleInbound(ctx, ch, contact, msg); err != nil {
			log.Error().Err(err).Msg("inbound handler failed")
			return false, fmt.Errorf("%w: %v", errDownstream, err)
		}
	}
	return false, nil
}

func describe(entry *model.WebhookLogEntry, env *Envelope) {
	switch {
	case len(env.Messages) > 0:
		m := env.Messages[0]
		entry.Sender = m.Sender
		entry.Recipient = m.Recipient
		entry.ProviderMessageID = m.ProviderMessageID
	case len(env.Statuses) > 0:
		s := env.Statuses[0]
		entry.Recipient = s.Recipient
		entry.ProviderMessageID = s.ProviderMessageID
	}
	if entry.Recipient == "" {
		entry.Recipient = env.AccountID
	}
}

func (n *Normalizer) writeLog(ctx context.Context, entry *model.WebhookLogEntry) {
	metrics.WebhooksReceived.WithLabelValues(string(entry.Platform), string(entry.Outcome)).Inc()
	if err := n.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		n.logger.Error().Err(err).Str("platform", string(entry.Platform)).Msg("writing webhook log")
	}
}
