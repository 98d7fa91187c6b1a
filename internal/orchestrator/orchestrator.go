// Package orchestrator wires the registry, rate limiter, webhook normalizer,
// auto-reply engine and campaign dispatcher behind one entry point per
// trigger: webhook delivery, scheduler tick and transport event.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/autoreply"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/metrics"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/transport"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/webhook"
)

const defaultReplyTimeout = 10 * time.Second

type Deps struct {
	Registry   *channel.Registry
	Limiter    *ratelimit.Limiter
	Normalizer *webhook.Normalizer
	Engine     *autoreply.Engine
	Campaigns  *service.CampaignService
	Rules      *service.RuleService
	Messages   repository.MessageRepositoryInterface
	Transport  transport.Sender

	ReplyTimeout time.Duration
	Logger       zerolog.Logger
}

type Orchestrator struct {
	Deps
	logger zerolog.Logger
}

// New builds the facade and installs it as the normalizer's inbound handler.
func New(d Deps) *Orchestrator {
	if d.ReplyTimeout <= 0 {
		d.ReplyTimeout = defaultReplyTimeout
	}
	o := &Orchestrator{
		Deps:   d,
		logger: d.Logger.With().Str("component", "orchestrator").Logger(),
	}
	d.Normalizer.SetHandler(o)
	return o
}

// HandleWebhook ingests one provider delivery. The returned error is only
// non-nil when the delivery was rejected (bad signature, unknown platform).
func (o *Orchestrator) HandleWebhook(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
	return o.Normalizer.Ingest(ctx, req)
}

// Tick runs one dispatcher step for a campaign.
func (o *Orchestrator) Tick(ctx context.Context, campaignID int64) (*service.TickResult, error) {
	return o.Campaigns.Tick(ctx, campaignID)
}

// ApplyChannelEvent forwards a transport live-state change to the registry.
func (o *Orchestrator) ApplyChannelEvent(ctx context.Context, ev model.ChannelEvent) error {
	return o.Registry.ApplyEvent(ctx, ev)
}

// HandleInbound evaluates the auto-reply rules for a freshly stored inbound
// message and sends the winning reply.
func (o *Orchestrator) HandleInbound(ctx context.Context, ch *model.Channel, contact *model.Contact, msg *model.Message) error {
	action, err := o.Engine.Evaluate(ctx, ch, contact, msg)
	if err != nil {
		return fmt.Errorf("evaluating auto-reply: %w", err)
	}
	if action == nil {
		return nil
	}
	_, err = o.SendReply(ctx, ch, contact, action)
	return err
}

// ReplyContent turns a rule reply into transport content. Template text is
// personalised for the contact.
func ReplyContent(reply model.Reply, contact *model.Contact) transport.Content {
	switch reply.Type {
	case model.ReplyPhoto:
		return transport.Content{Type: model.ContentImage, Text: reply.Text, MediaURL: reply.MediaURL}
	case model.ReplyDocument:
		return transport.Content{Type: model.ContentDocument, Text: reply.Text, MediaURL: reply.MediaURL, FileName: reply.FileName}
	case model.ReplyTemplate:
		return transport.Content{
			Type:         model.ContentTemplate,
			Text:         service.RenderTemplate(reply.Text, service.ContactData(contact)),
			TemplateName: reply.TemplateName,
		}
	}
	return transport.Content{Type: model.ContentText, Text: reply.Text}
}

// SendReply dispatches an auto-reply. Replies are best effort: a rate-limit
// denial drops the reply and returns nil, nil.
func (o *Orchestrator) SendReply(ctx context.Context, ch *model.Channel, contact *model.Contact, action *autoreply.Action) (*model.Message, error) {
	log := o.logger.With().
		Int64("channel_id", ch.ID).
		Int64("rule_id", action.RuleID).
		Str("recipient", contact.Identifier).
		Logger()

	if !channel.Sendable(ch) {
		metrics.AutoRepliesMatched.WithLabelValues("dropped").Inc()
		return nil, fmt.Errorf("%w: channel %d is %s", appErrors.ErrChannelNotSendable, ch.ID, ch.LiveState)
	}

	res, err := o.Limiter.TryReserve(ctx, ch)
	if err != nil || !res.Allowed {
		metrics.AutoRepliesMatched.WithLabelValues("dropped").Inc()
		log.Info().Str("reason", res.Reason).Msg("auto-reply dropped by rate limiter")
		return nil, nil
	}

	content := ReplyContent(action.Reply, contact)

	sendCtx, cancel := context.WithTimeout(ctx, o.ReplyTimeout)
	defer cancel()
	providerID, sendErr := o.Transport.Send(sendCtx, ch.ID, contact.Identifier, content)

	pctx := context.WithoutCancel(ctx)
	if sendErr != nil {
		result := "failed"
		if appErrors.IsThrottle(sendErr) {
			result = "throttled"
		}
		metrics.SendsTotal.WithLabelValues("auto_reply", result).Inc()
		if err := o.Limiter.RecordFailure(pctx, ch.ID, sendErr); err != nil {
			log.Warn().Err(err).Msg("recording send failure")
		}
		if errors.Is(sendErr, context.DeadlineExceeded) {
			sendErr = fmt.Errorf("%w: reply timed out after %s", appErrors.ErrTransportSendFailed, o.ReplyTimeout)
		}
		log.Warn().Err(sendErr).Msg("auto-reply send failed")
		return nil, fmt.Errorf("sending auto-reply: %w", sendErr)
	}

	metrics.SendsTotal.WithLabelValues("auto_reply", "sent").Inc()
	if err := o.Limiter.RecordSuccess(pctx, ch.ID); err != nil {
		log.Warn().Err(err).Msg("recording send success")
	}

	now := time.Now()
	ruleID := action.RuleID
	out := &model.Message{
		ProviderMessageID: providerID,
		ChannelID:         ch.ID,
		ContactID:         contact.ID,
		Direction:         model.DirectionOutbound,
		ContentType:       content.Type,
		Body:              content.Text,
		MediaURL:          content.MediaURL,
		IsAutoReply:       true,
		SourceRuleID:      &ruleID,
		CreatedAt:         now,
	}
	out.StampStatus(model.MessageStatusSent, now)
	if providerID != "" {
		if _, err := o.Messages.Insert(pctx, out); err != nil {
			log.Warn().Err(err).Str("provider_message_id", providerID).Msg("storing auto-reply message")
		}
	}
	log.Info().Str("provider_message_id", providerID).Msg("auto-reply sent")
	return out, nil
}

var _ webhook.InboundHandler = (*Orchestrator)(nil)
