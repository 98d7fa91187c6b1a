// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/metrics"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/transport"
)

const (
	DefaultBatchSize = 50
	MaxBatchSize     = 1000
	MaxRecipients    = 100000

	defaultDeferDelay      = 30 * time.Second
	defaultSendConcurrency = 4
	defaultClaimLease      = 10 * time.Minute
	defaultLiveCheckAfter  = time.Minute
)

// CampaignService runs the broadcast state machine. Every tick claims a batch
// of pending delivery records, reserves a rate-limit slot for each and hands
// them to the transport.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	DeliveryRepo repository.DeliveryRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	Registry     *channel.Registry
	Limiter      *ratelimit.Limiter
	Transport    transport.Sender
	Logger       zerolog.Logger

	// DeferDelay is how long a tick waits before retrying a disconnected channel.
	DeferDelay time.Duration
	// SendConcurrency bounds parallel sends within one batch.
	SendConcurrency int
	// ClaimLease is how long a claimed record may stay in sending before
	// another tick takes it over. It must outlast a full batch of sends.
	ClaimLease time.Duration
	// LiveCheckAfter is the registry state age past which a tick asks the
	// transport whether the channel is still live.
	LiveCheckAfter time.Duration

	Now func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepositoryInterface,
	deliveries repository.DeliveryRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	registry *channel.Registry,
	limiter *ratelimit.Limiter,
	sender transport.Sender,
	logger zerolog.Logger,
) *CampaignService {
	return &CampaignService{
		CampaignRepo:    campaigns,
		DeliveryRepo:    deliveries,
		ContactRepo:     contacts,
		MessageRepo:     messages,
		Registry:        registry,
		Limiter:         limiter,
		Transport:       sender,
		Logger:          logger.With().Str("component", "campaigns").Logger(),
		DeferDelay:      defaultDeferDelay,
		SendConcurrency: defaultSendConcurrency,
		ClaimLease:      defaultClaimLease,
		LiveCheckAfter:  defaultLiveCheckAfter,
		Now:             time.Now,
	}
}

type CreateCampaignInput struct {
	ChannelID   int64                 `json:"channel_id"`
	Name        string                `json:"name"`
	Template    model.MessageTemplate `json:"template"`
	Recipients  []model.Recipient     `json:"recipients"`
	BatchSize   int                   `json:"batch_size"`
	BatchDelay  time.Duration         `json:"batch_delay"`
	ScheduledAt *time.Time            `json:"scheduled_at,omitempty"`
}

// CampaignDetails is a campaign together with stats derived from its
// delivery records.
type CampaignDetails struct {
	*model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

// TickResult summarises one tick.
type TickResult struct {
	CampaignID int64                `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	Skipped    bool                 `json:"skipped,omitempty"`
	Claimed    int                  `json:"claimed"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	Deferred   int                  `json:"deferred"`
	DenyReason string               `json:"deny_reason,omitempty"`
	NextTickAt *time.Time           `json:"next_tick_at,omitempty"`
}

func validateTemplate(t *model.MessageTemplate) error {
	if t.Type == "" {
		t.Type = model.ContentText
	}
	switch t.Type {
	case model.ContentText:
		if strings.TrimSpace(t.Content) == "" {
			return appErrors.Validation("template content cannot be empty")
		}
	case model.ContentImage, model.ContentVideo, model.ContentAudio, model.ContentDocument:
		if t.MediaURL == "" {
			return appErrors.Validation("%s template requires media_url", t.Type)
		}
	default:
		return appErrors.Validation("unsupported template type %q", t.Type)
	}
	return nil
}

func (in *CreateCampaignInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return appErrors.Validation("name is required")
	}
	if in.ChannelID == 0 {
		return appErrors.Validation("channel_id is required")
	}
	if len(in.Recipients) == 0 {
		return appErrors.Validation("recipients cannot be empty")
	}
	if len(in.Recipients) > MaxRecipients {
		return appErrors.Validation("at most %d recipients per campaign", MaxRecipients)
	}
	for i := range in.Recipients {
		in.Recipients[i].Identifier = strings.TrimSpace(in.Recipients[i].Identifier)
		if in.Recipients[i].Identifier == "" {
			return appErrors.Validation("recipient %d has no identifier", i)
		}
	}
	if in.BatchSize <= 0 {
		in.BatchSize = DefaultBatchSize
	}
	if in.BatchSize > MaxBatchSize {
		return appErrors.Validation("batch_size cannot exceed %d", MaxBatchSize)
	}
	if in.BatchDelay < 0 {
		return appErrors.Validation("batch_delay cannot be negative")
	}
	return validateTemplate(&in.Template)
}

// authorizeChannel loads a channel and checks it belongs to actorID.
func (s *CampaignService) authorizeChannel(ctx context.Context, actorID, channelID int64) (*model.Channel, error) {
	ch, err := s.Registry.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.OwnerID != actorID {
		return nil, fmt.Errorf("%w: channel %d", appErrors.ErrForbidden, channelID)
	}
	return ch, nil
}

func (s *CampaignService) owned(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != actorID {
		return nil, fmt.Errorf("%w: campaign %d", appErrors.ErrForbidden, campaignID)
	}
	return c, nil
}

// CreateCampaign stores a draft campaign, or a scheduled one when ScheduledAt
// is in the future. The channel must be connected at creation time.
func (s *CampaignService) CreateCampaign(ctx context.Context, actorID int64, in CreateCampaignInput) (*model.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ch, err := s.authorizeChannel(ctx, actorID, in.ChannelID)
	if err != nil {
		return nil, err
	}
	if !channel.Sendable(ch) {
		return nil, fmt.Errorf("%w: channel %d is %s", appErrors.ErrChannelNotSendable, ch.ID, ch.LiveState)
	}

	c := &model.Campaign{
		ChannelID:  ch.ID,
		OwnerID:    ch.OwnerID,
		Name:       in.Name,
		Template:   in.Template,
		Recipients: in.Recipients,
		BatchSize:  in.BatchSize,
		BatchDelay: in.BatchDelay,
		Status:     model.CampaignDraft,
	}
	if in.ScheduledAt != nil && in.ScheduledAt.After(s.Now()) {
		at := in.ScheduledAt.UTC()
		c.ScheduledAt = &at
		c.Status = model.CampaignScheduled
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}
	s.Logger.Info().
		Int64("campaign_id", c.ID).
		Int64("channel_id", c.ChannelID).
		Int("recipients", len(c.Recipients)).
		Str("status", string(c.Status)).
		Msg("campaign created")
	return c, nil
}

func (s *CampaignService) StartCampaign(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error) {
	c, err := s.owned(ctx, actorID, campaignID)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, c)
}

func (s *CampaignService) start(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	if c.Status != model.CampaignDraft && c.Status != model.CampaignScheduled {
		return nil, appErrors.InvalidTransition(string(c.Status), string(model.CampaignProcessing))
	}
	ok, err := s.CampaignRepo.Start(ctx, c, s.Now())
	if err != nil {
		return nil, fmt.Errorf("starting campaign %d: %w", c.ID, err)
	}
	if !ok {
		return nil, s.transitionError(ctx, c.ID, model.CampaignProcessing)
	}
	s.Logger.Info().Int64("campaign_id", c.ID).Int("recipients", len(c.Recipients)).Msg("campaign started")
	return s.CampaignRepo.GetByID(ctx, c.ID)
}

// PromoteDue starts every scheduled campaign whose time has come.
func (s *CampaignService) PromoteDue(ctx context.Context) (int, error) {
	due, err := s.CampaignRepo.ListDueScheduled(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	started := 0
	for _, c := range due {
		if _, err := s.start(ctx, c); err != nil {
			if errors.Is(err, appErrors.ErrInvalidStateTransition) {
				continue
			}
			s.Logger.Error().Err(err).Int64("campaign_id", c.ID).Msg("failed to start scheduled campaign")
			continue
		}
		started++
	}
	return started, nil
}

// TickableCampaigns lists processing campaigns whose next tick is due.
func (s *CampaignService) TickableCampaigns(ctx context.Context) ([]int64, error) {
	campaigns, err := s.CampaignRepo.ListTickable(ctx, s.Now())
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(campaigns))
	for i, c := range campaigns {
		out[i] = c.ID
	}
	return out, nil
}

func (s *CampaignService) transitionError(ctx context.Context, campaignID int64, to model.CampaignStatus) error {
	current, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return appErrors.InvalidTransition(string(current.Status), string(to))
}

func (s *CampaignService) transition(ctx context.Context, actorID, campaignID int64, from []model.CampaignStatus, to model.CampaignStatus) (*model.Campaign, error) {
	if _, err := s.owned(ctx, actorID, campaignID); err != nil {
		return nil, err
	}
	ok, err := s.CampaignRepo.Transition(ctx, campaignID, from, to, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionError(ctx, campaignID, to)
	}
	s.Logger.Info().Int64("campaign_id", campaignID).Str("status", string(to)).Msg("campaign status changed")
	return s.CampaignRepo.GetByID(ctx, campaignID)
}

func (s *CampaignService) PauseCampaign(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error) {
	return s.transition(ctx, actorID, campaignID, []model.CampaignStatus{model.CampaignProcessing}, model.CampaignPaused)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error) {
	return s.transition(ctx, actorID, campaignID, []model.CampaignStatus{model.CampaignPaused}, model.CampaignProcessing)
}

// CancelCampaign stops future ticks and cancels every pending record.
// Records already claimed by a running tick finish with their real outcome.
func (s *CampaignService) CancelCampaign(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error) {
	from := []model.CampaignStatus{model.CampaignProcessing, model.CampaignScheduled, model.CampaignPaused}
	if _, err := s.transition(ctx, actorID, campaignID, from, model.CampaignCancelled); err != nil {
		return nil, err
	}
	n, err := s.DeliveryRepo.CancelPending(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("cancelling pending deliveries: %w", err)
	}
	if err := s.saveStats(ctx, campaignID, nil, ""); err != nil {
		return nil, err
	}
	s.Logger.Info().Int64("campaign_id", campaignID).Int("cancelled_records", n).Msg("campaign cancelled")
	return s.CampaignRepo.GetByID(ctx, campaignID)
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, actorID, campaignID int64) error {
	c, err := s.owned(ctx, actorID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.CampaignRepo.Delete(ctx, campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.InvalidTransition(string(c.Status), "deleted")
	}
	return nil
}

// GetCampaignDetails returns the campaign with stats recomputed from its
// delivery records.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, actorID, campaignID int64) (*CampaignDetails, error) {
	c, err := s.owned(ctx, actorID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.DeliveryRepo.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if stats.Total == 0 {
		// not started yet
		stats.Total = c.TotalCount
		stats.Pending = c.TotalCount
	}
	return &CampaignDetails{Campaign: c, Stats: stats}, nil
}

// ListCampaigns fetches the actor's campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, actorID int64, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.List(ctx, actorID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) saveStats(ctx context.Context, campaignID int64, nextTickAt *time.Time, lastError string) error {
	stats, err := s.DeliveryRepo.Stats(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("computing stats: %w", err)
	}
	return s.CampaignRepo.SaveProgress(ctx, campaignID, stats, nextTickAt, lastError)
}

// Tick dispatches the next batch of a processing campaign. It is a no-op for
// any other status. A rate-limit denial defers the denied record and every
// later one in the batch to a later tick. Only a persistence fault fails the
// campaign; per-recipient send failures are recorded and counted.
func (s *CampaignService) Tick(ctx context.Context, campaignID int64) (*TickResult, error) {
	started := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(started).Seconds()) }()

	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	res := &TickResult{CampaignID: c.ID, Status: c.Status}
	if c.Status != model.CampaignProcessing {
		res.Skipped = true
		metrics.CampaignTicks.WithLabelValues("skipped").Inc()
		return res, nil
	}

	log := s.Logger.With().Int64("campaign_id", c.ID).Int64("channel_id", c.ChannelID).Logger()

	err = s.dispatch(ctx, c, res, log)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// shutdown: unsent claims were released, the next tick resumes
		log.Warn().Err(err).Msg("campaign tick interrupted")
		metrics.CampaignTicks.WithLabelValues("interrupted").Inc()
		return res, err
	}
	if err != nil {
		log.Error().Err(err).Msg("campaign tick failed, failing campaign")
		metrics.CampaignTicks.WithLabelValues("failed").Inc()
		if _, cerr := s.CampaignRepo.Complete(context.WithoutCancel(ctx), c.ID, model.CampaignFailed, err.Error(), s.Now()); cerr != nil {
			log.Error().Err(cerr).Msg("marking campaign failed")
		}
		res.Status = model.CampaignFailed
		return res, err
	}
	metrics.CampaignTicks.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *CampaignService) dispatch(ctx context.Context, c *model.Campaign, res *TickResult, log zerolog.Logger) error {
	ch, err := s.Registry.Get(ctx, c.ChannelID)
	if err != nil {
		return fmt.Errorf("loading channel: %w", err)
	}

	token := uuid.NewString()
	staleBefore := s.Now().Add(-s.ClaimLease)
	claimed, err := s.DeliveryRepo.ClaimPending(ctx, c.ID, c.BatchSize, token, staleBefore)
	if err != nil {
		return fmt.Errorf("claiming batch: %w", err)
	}
	res.Claimed = len(claimed)
	if len(claimed) == 0 {
		return s.finish(ctx, c, res, nil, "")
	}

	// a cancel or pause may have landed between the load and the claim
	current, err := s.CampaignRepo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.Status != model.CampaignProcessing {
		if err := s.DeliveryRepo.Release(ctx, ids(claimed), token); err != nil {
			return err
		}
		if current.Status == model.CampaignCancelled {
			if _, err := s.DeliveryRepo.CancelPending(ctx, c.ID); err != nil {
				return err
			}
		}
		res.Claimed, res.Skipped, res.Status = 0, true, current.Status
		return nil
	}

	if !channel.Sendable(ch) || !s.confirmLive(ctx, ch, log) {
		if err := s.DeliveryRepo.Release(context.WithoutCancel(ctx), ids(claimed), token); err != nil {
			return err
		}
		next := s.Now().Add(s.DeferDelay)
		res.Deferred = len(claimed)
		res.NextTickAt = &next
		log.Warn().Str("live_state", string(ch.LiveState)).Msg("channel not sendable, deferring batch")
		return s.saveStats(ctx, c.ID, &next, appErrors.ErrChannelNotSendable.Error())
	}

	// reserve in recipient order, stop at the first denial
	allowed := claimed
	var next *time.Time
	for i, rec := range claimed {
		r, err := s.Limiter.TryReserve(ctx, ch)
		if err == nil && r.Allowed {
			continue
		}
		allowed = claimed[:i]
		if err := s.DeliveryRepo.Release(context.WithoutCancel(ctx), ids(claimed[i:]), token); err != nil {
			return err
		}
		retryAt := r.RetryAt
		next = &retryAt
		res.Deferred = len(claimed) - i
		res.DenyReason = r.Reason
		log.Info().
			Int64("delivery_id", rec.ID).
			Str("reason", r.Reason).
			Time("retry_at", retryAt).
			Int("deferred", res.Deferred).
			Msg("rate limited, deferring rest of batch")
		break
	}

	if err := s.sendBatch(ctx, c, ch, allowed, token, res); err != nil {
		return err
	}

	if next == nil && len(claimed) == c.BatchSize && c.BatchDelay > 0 {
		at := s.Now().Add(c.BatchDelay)
		next = &at
	}
	return s.finish(ctx, c, res, next, "")
}

func ids(records []*model.DeliveryRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// confirmLive asks the transport about a channel whose registry state has not
// changed for a while. A failed probe trusts the registry.
func (s *CampaignService) confirmLive(ctx context.Context, ch *model.Channel, log zerolog.Logger) bool {
	if ch.UpdatedAt != nil && s.Now().Sub(*ch.UpdatedAt) < s.LiveCheckAfter {
		return true
	}
	live, err := s.Transport.IsLive(ctx, ch.ID)
	if err != nil {
		log.Warn().Err(err).Msg("channel live check failed, trusting registry")
		return true
	}
	return live
}

type sendOutcome struct {
	sent     bool
	failed   bool
	released bool
}

func (s *CampaignService) sendBatch(ctx context.Context, c *model.Campaign, ch *model.Channel, records []*model.DeliveryRecord, token string, res *TickResult) error {
	if len(records) == 0 {
		return nil
	}
	outcomes := make([]sendOutcome, len(records))

	var g errgroup.Group
	g.SetLimit(max(1, s.SendConcurrency))
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			out, err := s.deliver(ctx, c, ch, rec, token)
			outcomes[i] = out
			return err
		})
	}
	err := g.Wait()

	for _, o := range outcomes {
		if o.sent {
			res.Sent++
		}
		if o.failed {
			res.Failed++
		}
		if o.released {
			res.Deferred++
		}
	}
	return err
}

// deliver sends one record and stores its outcome. The returned error is a
// persistence fault; a failed send is an outcome, not an error. A record whose
// tick is cancelled before or during the send goes back to pending.
func (s *CampaignService) deliver(ctx context.Context, c *model.Campaign, ch *model.Channel, rec *model.DeliveryRecord, token string) (sendOutcome, error) {
	if ctx.Err() != nil {
		return s.release(ctx, ch, rec, token)
	}

	recipient := model.Recipient{Identifier: rec.RecipientIdentifier}
	if rec.Position >= 0 && rec.Position < len(c.Recipients) {
		recipient = c.Recipients[rec.Position]
	}
	content := transport.Content{
		Type:     c.Template.Type,
		Text:     RenderTemplate(c.Template.Content, RecipientData(recipient)),
		MediaURL: c.Template.MediaURL,
	}

	providerID, sendErr := s.Transport.Send(ctx, ch.ID, recipient.Identifier, content)
	// outcomes are persisted even when the tick's context is gone
	pctx := context.WithoutCancel(ctx)
	now := s.Now()

	if sendErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		return s.release(ctx, ch, rec, token)
	}
	if sendErr != nil {
		if appErrors.IsThrottle(sendErr) {
			metrics.SendsTotal.WithLabelValues("campaign", "throttled").Inc()
		} else {
			metrics.SendsTotal.WithLabelValues("campaign", "failed").Inc()
		}
		if err := s.Limiter.RecordFailure(pctx, ch.ID, sendErr); err != nil {
			s.Logger.Warn().Err(err).Int64("channel_id", ch.ID).Msg("recording send failure")
		}
		if err := s.DeliveryRepo.MarkFailed(pctx, rec.ID, sendErr.Error(), now); err != nil {
			return sendOutcome{}, fmt.Errorf("marking delivery %d failed: %w", rec.ID, err)
		}
		s.Logger.Warn().Err(sendErr).Int64("campaign_id", c.ID).Int64("delivery_id", rec.ID).Msg("campaign send failed")
		return sendOutcome{failed: true}, nil
	}

	metrics.SendsTotal.WithLabelValues("campaign", "sent").Inc()
	if err := s.Limiter.RecordSuccess(pctx, ch.ID); err != nil {
		s.Logger.Warn().Err(err).Int64("channel_id", ch.ID).Msg("recording send success")
	}
	if err := s.DeliveryRepo.MarkSent(pctx, rec.ID, providerID, now); err != nil {
		return sendOutcome{}, fmt.Errorf("marking delivery %d sent: %w", rec.ID, err)
	}
	s.recordOutbound(pctx, c, ch, recipient, content, providerID, now)
	return sendOutcome{sent: true}, nil
}

func (s *CampaignService) release(ctx context.Context, ch *model.Channel, rec *model.DeliveryRecord, token string) (sendOutcome, error) {
	pctx := context.WithoutCancel(ctx)
	if err := s.DeliveryRepo.Release(pctx, []int64{rec.ID}, token); err != nil {
		return sendOutcome{}, fmt.Errorf("releasing delivery %d: %w", rec.ID, err)
	}
	if err := s.Limiter.Refund(pctx, ch.ID); err != nil {
		s.Logger.Warn().Err(err).Int64("channel_id", ch.ID).Msg("refunding reservation")
	}
	return sendOutcome{released: true}, nil
}

// recordOutbound keeps the sent message so later status webhooks can advance it.
func (s *CampaignService) recordOutbound(ctx context.Context, c *model.Campaign, ch *model.Channel, r model.Recipient, content transport.Content, providerID string, at time.Time) {
	if providerID == "" || s.MessageRepo == nil || s.ContactRepo == nil {
		return
	}
	contact, err := s.ContactRepo.Upsert(ctx, &model.Contact{
		OwnerID:           ch.OwnerID,
		Platform:          ch.Platform,
		Identifier:        r.Identifier,
		DisplayName:       r.Name,
		Saved:             ch.AutoSaveContacts,
		LastInteractionAt: at,
	})
	if err != nil {
		s.Logger.Warn().Err(err).Int64("campaign_id", c.ID).Msg("upserting campaign contact")
		return
	}
	campaignID := c.ID
	msg := &model.Message{
		ProviderMessageID: providerID,
		ChannelID:         ch.ID,
		ContactID:         contact.ID,
		Direction:         model.DirectionOutbound,
		ContentType:       content.Type,
		Body:              content.Text,
		MediaURL:          content.MediaURL,
		CampaignID:        &campaignID,
		CreatedAt:         at,
	}
	msg.StampStatus(model.MessageStatusSent, at)
	if _, err := s.MessageRepo.Insert(ctx, msg); err != nil {
		s.Logger.Warn().Err(err).Str("provider_message_id", providerID).Msg("storing outbound message")
	}
}

// finish stores progress and completes the campaign once no record is open.
func (s *CampaignService) finish(ctx context.Context, c *model.Campaign, res *TickResult, next *time.Time, lastError string) error {
	pctx := context.WithoutCancel(ctx)
	stats, err := s.DeliveryRepo.Stats(pctx, c.ID)
	if err != nil {
		return fmt.Errorf("computing stats: %w", err)
	}
	if stats.Open() > 0 {
		res.NextTickAt = next
		return s.CampaignRepo.SaveProgress(pctx, c.ID, stats, next, lastError)
	}

	if err := s.CampaignRepo.SaveProgress(pctx, c.ID, stats, nil, lastError); err != nil {
		return err
	}
	ok, err := s.CampaignRepo.Complete(pctx, c.ID, model.CampaignCompleted, "", s.Now())
	if err != nil {
		return fmt.Errorf("completing campaign: %w", err)
	}
	if ok {
		res.Status = model.CampaignCompleted
		s.Logger.Info().
			Int64("campaign_id", c.ID).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Msg("campaign completed")
	}
	return nil
}
