// Package channel tracks connected messaging identities and their live state.
// Only transport events change live state; everything else reads.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/queue"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

type Registry struct {
	repo   repository.ChannelRepositoryInterface
	logger zerolog.Logger
	now    func() time.Time
}

func NewRegistry(repo repository.ChannelRepositoryInterface, logger zerolog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger.With().Str("component", "channel_registry").Logger(),
		now:    time.Now,
	}
}

func (r *Registry) Get(ctx context.Context, channelID int64) (*model.Channel, error) {
	return r.repo.GetByID(ctx, channelID)
}

// IsSendable is true only for an active channel whose live state is connected.
func (r *Registry) IsSendable(ctx context.Context, channelID int64) (bool, error) {
	ch, err := r.repo.GetByID(ctx, channelID)
	if err != nil {
		return false, err
	}
	return Sendable(ch), nil
}

func Sendable(ch *model.Channel) bool {
	return ch.Active && ch.LiveState == model.LiveStateConnected
}

func (r *Registry) OwnerOf(ctx context.Context, channelID int64) (int64, error) {
	ch, err := r.repo.GetByID(ctx, channelID)
	if err != nil {
		return 0, err
	}
	return ch.OwnerID, nil
}

// ResolveAccount maps a provider account to its channel; nil when unknown.
func (r *Registry) ResolveAccount(ctx context.Context, platform model.Platform, externalAccountID string) (*model.Channel, error) {
	return r.repo.GetByAccount(ctx, platform, externalAccountID)
}

// ApplyEvent records a live-state change. Events older than the channel's
// last update are ignored.
func (r *Registry) ApplyEvent(ctx context.Context, ev model.ChannelEvent) error {
	if !ev.State.Valid() {
		return appErrors.Validation("unknown live state %q", ev.State)
	}

	var ch *model.Channel
	var err error
	switch {
	case ev.ChannelID != 0:
		ch, err = r.repo.GetByID(ctx, ev.ChannelID)
	case ev.Platform != "" && ev.ExternalAccountID != "":
		ch, err = r.repo.GetByAccount(ctx, ev.Platform, ev.ExternalAccountID)
		if err == nil && ch == nil {
			err = fmt.Errorf("%w: no channel for %s account %s", appErrors.ErrNotFound, ev.Platform, ev.ExternalAccountID)
		}
	default:
		return appErrors.Validation("event names no channel")
	}
	if err != nil {
		return err
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	if ch.UpdatedAt != nil && at.Before(*ch.UpdatedAt) {
		r.logger.Debug().Int64("channel_id", ch.ID).Str("state", string(ev.State)).Msg("stale channel event ignored")
		return nil
	}
	if ch.LiveState == ev.State {
		return nil
	}

	if err := r.repo.UpdateLiveState(ctx, ch.ID, ev.State, at); err != nil {
		return fmt.Errorf("updating live state of channel %d: %w", ch.ID, err)
	}
	r.logger.Info().
		Int64("channel_id", ch.ID).
		Str("from", string(ch.LiveState)).
		Str("to", string(ev.State)).
		Msg("channel live state changed")
	return nil
}

// Subscribe consumes transport live-state events from q.
func (r *Registry) Subscribe(ctx context.Context, q queue.Queue) error {
	return q.Subscribe(queue.TopicChannelEvents, func(payload any) error {
		var ev model.ChannelEvent
		if err := queue.Decode(payload, &ev); err != nil {
			r.logger.Error().Err(err).Msg("dropping undecodable channel event")
			return nil
		}
		return r.ApplyEvent(ctx, ev)
	})
}
