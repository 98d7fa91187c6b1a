package controller

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/queue"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
)

// HeaderEventToken authenticates live-state events pushed by the transport service.
const HeaderEventToken = "X-Transport-Token"

type ChannelController struct {
	Registry *channel.Registry
	Limiter  *ratelimit.Limiter
	// Queue carries accepted events to the registry subscriber.
	Queue queue.Queue
	// EventToken guards POST /channels/events; empty rejects every event.
	EventToken string
	Logger     zerolog.Logger
}

type channelStatusResponse struct {
	Channel   *model.Channel     `json:"channel"`
	Sendable  bool               `json:"sendable"`
	RateLimit ratelimit.Snapshot `json:"rate_limit"`
}

// GetRateLimit reports the channel's bucket and whether it can send right now.
func (c *ChannelController) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	id, err := handler.ParseID(r, "channelID")
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	ch, err := c.Registry.Get(r.Context(), id)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if ch.OwnerID != actor {
		handler.WriteError(w, c.Logger, fmt.Errorf("%w: channel %d", appErrors.ErrForbidden, id))
		return
	}

	snap, err := c.Limiter.Snapshot(r.Context(), ch)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, channelStatusResponse{
		Channel:   ch,
		Sendable:  channel.Sendable(ch),
		RateLimit: snap,
	})
}

// PostEvent accepts a live-state event and queues it for the registry, the
// same path events take when the transport publishes to the broker.
func (c *ChannelController) PostEvent(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderEventToken)
	if c.EventToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(c.EventToken)) != 1 {
		handler.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid transport token"})
		return
	}

	var ev model.ChannelEvent
	if err := handler.DecodeJSON(w, r, &ev); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if !ev.State.Valid() {
		handler.WriteError(w, c.Logger, appErrors.Validation("unknown live state %q", ev.State))
		return
	}
	if ev.ChannelID == 0 && (ev.Platform == "" || ev.ExternalAccountID == "") {
		handler.WriteError(w, c.Logger, appErrors.Validation("event names no channel"))
		return
	}
	if err := c.Queue.Publish(queue.TopicChannelEvents, ev); err != nil {
		handler.WriteError(w, c.Logger, fmt.Errorf("publishing channel event: %w", err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
