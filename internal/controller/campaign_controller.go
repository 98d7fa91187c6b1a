package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          zerolog.Logger
}

type createCampaignRequest struct {
	ChannelID    int64                 `json:"channel_id"`
	Name         string                `json:"name"`
	Template     model.MessageTemplate `json:"template"`
	Recipients   []model.Recipient     `json:"recipients"`
	BatchSize    int                   `json:"batch_size"`
	BatchDelayMS int64                 `json:"batch_delay_ms"`
	ScheduledAt  *time.Time            `json:"scheduled_at"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	var body createCampaignRequest
	if err := handler.DecodeJSON(w, r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), actor, service.CreateCampaignInput{
		ChannelID:   body.ChannelID,
		Name:        body.Name,
		Template:    body.Template,
		Recipients:  body.Recipients,
		BatchSize:   body.BatchSize,
		BatchDelay:  time.Duration(body.BatchDelayMS) * time.Millisecond,
		ScheduledAt: body.ScheduledAt,
	})
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	// recipients are echoed back only as a count
	campaign.Recipients = nil
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	page := handler.QueryInt(r, "page", 1)
	pageSize := handler.QueryInt(r, "page_size", 20)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), actor, page, pageSize, status)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	for _, c := range campaigns {
		c.Recipients = nil
	}

	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	id, err := handler.ParseID(r, "id")
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	details, err := c.CampaignService.GetCampaignDetails(r.Context(), actor, id)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	details.Recipients = nil
	handler.WriteJSON(w, http.StatusOK, details)
}

type campaignAction func(ctx context.Context, actorID, campaignID int64) (*model.Campaign, error)

// lifecycle adapts a state transition of the service to a handler.
func (c *CampaignController) lifecycle(action campaignAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := handler.Actor(r)
		if err != nil {
			handler.WriteError(w, c.Logger, err)
			return
		}
		id, err := handler.ParseID(r, "id")
		if err != nil {
			handler.WriteError(w, c.Logger, err)
			return
		}
		campaign, err := action(r.Context(), actor, id)
		if err != nil {
			handler.WriteError(w, c.Logger, err)
			return
		}
		campaign.Recipients = nil
		handler.WriteJSON(w, http.StatusOK, campaign)
	}
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.StartCampaign)(w, r)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.PauseCampaign)(w, r)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.ResumeCampaign)(w, r)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.CancelCampaign)(w, r)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	id, err := handler.ParseID(r, "id")
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if err := c.CampaignService.DeleteCampaign(r.Context(), actor, id); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
