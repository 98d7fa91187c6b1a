package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/handler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
)

type RuleController struct {
	RuleService *service.RuleService
	Logger      zerolog.Logger
}

type ruleRequest struct {
	Name             string               `json:"name"`
	TriggerType      model.TriggerType    `json:"trigger_type"`
	TriggerValue     *string              `json:"trigger_value"`
	Reply            model.Reply          `json:"reply"`
	Active           *bool                `json:"active"`
	Priority         int                  `json:"priority"`
	BusinessHours    *model.BusinessHours `json:"business_hours"`
	OnlyFirstMessage bool                 `json:"only_first_message"`
}

// rule builds the model; rules are active unless the request says otherwise.
func (req ruleRequest) rule() *model.AutoReplyRule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &model.AutoReplyRule{
		Name:             req.Name,
		TriggerType:      req.TriggerType,
		TriggerValue:     req.TriggerValue,
		Reply:            req.Reply,
		Active:           active,
		Priority:         req.Priority,
		BusinessHours:    req.BusinessHours,
		OnlyFirstMessage: req.OnlyFirstMessage,
	}
}

func (c *RuleController) CreateRule(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	channelID, err := handler.ParseID(r, "channelID")
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	var body ruleRequest
	if err := handler.DecodeJSON(w, r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	rule := body.rule()
	if err := c.RuleService.CreateRule(r.Context(), actor, channelID, rule); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, rule)
}

func (c *RuleController) ListRules(w http.ResponseWriter, r *http.Request) {
	actor, err := handler.Actor(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	channelID, err := handler.ParseID(r, "channelID")
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	rules, err := c.RuleService.ListRules(r.Context(), actor, channelID)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if rules == nil {
		rules = []*model.AutoReplyRule{}
	}
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": rules})
}

func (c *RuleController) UpdateRule(w http.ResponseWriter, r *http.Request) {
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
	var body ruleRequest
	if err := handler.DecodeJSON(w, r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	rule := body.rule()
	if err := c.RuleService.UpdateRule(r.Context(), actor, id, rule); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, rule)
}

func (c *RuleController) DeleteRule(w http.ResponseWriter, r *http.Request) {
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
	if err := c.RuleService.DeleteRule(r.Context(), actor, id); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *RuleController) ToggleRule(w http.ResponseWriter, r *http.Request) {
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
	rule, err := c.RuleService.ToggleRule(r.Context(), actor, id)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, rule)
}
