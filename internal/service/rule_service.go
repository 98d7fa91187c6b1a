package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/autoreply"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

// RuleService manages auto-reply rules on behalf of a channel owner.
type RuleService struct {
	RuleRepo repository.RuleRepositoryInterface
	Registry *channel.Registry
	Engine   *autoreply.Engine
	Logger   zerolog.Logger
}

func NewRuleService(rules repository.RuleRepositoryInterface, registry *channel.Registry, engine *autoreply.Engine, logger zerolog.Logger) *RuleService {
	return &RuleService{
		RuleRepo: rules,
		Registry: registry,
		Engine:   engine,
		Logger:   logger.With().Str("component", "rules").Logger(),
	}
}

func (s *RuleService) authorize(ctx context.Context, actorID, channelID int64) error {
	owner, err := s.Registry.OwnerOf(ctx, channelID)
	if err != nil {
		return err
	}
	if owner != actorID {
		return fmt.Errorf("%w: channel %d", appErrors.ErrForbidden, channelID)
	}
	return nil
}

func (s *RuleService) owned(ctx context.Context, actorID, ruleID int64) (*model.AutoReplyRule, error) {
	rule, err := s.RuleRepo.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, rule.ChannelID); err != nil {
		return nil, err
	}
	return rule, nil
}

// singleFallback rejects a second `all` rule on a channel.
func (s *RuleService) singleFallback(ctx context.Context, rule *model.AutoReplyRule) error {
	if rule.TriggerType != model.TriggerAll {
		return nil
	}
	rules, err := s.RuleRepo.ListByChannel(ctx, rule.ChannelID, false)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.TriggerType == model.TriggerAll && r.ID != rule.ID {
			return appErrors.Validation("channel %d already has a fallback rule (%d)", rule.ChannelID, r.ID)
		}
	}
	return nil
}

func (s *RuleService) forget(ruleID int64) {
	if s.Engine != nil {
		s.Engine.Forget(ruleID)
	}
}

func (s *RuleService) CreateRule(ctx context.Context, actorID, channelID int64, rule *model.AutoReplyRule) error {
	if err := s.authorize(ctx, actorID, channelID); err != nil {
		return err
	}
	rule.ChannelID = channelID
	if err := autoreply.ValidateRule(rule); err != nil {
		return err
	}
	if err := s.singleFallback(ctx, rule); err != nil {
		return err
	}
	if err := s.RuleRepo.Create(ctx, rule); err != nil {
		return err
	}
	s.Logger.Info().Int64("rule_id", rule.ID).Int64("channel_id", channelID).Str("trigger_type", string(rule.TriggerType)).Msg("rule created")
	return nil
}

// UpdateRule replaces a rule's definition. Channel and usage count are kept.
func (s *RuleService) UpdateRule(ctx context.Context, actorID, ruleID int64, rule *model.AutoReplyRule) error {
	existing, err := s.owned(ctx, actorID, ruleID)
	if err != nil {
		return err
	}
	rule.ID = existing.ID
	rule.ChannelID = existing.ChannelID
	rule.UsageCount = existing.UsageCount
	rule.CreatedAt = existing.CreatedAt
	if err := autoreply.ValidateRule(rule); err != nil {
		return err
	}
	if err := s.singleFallback(ctx, rule); err != nil {
		return err
	}
	if err := s.RuleRepo.Update(ctx, rule); err != nil {
		return err
	}
	s.forget(ruleID)
	return nil
}

func (s *RuleService) DeleteRule(ctx context.Context, actorID, ruleID int64) error {
	if _, err := s.owned(ctx, actorID, ruleID); err != nil {
		return err
	}
	if err := s.RuleRepo.Delete(ctx, ruleID); err != nil {
		return err
	}
	s.forget(ruleID)
	return nil
}

// ToggleRule flips a rule between active and inactive.
func (s *RuleService) ToggleRule(ctx context.Context, actorID, ruleID int64) (*model.AutoReplyRule, error) {
	rule, err := s.owned(ctx, actorID, ruleID)
	if err != nil {
		return nil, err
	}
	rule.Active = !rule.Active
	if err := s.RuleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.Logger.Info().Int64("rule_id", rule.ID).Bool("active", rule.Active).Msg("rule toggled")
	return rule, nil
}

// ListRules returns every rule of the channel in evaluation order.
func (s *RuleService) ListRules(ctx context.Context, actorID, channelID int64) ([]*model.AutoReplyRule, error) {
	if err := s.authorize(ctx, actorID, channelID); err != nil {
		return nil, err
	}
	rules, err := s.RuleRepo.ListByChannel(ctx, channelID, false)
	if err != nil {
		return nil, err
	}
	return autoreply.EvaluationOrder(rules), nil
}
