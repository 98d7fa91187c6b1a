// Package autoreply picks at most one reply for an inbound message from the
// channel's ordered rule set.
package autoreply

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/metrics"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

// Action is the reply the winning rule asks for. Template replies still carry
// their placeholders; the caller resolves them.
type Action struct {
	RuleID   int64
	RuleName string
	Reply    model.Reply
}

type Engine struct {
	rules     repository.RuleRepositoryInterface
	owners    repository.OwnerRepositoryInterface
	messages  repository.MessageRepositoryInterface
	defaultTZ *time.Location
	logger    zerolog.Logger

	mu       sync.Mutex
	matchers map[string]Matcher

	Now func() time.Time
}

func NewEngine(
	rules repository.RuleRepositoryInterface,
	owners repository.OwnerRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	defaultTZ *time.Location,
	logger zerolog.Logger,
) *Engine {
	if defaultTZ == nil {
		defaultTZ = time.UTC
	}
	return &Engine{
		rules:     rules,
		owners:    owners,
		messages:  messages,
		defaultTZ: defaultTZ,
		logger:    logger.With().Str("component", "autoreply").Logger(),
		matchers:  make(map[string]Matcher),
		Now:       time.Now,
	}
}

// EvaluationOrder sorts rules by priority descending then id, with the
// fallback rule last whatever its stored priority.
func EvaluationOrder(rules []*model.AutoReplyRule) []*model.AutoReplyRule {
	out := append([]*model.AutoReplyRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].TriggerType == model.TriggerAll, out[j].TriggerType == model.TriggerAll
		if ai != aj {
			return aj
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) matcher(r *model.AutoReplyRule) (Matcher, error) {
	key := cacheKey(r)
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.matchers[key]; ok {
		return m, nil
	}
	m, err := Compile(r.TriggerType, r.Trigger())
	if err != nil {
		return nil, err
	}
	e.matchers[key] = m
	return m, nil
}

// Forget drops cached matchers of a rule after it changes or is deleted.
func (e *Engine) Forget(ruleID int64) {
	prefix := fmt.Sprintf("%d\x00", ruleID)
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.matchers {
		if strings.HasPrefix(k, prefix) {
			delete(e.matchers, k)
		}
	}
}

func (e *Engine) location(ctx context.Context, ownerID int64) *time.Location {
	tz, err := e.owners.Timezone(ctx, ownerID)
	if err != nil || tz == "" {
		return e.defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.logger.Warn().Err(err).Int64("owner_id", ownerID).Str("timezone", tz).Msg("falling back to default timezone")
		return e.defaultTZ
	}
	return loc
}

// Evaluate returns the action of the first rule that matches msg and whose
// conditions hold, or nil. A rule whose text matches but whose business hours
// or first-message condition fails is skipped and evaluation continues.
func (e *Engine) Evaluate(ctx context.Context, ch *model.Channel, contact *model.Contact, msg *model.Message) (*Action, error) {
	if !ch.AutoReplyEnabled {
		metrics.AutoRepliesMatched.WithLabelValues("disabled").Inc()
		return nil, nil
	}

	rules, err := e.rules.ListByChannel(ctx, ch.ID, true)
	if err != nil {
		return nil, fmt.Errorf("loading rules of channel %d: %w", ch.ID, err)
	}

	var loc *time.Location
	priorInbound := -1

	for _, rule := range EvaluationOrder(rules) {
		log := e.logger.With().Int64("channel_id", ch.ID).Int64("rule_id", rule.ID).Logger()

		m, err := e.matcher(rule)
		if err != nil {
			log.Error().Err(err).Msg("skipping rule with invalid trigger")
			continue
		}
		if !m.Match(msg.Body) {
			continue
		}

		if rule.BusinessHours != nil {
			if loc == nil {
				loc = e.location(ctx, ch.OwnerID)
			}
			if !rule.BusinessHours.Contains(e.Now().In(loc)) {
				log.Debug().Msg("rule outside business hours")
				continue
			}
		}

		if rule.OnlyFirstMessage {
			if priorInbound < 0 {
				n, err := e.messages.CountInbound(ctx, ch.ID, contact.ID)
				if err != nil {
					return nil, fmt.Errorf("counting inbound messages: %w", err)
				}
				// the current message is already stored
				priorInbound = n - 1
			}
			if priorInbound > 0 {
				log.Debug().Msg("contact already wrote before")
				continue
			}
		}

		if err := e.rules.IncrementUsage(ctx, rule.ID); err != nil {
			log.Warn().Err(err).Msg("incrementing rule usage")
		}
		metrics.AutoRepliesMatched.WithLabelValues("matched").Inc()
		log.Info().Str("trigger_type", string(rule.TriggerType)).Msg("auto-reply rule matched")
		return &Action{RuleID: rule.ID, RuleName: rule.Name, Reply: rule.Reply}, nil
	}

	metrics.AutoRepliesMatched.WithLabelValues("no_match").Inc()
	return nil, nil
}
