package memstore

import (
	"context"
	"sort"
	"time"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

type MessageRepo struct{ s *state }

func (r *MessageRepo) Insert(_ context.Context, m *model.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.messages[m.ProviderMessageID]; exists {
		return false, nil
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.ID = r.s.id()
	cp := *m
	r.s.messages[m.ProviderMessageID] = &cp
	return true, nil
}

func (r *MessageRepo) InsertInbound(_ context.Context, sender *model.Contact, m *model.Message) (*model.Contact, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.messages[m.ProviderMessageID]; exists {
		return nil, false, nil
	}
	contact := r.s.upsertContact(sender)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.ContactID = contact.ID
	m.ID = r.s.id()
	cp := *m
	r.s.messages[m.ProviderMessageID] = &cp
	return contact, true, nil
}

func (r *MessageRepo) GetByProviderID(_ context.Context, providerMessageID string) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[providerMessageID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MessageRepo) AdvanceStatus(_ context.Context, providerMessageID string, status model.MessageStatus, errText string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[providerMessageID]
	if !ok || !m.Status.CanAdvanceTo(status) {
		return false, nil
	}
	m.StampStatus(status, at)
	if errText != "" {
		m.Error = errText
	}
	return true, nil
}

func (r *MessageRepo) CountInbound(_ context.Context, channelID, contactID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.messages {
		if m.ChannelID == channelID && m.ContactID == contactID && m.Direction == model.DirectionInbound {
			n++
		}
	}
	return n, nil
}

type RuleRepo struct{ s *state }

func (r *RuleRepo) Create(_ context.Context, rule *model.AutoReplyRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rule.TriggerType == model.TriggerAll {
		for _, existing := range r.s.rules {
			if existing.ChannelID == rule.ChannelID && existing.TriggerType == model.TriggerAll {
				return appErrors.Validation("channel %d already has a fallback rule", rule.ChannelID)
			}
		}
	}
	rule.ID = r.s.id()
	rule.CreatedAt = time.Now()
	cp := *rule
	r.s.rules[rule.ID] = &cp
	return nil
}

func (r *RuleRepo) Update(_ context.Context, rule *model.AutoReplyRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[rule.ID]
	if !ok {
		return appErrors.NewRuleNotFound(rule.ID)
	}
	if rule.TriggerType == model.TriggerAll {
		for _, other := range r.s.rules {
			if other.ID != rule.ID && other.ChannelID == rule.ChannelID && other.TriggerType == model.TriggerAll {
				return appErrors.Validation("channel %d already has a fallback rule", rule.ChannelID)
			}
		}
	}
	now := time.Now()
	rule.UpdatedAt = &now
	rule.UsageCount = existing.UsageCount
	cp := *rule
	r.s.rules[rule.ID] = &cp
	return nil
}

func (r *RuleRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return appErrors.NewRuleNotFound(id)
	}
	delete(r.s.rules, id)
	return nil
}

func (r *RuleRepo) GetByID(_ context.Context, id int64) (*model.AutoReplyRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, appErrors.NewRuleNotFound(id)
	}
	cp := *rule
	return &cp, nil
}

func (r *RuleRepo) ListByChannel(_ context.Context, channelID int64, activeOnly bool) ([]*model.AutoReplyRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.AutoReplyRule
	for _, rule := range r.s.rules {
		if rule.ChannelID != channelID || (activeOnly && !rule.Active) {
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *RuleRepo) IncrementUsage(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rule, ok := r.s.rules[id]; ok {
		rule.UsageCount++
	}
	return nil
}

type WebhookLogRepo struct{ s *state }

func (r *WebhookLogRepo) Append(_ context.Context, e *model.WebhookLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.ID = r.s.id()
	cp := *e
	r.s.webhookLogs = append(r.s.webhookLogs, &cp)
	return nil
}

func (r *WebhookLogRepo) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.webhookLogs[:0]
	var removed int64
	for _, e := range r.s.webhookLogs {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.webhookLogs = kept
	return removed, nil
}

var (
	_ repository.MessageRepositoryInterface    = (*MessageRepo)(nil)
	_ repository.RuleRepositoryInterface       = (*RuleRepo)(nil)
	_ repository.WebhookLogRepositoryInterface = (*WebhookLogRepo)(nil)
)
