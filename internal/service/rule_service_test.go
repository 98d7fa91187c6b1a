package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/autoreply"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository/memstore"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
)

func strPtr(s string) *string { return &s }

func newRuleService(t *testing.T) (*service.RuleService, *memstore.Store, *model.Channel) {
	t.Helper()
	store := memstore.New()
	ch := store.PutChannel(model.Channel{
		Platform:         model.PlatformTelegram,
		OwnerID:          owner,
		LiveState:        model.LiveStateConnected,
		AutoReplyEnabled: true,
		Active:           true,
	})
	registry := channel.NewRegistry(store.Channels, zerolog.Nop())
	engine := autoreply.NewEngine(store.Rules, store.Owners, store.Messages, time.UTC, zerolog.Nop())
	return service.NewRuleService(store.Rules, registry, engine, zerolog.Nop()), store, ch
}

func textRule(name string, trigger model.TriggerType, value *string, priority int) *model.AutoReplyRule {
	return &model.AutoReplyRule{
		Name:         name,
		TriggerType:  trigger,
		TriggerValue: value,
		Priority:     priority,
		Active:       true,
		Reply:        model.Reply{Type: model.ReplyText, Text: "ok " + name},
	}
}

func TestRuleService_CreateAndList(t *testing.T) {
	svc, _, ch := newRuleService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateRule(ctx, owner, ch.ID, textRule("fallback", model.TriggerAll, strPtr("ignored"), 100)))
	require.NoError(t, svc.CreateRule(ctx, owner, ch.ID, textRule("harga", model.TriggerContains, strPtr("harga"), 10)))
	require.NoError(t, svc.CreateRule(ctx, owner, ch.ID, textRule("menu", model.TriggerExact, strPtr("menu"), 20)))

	rules, err := svc.ListRules(ctx, owner, ch.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "menu", rules[0].Name)
	assert.Equal(t, "harga", rules[1].Name)
	assert.Equal(t, "fallback", rules[2].Name)
	assert.Nil(t, rules[2].TriggerValue)

	err = svc.CreateRule(ctx, owner, ch.ID, textRule("second fallback", model.TriggerAll, nil, 1))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	err = svc.CreateRule(ctx, owner, ch.ID, textRule("bad", model.TriggerRegex, strPtr("(["), 1))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRuleService_Ownership(t *testing.T) {
	svc, _, ch := newRuleService(t)
	ctx := context.Background()
	rule := textRule("x", model.TriggerContains, strPtr("x"), 1)
	require.NoError(t, svc.CreateRule(ctx, owner, ch.ID, rule))

	assert.True(t, errors.Is(svc.CreateRule(ctx, owner+1, ch.ID, textRule("y", model.TriggerContains, strPtr("y"), 1)), appErrors.ErrForbidden))
	assert.True(t, errors.Is(svc.DeleteRule(ctx, owner+1, rule.ID), appErrors.ErrForbidden))
	_, err := svc.ToggleRule(ctx, owner+1, rule.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.ListRules(ctx, owner+1, ch.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	assert.True(t, errors.Is(svc.DeleteRule(ctx, owner, 404), appErrors.ErrNotFound))
}

func TestRuleService_UpdateKeepsUsageAndToggle(t *testing.T) {
	svc, store, ch := newRuleService(t)
	ctx := context.Background()
	rule := textRule("promo", model.TriggerContains, strPtr("promo"), 1)
	require.NoError(t, svc.CreateRule(ctx, owner, ch.ID, rule))
	require.NoError(t, store.Rules.IncrementUsage(ctx, rule.ID))

	update := textRule("promo v2", model.TriggerStartsWith, strPtr("promo"), 5)
	require.NoError(t, svc.UpdateRule(ctx, owner, rule.ID, update))

	got, err := store.Rules.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "promo v2", got.Name)
	assert.Equal(t, model.TriggerStartsWith, got.TriggerType)
	assert.Equal(t, int64(1), got.UsageCount)
	assert.Equal(t, ch.ID, got.ChannelID)

	toggled, err := svc.ToggleRule(ctx, owner, rule.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)
	toggled, err = svc.ToggleRule(ctx, owner, rule.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Active)

	require.NoError(t, svc.DeleteRule(ctx, owner, rule.ID))
	_, err = store.Rules.GetByID(ctx, rule.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
