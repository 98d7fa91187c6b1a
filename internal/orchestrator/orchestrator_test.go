package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/autoreply"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository/memstore"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/transport"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/webhook"
)

const secret = "hook-secret"

type sent struct {
	recipient string
	content   transport.Content
}

type harness struct {
	orch    *Orchestrator
	store   *memstore.Store
	channel *model.Channel

	mu      sync.Mutex
	sends   []sent
	sendErr error
}

func newHarness(t *testing.T, hourlyCap int) *harness {
	t.Helper()
	h := &harness{store: memstore.New()}
	h.store.PutOwner(model.Owner{ID: 1, Timezone: "Asia/Jakarta"})
	h.channel = h.store.PutChannel(model.Channel{
		Platform:          model.PlatformWhatsApp,
		OwnerID:           1,
		ExternalAccountID: "6281100",
		LiveState:         model.LiveStateConnected,
		AutoReplyEnabled:  true,
		AutoSaveContacts:  true,
		Active:            true,
	})

	sender := transport.Func{SendFunc: func(_ context.Context, _ int64, recipient string, c transport.Content) (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sends = append(h.sends, sent{recipient, c})
		if h.sendErr != nil {
			return "", h.sendErr
		}
		return "out-" + recipient, nil
	}}

	logger := zerolog.Nop()
	store := h.store
	registry := channel.NewRegistry(store.Channels, logger)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(),
		func(model.Platform) (int, int) { return hourlyCap, 1000 }, time.Second, time.Minute, logger)
	engine := autoreply.NewEngine(store.Rules, store.Owners, store.Messages, time.UTC, logger)
	normalizer := webhook.NewNormalizer(registry, store.Messages, store.WebhookLogs,
		func(model.Platform) string { return secret }, logger)

	h.orch = New(Deps{
		Registry:   registry,
		Limiter:    limiter,
		Normalizer: normalizer,
		Engine:     engine,
		Campaigns: service.NewCampaignService(store.Campaigns, store.Deliveries, store.Contacts, store.Messages,
			registry, limiter, sender, logger),
		Rules:     service.NewRuleService(store.Rules, registry, engine, logger),
		Messages:  store.Messages,
		Transport: sender,
		Logger:    logger,
	})
	return h
}

func (h *harness) addRule(t *testing.T, r *model.AutoReplyRule) {
	t.Helper()
	r.Active = true
	require.NoError(t, h.orch.Rules.CreateRule(context.Background(), 1, h.channel.ID, r))
}

func (h *harness) deliver(t *testing.T, id, from, body string) *webhook.Result {
	t.Helper()
	payload := `{"event":"message","session":"6281100","message":{"id":"` + id + `","from":"` + from +
		`","push_name":"Budi","type":"chat","body":"` + body + `"}}`
	headers := http.Header{}
	headers.Set(webhook.HeaderGatewaySignature, "sha256="+webhook.Sign(secret, []byte(payload)))
	res, err := h.orch.HandleWebhook(context.Background(), webhook.Request{
		Platform: model.PlatformWhatsApp,
		Body:     []byte(payload),
		Headers:  headers,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) outbound() []model.Message {
	var out []model.Message
	for _, m := range h.store.MessageList() {
		if m.Direction == model.DirectionOutbound {
			out = append(out, m)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestWebhookTriggersAutoReply(t *testing.T) {
	h := newHarness(t, 100)
	harga := &model.AutoReplyRule{
		Name: "harga", TriggerType: model.TriggerContains, TriggerValue: strPtr("harga"), Priority: 10,
		Reply: model.Reply{Type: model.ReplyText, Text: "Harga mulai 50rb"},
	}
	h.addRule(t, harga)
	h.addRule(t, &model.AutoReplyRule{
		Name: "fallback", TriggerType: model.TriggerAll, Priority: 99,
		Reply: model.Reply{Type: model.ReplyText, Text: "Terima kasih"},
	})

	res := h.deliver(t, "IN1", "628555", "berapa harga produk ini")
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Empty(t, res.Error)

	require.Len(t, h.sends, 1)
	assert.Equal(t, "628555", h.sends[0].recipient)
	assert.Equal(t, "Harga mulai 50rb", h.sends[0].content.Text)

	out := h.outbound()
	require.Len(t, out, 1)
	assert.True(t, out[0].IsAutoReply)
	require.NotNil(t, out[0].SourceRuleID)
	assert.Equal(t, harga.ID, *out[0].SourceRuleID)
	assert.Equal(t, model.MessageStatusSent, out[0].Status)
	assert.Equal(t, "out-628555", out[0].ProviderMessageID)

	// redelivery neither stores nor replies again
	res = h.deliver(t, "IN1", "628555", "berapa harga produk ini")
	assert.Equal(t, model.WebhookDuplicate, res.Outcome)
	assert.Len(t, h.sends, 1)
}

func TestAutoReplyDroppedWhenRateLimited(t *testing.T) {
	h := newHarness(t, 1)
	h.addRule(t, &model.AutoReplyRule{
		Name: "all", TriggerType: model.TriggerAll,
		Reply: model.Reply{Type: model.ReplyText, Text: "hai"},
	})

	h.deliver(t, "IN1", "628555", "halo")
	res := h.deliver(t, "IN2", "628555", "halo lagi")

	assert.Len(t, h.sends, 1)
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Empty(t, res.Error)
	assert.Len(t, h.outbound(), 1)
}

func TestTemplateReplyIsPersonalised(t *testing.T) {
	h := newHarness(t, 100)
	h.addRule(t, &model.AutoReplyRule{
		Name: "welcome", TriggerType: model.TriggerExact, TriggerValue: strPtr("halo"),
		Reply: model.Reply{Type: model.ReplyTemplate, TemplateName: "welcome_v1", Text: "Halo {name}!"},
	})

	h.deliver(t, "IN1", "628555", "Halo")
	require.Len(t, h.sends, 1)
	assert.Equal(t, model.ContentTemplate, h.sends[0].content.Type)
	assert.Equal(t, "welcome_v1", h.sends[0].content.TemplateName)
	assert.Equal(t, "Halo Budi!", h.sends[0].content.Text)
}

func TestFailedReplyIsLoggedAndInboundKept(t *testing.T) {
	h := newHarness(t, 100)
	h.sendErr = &appErrors.TransportError{Throttled: true, Message: "slow down"}
	h.addRule(t, &model.AutoReplyRule{
		Name: "all", TriggerType: model.TriggerAll,
		Reply: model.Reply{Type: model.ReplyText, Text: "hai"},
	})

	res := h.deliver(t, "IN1", "628555", "halo")
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Contains(t, res.Error, "slow down")
	assert.Len(t, h.store.MessageList(), 1)
	assert.Empty(t, h.outbound())

	snap, err := h.orch.Limiter.Snapshot(context.Background(), h.channel)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ConsecutiveThrottles)
	assert.NotNil(t, snap.CooldownUntil)
}

func TestNoMatchIsSilent(t *testing.T) {
	h := newHarness(t, 100)
	h.addRule(t, &model.AutoReplyRule{
		Name: "menu", TriggerType: model.TriggerExact, TriggerValue: strPtr("menu"),
		Reply: model.Reply{Type: model.ReplyText, Text: "1. Produk"},
	})

	res := h.deliver(t, "IN1", "628555", "selamat pagi")
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Empty(t, h.sends)
}

func TestChannelEventBlocksCampaigns(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	require.NoError(t, h.orch.ApplyChannelEvent(ctx, model.ChannelEvent{
		Platform:          model.PlatformWhatsApp,
		ExternalAccountID: "6281100",
		State:             model.LiveStateDisconnected,
		OccurredAt:        time.Now(),
	}))

	_, err := h.orch.Campaigns.CreateCampaign(ctx, 1, service.CreateCampaignInput{
		ChannelID:  h.channel.ID,
		Name:       "blocked",
		Template:   model.MessageTemplate{Content: "hi"},
		Recipients: []model.Recipient{{Identifier: "628"}},
	})
	assert.ErrorIs(t, err, appErrors.ErrChannelNotSendable)
}

func TestTickDrivesCampaign(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.orch.Campaigns.CreateCampaign(ctx, 1, service.CreateCampaignInput{
		ChannelID:  h.channel.ID,
		Name:       "promo",
		Template:   model.MessageTemplate{Content: "Halo {name}"},
		Recipients: []model.Recipient{{Identifier: "628a", Name: "A"}, {Identifier: "628b", Name: "B"}},
		BatchSize:  1,
	})
	require.NoError(t, err)
	_, err = h.orch.Campaigns.StartCampaign(ctx, 1, c.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := h.orch.Tick(ctx, c.ID)
		require.NoError(t, err)
	}
	res, err := h.orch.Tick(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, model.CampaignCompleted, res.Status)
	assert.Len(t, h.sends, 2)
}
