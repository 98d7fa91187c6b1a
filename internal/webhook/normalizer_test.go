package webhook

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository/memstore"
)

const secret = "s3cret"

type resolver struct{ store *memstore.Store }

func (r resolver) ResolveAccount(ctx context.Context, p model.Platform, account string) (*model.Channel, error) {
	return r.store.Channels.GetByAccount(ctx, p, account)
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) HandleInbound(_ context.Context, _ *model.Channel, _ *model.Contact, msg *model.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Body)
	return h.err
}

func newNormalizer(t *testing.T) (*Normalizer, *memstore.Store, *recordingHandler) {
	t.Helper()
	store := memstore.New()
	store.PutChannel(model.Channel{
		Platform:          model.PlatformWhatsApp,
		OwnerID:           1,
		ExternalAccountID: "6281100",
		LiveState:         model.LiveStateConnected,
		AutoReplyEnabled:  true,
		AutoSaveContacts:  true,
		Active:            true,
	})
	store.PutChannel(model.Channel{
		Platform:          model.PlatformWhatsAppBusiness,
		OwnerID:           1,
		ExternalAccountID: "PNID1",
		LiveState:         model.LiveStateConnected,
		Active:            true,
	})
	store.PutChannel(model.Channel{
		Platform:          model.PlatformTelegram,
		OwnerID:           1,
		ExternalAccountID: "mybot",
		LiveState:         model.LiveStateConnected,
		Active:            true,
	})

	n := NewNormalizer(resolver{store}, store.Messages, store.WebhookLogs,
		func(model.Platform) string { return secret }, zerolog.Nop())
	h := &recordingHandler{}
	n.SetHandler(h)
	return n, store, h
}

func signed(platform model.Platform, body string) Request {
	h := http.Header{}
	switch platform {
	case model.PlatformWhatsApp:
		h.Set(HeaderGatewaySignature, "sha256="+Sign(secret, []byte(body)))
	case model.PlatformWhatsAppBusiness:
		h.Set(HeaderBusinessSignature, "sha256="+Sign(secret, []byte(body)))
	case model.PlatformTelegram:
		h.Set(HeaderTelegramSecret, secret)
	}
	return Request{Platform: platform, Body: []byte(body), Headers: h}
}

const gatewayMessage = `{"event":"message","session":"6281100","message":{"id":"3EB0A1","from":"628555","to":"6281100","push_name":"Budi","type":"chat","body":"berapa harga produk ini","timestamp":1714550400}}`

func TestIngest_InvalidSignature(t *testing.T) {
	n, store, h := newNormalizer(t)
	req := signed(model.PlatformWhatsApp, gatewayMessage)
	req.Headers.Set(HeaderGatewaySignature, "sha256=deadbeef")

	res, err := n.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrWebhookAuthFailed))
	assert.Equal(t, model.WebhookFailed, res.Outcome)

	logs := store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Equal(t, model.WebhookFailed, logs[0].Outcome)
	assert.NotEmpty(t, logs[0].Error)
	assert.Empty(t, store.MessageList())
	assert.Empty(t, h.seen)
}

func TestIngest_StoresInbound(t *testing.T) {
	n, store, h := newNormalizer(t)

	res, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, gatewayMessage))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Equal(t, 1, res.Stored)

	msgs := store.MessageList()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "3EB0A1", m.ProviderMessageID)
	assert.Equal(t, model.DirectionInbound, m.Direction)
	assert.Equal(t, model.MessageStatusDelivered, m.Status)
	assert.Equal(t, model.ContentText, m.ContentType)
	assert.False(t, m.IsAutoReply)
	assert.NotNil(t, m.DeliveredAt)
	assert.NotZero(t, m.ContactID)

	logs := store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Equal(t, "628555", logs[0].Sender)
	assert.Equal(t, "3EB0A1", logs[0].ProviderMessageID)
	require.NotNil(t, logs[0].ChannelID)

	assert.Equal(t, []string{"berapa harga produk ini"}, h.seen)
}

func TestIngest_DuplicateDeliveries(t *testing.T) {
	n, store, h := newNormalizer(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := n.Ingest(ctx, signed(model.PlatformWhatsApp, gatewayMessage))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := n.Ingest(ctx, signed(model.PlatformWhatsApp, gatewayMessage))
	require.NoError(t, err)

	assert.Len(t, store.MessageList(), 1)
	logs := store.WebhookLogList()
	assert.Len(t, logs, 6)
	dups := 0
	for _, l := range logs {
		if l.Outcome == model.WebhookDuplicate {
			dups++
		}
	}
	assert.Equal(t, 5, dups)
	assert.Len(t, h.seen, 1)
}

func TestIngest_UnknownChannel(t *testing.T) {
	n, store, _ := newNormalizer(t)
	body := `{"event":"message","session":"999","message":{"id":"X1","from":"628555","type":"chat","body":"hi"}}`

	res, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, body))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookFailed, res.Outcome)
	assert.Empty(t, store.MessageList())
	require.Len(t, store.WebhookLogList(), 1)
}

func TestIngest_MalformedPayload(t *testing.T) {
	n, store, _ := newNormalizer(t)

	res, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, `{not json`))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookFailed, res.Outcome)
	logs := store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Error, "decoding gateway payload")
}

func TestIngest_HandlerFailureKeepsMessage(t *testing.T) {
	n, store, h := newNormalizer(t)
	h.err = errors.New("transport down")

	res, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, gatewayMessage))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookSuccess, res.Outcome)
	assert.Contains(t, res.Error, "transport down")

	assert.Len(t, store.MessageList(), 1)
	logs := store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Error, "transport down")
}

func TestIngest_BusinessMessagesAndStatuses(t *testing.T) {
	n, store, _ := newNormalizer(t)
	ctx := context.Background()

	inbound := `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
		"metadata":{"display_phone_number":"62800","phone_number_id":"PNID1"},
		"contacts":[{"profile":{"name":"Sari"},"wa_id":"628777"}],
		"messages":[{"from":"628777","id":"wamid.IN1","timestamp":"1714550400","type":"text","text":{"body":"halo"}}]}}]}]}`
	res, err := n.Ingest(ctx, signed(model.PlatformWhatsAppBusiness, inbound))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	// an outbound message sent earlier
	_, err = store.Messages.Insert(ctx, &model.Message{
		ProviderMessageID: "wamid.OUT1",
		ChannelID:         res.ChannelID,
		Direction:         model.DirectionOutbound,
		Status:            model.MessageStatusSent,
	})
	require.NoError(t, err)

	statuses := func(status string) string {
		return `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
			"metadata":{"display_phone_number":"62800","phone_number_id":"PNID1"},
			"statuses":[{"id":"wamid.OUT1","status":"` + status + `","timestamp":"1714550500","recipient_id":"628777"}]}}]}]}`
	}

	res, err = n.Ingest(ctx, signed(model.PlatformWhatsAppBusiness, statuses("read")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.StatusesApplied)

	// delivered after read is ignored
	res, err = n.Ingest(ctx, signed(model.PlatformWhatsAppBusiness, statuses("delivered")))
	require.NoError(t, err)
	assert.Equal(t, 0, res.StatusesApplied)
	assert.Equal(t, model.WebhookSuccess, res.Outcome)

	out, err := store.Messages.GetByProviderID(ctx, "wamid.OUT1")
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, out.Status)
	assert.NotNil(t, out.ReadAt)
	assert.Nil(t, out.DeliveredAt)
}

func TestIngest_Telegram(t *testing.T) {
	n, store, _ := newNormalizer(t)
	body := `{"update_id":10,"message":{"message_id":5,"from":{"id":42,"first_name":"Andi","last_name":"W"},"chat":{"id":42},"date":1714550400,"text":"/start"}}`

	req := signed(model.PlatformTelegram, body)
	req.Account = "mybot"
	res, err := n.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	msgs := store.MessageList()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tg:mybot:42:5", msgs[0].ProviderMessageID)

	req.Headers.Set(HeaderTelegramSecret, "wrong")
	_, err = n.Ingest(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrWebhookAuthFailed))
}

func TestIngest_UnreadableBodyIsLogged(t *testing.T) {
	n, store, h := newNormalizer(t)
	req := signed(model.PlatformWhatsApp, gatewayMessage)
	req.Body = req.Body[:20]
	req.ReadErr = errors.New("http: request body too large")

	res, err := n.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.WebhookFailed, res.Outcome)
	assert.Contains(t, res.Error, "request body too large")

	logs := store.WebhookLogList()
	require.Len(t, logs, 1)
	assert.Equal(t, model.WebhookFailed, logs[0].Outcome)
	assert.Equal(t, req.Body, []byte(logs[0].Payload))
	assert.Empty(t, store.MessageList())
	assert.Empty(t, h.seen)
}

// racingMessages never finds an existing message, as when two deliveries of
// the same id pass the lookup at the same time.
type racingMessages struct {
	*memstore.MessageRepo
}

func (racingMessages) GetByProviderID(context.Context, string) (*model.Message, error) {
	return nil, nil
}

func TestIngest_RacingDuplicateLeavesContactAlone(t *testing.T) {
	store := memstore.New()
	store.PutChannel(model.Channel{
		Platform:          model.PlatformWhatsApp,
		OwnerID:           1,
		ExternalAccountID: "6281100",
		LiveState:         model.LiveStateConnected,
		Active:            true,
	})
	n := NewNormalizer(resolver{store}, racingMessages{store.Messages}, store.WebhookLogs,
		func(model.Platform) string { return secret }, zerolog.Nop())
	h := &recordingHandler{}
	n.SetHandler(h)

	first := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return first }
	_, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, gatewayMessage))
	require.NoError(t, err)

	n.now = func() time.Time { return first.Add(time.Hour) }
	res, err := n.Ingest(context.Background(), signed(model.PlatformWhatsApp, gatewayMessage))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookDuplicate, res.Outcome)

	contacts := store.ContactList()
	require.Len(t, contacts, 1)
	assert.True(t, contacts[0].LastInteractionAt.Equal(first))
	assert.Len(t, store.MessageList(), 1)
	assert.Len(t, h.seen, 1)
}
