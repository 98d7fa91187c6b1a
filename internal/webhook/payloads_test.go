package webhook

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	good := http.Header{}
	good.Set(HeaderBusinessSignature, "sha256="+Sign("k", body))

	assert.NoError(t, Verify(model.PlatformWhatsAppBusiness, "k", body, good))
	assert.Error(t, Verify(model.PlatformWhatsAppBusiness, "other", body, good))
	assert.Error(t, Verify(model.PlatformWhatsAppBusiness, "", body, good))
	assert.Error(t, Verify(model.PlatformWhatsAppBusiness, "k", []byte(`{"a":2}`), good))

	missing := http.Header{}
	err := Verify(model.PlatformWhatsApp, "k", body, missing)
	assert.True(t, errors.Is(err, appErrors.ErrWebhookAuthFailed))

	err = Verify("sms", "k", body, good)
	assert.True(t, errors.Is(err, appErrors.ErrUnsupported))
}

func TestParseGateway(t *testing.T) {
	env, err := Parse(model.PlatformWhatsApp, "", []byte(`{"event":"message","session":"s1","message":{"id":"m1","from":"628","type":"image","caption":"lihat","media_url":"https://cdn/x.jpg","timestamp":1714550400}}`))
	require.NoError(t, err)
	require.Len(t, env.Messages, 1)
	m := env.Messages[0]
	assert.Equal(t, "s1", env.AccountID)
	assert.Equal(t, model.ContentImage, m.ContentType)
	assert.Equal(t, "lihat", m.Body)
	assert.Equal(t, "https://cdn/x.jpg", m.MediaURL)
	require.NotNil(t, m.Timestamp)

	env, err = Parse(model.PlatformWhatsApp, "", []byte(`{"event":"message","session":"s1","message":{"id":"m2","from":"628","from_me":true,"type":"chat","body":"x"}}`))
	require.NoError(t, err)
	assert.Empty(t, env.Messages)

	env, err = Parse(model.PlatformWhatsApp, "", []byte(`{"event":"ack","session":"s1","ack":{"id":"m3","status":"delivered"}}`))
	require.NoError(t, err)
	require.Len(t, env.Statuses, 1)
	assert.Equal(t, model.MessageStatusDelivered, env.Statuses[0].Status)

	_, err = Parse(model.PlatformWhatsApp, "", []byte(`{"event":"ack","session":"s1","ack":{"id":"m3","status":"exploded"}}`))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = Parse(model.PlatformWhatsApp, "", []byte(`{"event":"presence","session":"s1"}`))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestParseTelegram(t *testing.T) {
	_, err := Parse(model.PlatformTelegram, "", []byte(`{}`))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	env, err := Parse(model.PlatformTelegram, "bot", []byte(`{"update_id":1,"message":{"message_id":9,"from":{"id":5,"first_name":"A"},"chat":{"id":5},"photo":[{"file_id":"small"},{"file_id":"large"}],"caption":"foto"}}`))
	require.NoError(t, err)
	require.Len(t, env.Messages, 1)
	assert.Equal(t, model.ContentImage, env.Messages[0].ContentType)
	assert.Equal(t, "large", env.Messages[0].MediaURL)
	assert.Equal(t, "foto", env.Messages[0].Body)
	assert.Equal(t, "5", env.Messages[0].Sender)

	env, err = Parse(model.PlatformTelegram, "bot", []byte(`{"update_id":2,"edited_message":{"message_id":9}}`))
	require.NoError(t, err)
	assert.Empty(t, env.Messages)
}

func TestParseBusiness(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{
		"metadata":{"display_phone_number":"62800","phone_number_id":"P1"},
		"contacts":[{"profile":{"name":"Sari"},"wa_id":"628777"}],
		"messages":[
			{"from":"628777","id":"w1","timestamp":"1714550400","type":"interactive","interactive":{"button_reply":{"title":"Ya"}}},
			{"from":"628777","id":"w2","timestamp":"1714550401","type":"document","document":{"id":"media1","filename":"a.pdf"}}
		],
		"statuses":[{"id":"w0","status":"failed","errors":[{"code":131026,"title":"Message undeliverable"}]}]}}]}]}`

	env, err := Parse(model.PlatformWhatsAppBusiness, "", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "P1", env.AccountID)
	require.Len(t, env.Messages, 2)
	assert.Equal(t, "Ya", env.Messages[0].Body)
	assert.Equal(t, "Sari", env.Messages[0].SenderName)
	assert.Equal(t, model.ContentDocument, env.Messages[1].ContentType)
	assert.Equal(t, "media1", env.Messages[1].MediaURL)
	require.Len(t, env.Statuses, 1)
	assert.Equal(t, model.MessageStatusFailed, env.Statuses[0].Status)
	assert.Equal(t, "131026: Message undeliverable", env.Statuses[0].Error)

	_, err = Parse(model.PlatformWhatsAppBusiness, "", []byte(`{"entry":[]}`))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
