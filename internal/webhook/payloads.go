package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// Inbound is the canonical inbound message every platform payload becomes.
type Inbound struct {
	AccountID         string
	Sender            string
	SenderName        string
	Recipient         string
	ProviderMessageID string
	ContentType       model.ContentType
	Body              string
	MediaURL          string
	Timestamp         *time.Time
}

// StatusUpdate reports progress of a message we sent earlier.
type StatusUpdate struct {
	ProviderMessageID string
	Status            model.MessageStatus
	Recipient         string
	Error             string
	Timestamp         *time.Time
}

// Envelope is everything extracted from one webhook delivery.
type Envelope struct {
	AccountID string
	Messages  []Inbound
	Statuses  []StatusUpdate
}

// Parse decodes a platform payload. account comes from the webhook URL and is
// required for platforms whose payload does not name the receiving account.
func Parse(platform model.Platform, account string, body []byte) (*Envelope, error) {
	switch platform {
	case model.PlatformWhatsApp:
		return parseGateway(account, body)
	case model.PlatformTelegram:
		return parseTelegram(account, body)
	case model.PlatformWhatsAppBusiness:
		return parseBusiness(body)
	}
	return nil, fmt.Errorf("%w: %s", appErrors.ErrUnsupported, platform)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// session gateway

type gatewayPayload struct {
	Event   string `json:"event"`
	Session string `json:"session"`
	Message *struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		To        string `json:"to"`
		PushName  string `json:"push_name"`
		Type      string `json:"type"`
		Body      string `json:"body"`
		Caption   string `json:"caption"`
		MediaURL  string `json:"media_url"`
		Timestamp int64  `json:"timestamp"`
		FromMe    bool   `json:"from_me"`
	} `json:"message"`
	Ack *struct {
		ID        string `json:"id"`
		To        string `json:"to"`
		Status    string `json:"status"`
		Error     string `json:"error"`
		Timestamp int64  `json:"timestamp"`
	} `json:"ack"`
}

var gatewayTypes = map[string]model.ContentType{
	"text":     model.ContentText,
	"chat":     model.ContentText,
	"image":    model.ContentImage,
	"video":    model.ContentVideo,
	"audio":    model.ContentAudio,
	"ptt":      model.ContentAudio,
	"document": model.ContentDocument,
	"sticker":  model.ContentSticker,
	"location": model.ContentLocation,
}

func contentType(table map[string]model.ContentType, raw string) model.ContentType {
	if ct, ok := table[strings.ToLower(raw)]; ok {
		return ct
	}
	return model.ContentUnknown
}

func parseGateway(account string, body []byte) (*Envelope, error) {
	var p gatewayPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, appErrors.Validation("decoding gateway payload: %v", err)
	}
	env := &Envelope{AccountID: p.Session}
	if env.AccountID == "" {
		env.AccountID = account
	}
	if env.AccountID == "" {
		return nil, appErrors.Validation("gateway payload names no session")
	}

	switch p.Event {
	case "message":
		m := p.Message
		if m == nil || m.ID == "" || m.From == "" {
			return nil, appErrors.Validation("gateway message without id or sender")
		}
		if m.FromMe {
			// echoes of our own sends
			return env, nil
		}
		text := m.Body
		if text == "" {
			text = m.Caption
		}
		env.Messages = append(env.Messages, Inbound{
			AccountID:         env.AccountID,
			Sender:            m.From,
			SenderName:        m.PushName,
			Recipient:         m.To,
			ProviderMessageID: m.ID,
			ContentType:       contentType(gatewayTypes, m.Type),
			Body:              text,
			MediaURL:          m.MediaURL,
			Timestamp:         unixTime(m.Timestamp),
		})
	case "ack":
		a := p.Ack
		if a == nil || a.ID == "" {
			return nil, appErrors.Validation("gateway ack without id")
		}
		status := model.MessageStatus(strings.ToLower(a.Status))
		if !status.Valid() {
			return nil, appErrors.Validation("unknown ack status %q", a.Status)
		}
		env.Statuses = append(env.Statuses, StatusUpdate{
			ProviderMessageID: a.ID,
			Status:            status,
			Recipient:         a.To,
			Error:             a.Error,
			Timestamp:         unixTime(a.Timestamp),
		})
	default:
		return nil, appErrors.Validation("unsupported gateway event %q", p.Event)
	}
	return env, nil
}

// telegram bot api

type telegramFile struct {
	FileID string `json:"file_id"`
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID        int64  `json:"id"`
			IsBot     bool   `json:"is_bot"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date     int64            `json:"date"`
		Text     string           `json:"text"`
		Caption  string           `json:"caption"`
		Photo    []telegramFile   `json:"photo"`
		Document *telegramFile    `json:"document"`
		Video    *telegramFile    `json:"video"`
		Voice    *telegramFile    `json:"voice"`
		Audio    *telegramFile    `json:"audio"`
		Sticker  *telegramFile    `json:"sticker"`
		Location *json.RawMessage `json:"location"`
	} `json:"message"`
}

func parseTelegram(account string, body []byte) (*Envelope, error) {
	if account == "" {
		return nil, appErrors.Validation("telegram webhook needs the bot account in the URL")
	}
	var u telegramUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, appErrors.Validation("decoding telegram update: %v", err)
	}
	env := &Envelope{AccountID: account}
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		// edited messages, channel posts and bot chatter are acknowledged, not stored
		return env, nil
	}

	in := Inbound{
		AccountID:  account,
		Sender:     strconv.FormatInt(m.Chat.ID, 10),
		SenderName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		Recipient:  account,
		// message_id is only unique per chat
		ProviderMessageID: fmt.Sprintf("tg:%s:%d:%d", account, m.Chat.ID, m.MessageID),
		Body:              m.Text,
		Timestamp:         unixTime(m.Date),
	}
	switch {
	case m.Text != "":
		in.ContentType = model.ContentText
	case len(m.Photo) > 0:
		in.ContentType = model.ContentImage
		in.MediaURL = m.Photo[len(m.Photo)-1].FileID
	case m.Document != nil:
		in.ContentType = model.ContentDocument
		in.MediaURL = m.Document.FileID
	case m.Video != nil:
		in.ContentType = model.ContentVideo
		in.MediaURL = m.Video.FileID
	case m.Voice != nil:
		in.ContentType = model.ContentAudio
		in.MediaURL = m.Voice.FileID
	case m.Audio != nil:
		in.ContentType = model.ContentAudio
		in.MediaURL = m.Audio.FileID
	case m.Sticker != nil:
		in.ContentType = model.ContentSticker
		in.MediaURL = m.Sticker.FileID
	case m.Location != nil:
		in.ContentType = model.ContentLocation
		in.Body = string(*m.Location)
	default:
		in.ContentType = model.ContentUnknown
	}
	if in.Body == "" {
		in.Body = m.Caption
	}
	env.Messages = append(env.Messages, in)
	return env, nil
}

// business messaging api

type businessPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []businessMessage `json:"messages"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
					Errors      []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type businessMedia struct {
	ID       string `json:"id"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type businessMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *businessMedia `json:"image"`
	Video    *businessMedia `json:"video"`
	Audio    *businessMedia `json:"audio"`
	Document *businessMedia `json:"document"`
	Sticker  *businessMedia `json:"sticker"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		ButtonReply *struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

func parseUnixString(s string) *time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return unixTime(sec)
}

func (m businessMessage) content() (model.ContentType, string, string) {
	media := func(ct model.ContentType, md *businessMedia) (model.ContentType, string, string) {
		return ct, md.Caption, md.ID
	}
	switch {
	case m.Text != nil:
		return model.ContentText, m.Text.Body, ""
	case m.Image != nil:
		return media(model.ContentImage, m.Image)
	case m.Video != nil:
		return media(model.ContentVideo, m.Video)
	case m.Audio != nil:
		return media(model.ContentAudio, m.Audio)
	case m.Document != nil:
		return media(model.ContentDocument, m.Document)
	case m.Sticker != nil:
		return media(model.ContentSticker, m.Sticker)
	case m.Button != nil:
		return model.ContentText, m.Button.Text, ""
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return model.ContentText, m.Interactive.ButtonReply.Title, ""
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return model.ContentText, m.Interactive.ListReply.Title, ""
	}
	return model.ContentUnknown, "", ""
}

func parseBusiness(body []byte) (*Envelope, error) {
	var p businessPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, appErrors.Validation("decoding business payload: %v", err)
	}
	env := &Envelope{}
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			v := change.Value
			account := v.Metadata.PhoneNumberID
			if env.AccountID == "" {
				env.AccountID = account
			} else if account != env.AccountID {
				return nil, appErrors.Validation("payload spans several phone numbers")
			}

			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				if m.ID == "" || m.From == "" {
					return nil, appErrors.Validation("business message without id or sender")
				}
				ct, text, media := m.content()
				env.Messages = append(env.Messages, Inbound{
					AccountID:         account,
					Sender:            m.From,
					SenderName:        names[m.From],
					Recipient:         v.Metadata.DisplayPhoneNumber,
					ProviderMessageID: m.ID,
					ContentType:       ct,
					Body:              text,
					MediaURL:          media,
					Timestamp:         parseUnixString(m.Timestamp),
				})
			}
			for _, s := range v.Statuses {
				status := model.MessageStatus(s.Status)
				if !status.Valid() {
					continue
				}
				su := StatusUpdate{
					ProviderMessageID: s.ID,
					Status:            status,
					Recipient:         s.RecipientID,
					Timestamp:         parseUnixString(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					su.Error = fmt.Sprintf("%d: %s", s.Errors[0].Code, s.Errors[0].Title)
				}
				env.Statuses = append(env.Statuses, su)
			}
		}
	}
	if env.AccountID == "" {
		return nil, appErrors.Validation("business payload carries no messages change")
	}
	return env, nil
}
