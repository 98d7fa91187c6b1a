// Package memstore keeps every repository in process memory. It backs the
// server when DATABASE_URL is empty and the service tests. All repositories
// of one Store share a single lock, so multi-entity operations stay atomic.
package memstore

import (
	"sync"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type state struct {
	mu     sync.Mutex
	nextID int64

	owners      map[int64]*model.Owner
	channels    map[int64]*model.Channel
	contacts    map[int64]*model.Contact
	messages    map[string]*model.Message
	rules       map[int64]*model.AutoReplyRule
	campaigns   map[int64]*model.Campaign
	deliveries  map[int64][]*model.DeliveryRecord
	webhookLogs []*model.WebhookLogEntry
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	Owners      *OwnerRepo
	Channels    *ChannelRepo
	Contacts    *ContactRepo
	Messages    *MessageRepo
	Rules       *RuleRepo
	Campaigns   *CampaignRepo
	Deliveries  *DeliveryRepo
	WebhookLogs *WebhookLogRepo

	s *state
}

func New() *Store {
	s := &state{
		owners:     map[int64]*model.Owner{},
		channels:   map[int64]*model.Channel{},
		contacts:   map[int64]*model.Contact{},
		messages:   map[string]*model.Message{},
		rules:      map[int64]*model.AutoReplyRule{},
		campaigns:  map[int64]*model.Campaign{},
		deliveries: map[int64][]*model.DeliveryRecord{},
	}
	return &Store{
		Owners:      &OwnerRepo{s},
		Channels:    &ChannelRepo{s},
		Contacts:    &ContactRepo{s},
		Messages:    &MessageRepo{s},
		Rules:       &RuleRepo{s},
		Campaigns:   &CampaignRepo{s},
		Deliveries:  &DeliveryRepo{s},
		WebhookLogs: &WebhookLogRepo{s},
		s:           s,
	}
}

// PutOwner seeds an owner.
func (st *Store) PutOwner(o model.Owner) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.owners[o.ID] = &o
}

// PutChannel seeds a channel, assigning an id when zero.
func (st *Store) PutChannel(c model.Channel) *model.Channel {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = st.s.id()
	} else if c.ID > st.s.nextID {
		st.s.nextID = c.ID
	}
	st.s.channels[c.ID] = &c
	cp := c
	return &cp
}

// MessageList returns a snapshot of stored messages.
func (st *Store) MessageList() []model.Message {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]model.Message, 0, len(st.s.messages))
	for _, m := range st.s.messages {
		out = append(out, *m)
	}
	return out
}

// ContactList returns a snapshot of stored contacts.
func (st *Store) ContactList() []model.Contact {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]model.Contact, 0, len(st.s.contacts))
	for _, c := range st.s.contacts {
		out = append(out, *c)
	}
	return out
}

// WebhookLogList returns a snapshot of the audit log.
func (st *Store) WebhookLogList() []model.WebhookLogEntry {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]model.WebhookLogEntry, len(st.s.webhookLogs))
	for i, e := range st.s.webhookLogs {
		out[i] = *e
	}
	return out
}
