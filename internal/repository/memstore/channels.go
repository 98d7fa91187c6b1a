package memstore

import (
	"context"
	"time"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

type ChannelRepo struct{ s *state }

func (r *ChannelRepo) GetByID(_ context.Context, id int64) (*model.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.channels[id]
	if !ok {
		return nil, appErrors.NewChannelNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *ChannelRepo) GetByAccount(_ context.Context, platform model.Platform, externalAccountID string) (*model.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.channels {
		if c.Platform == platform && c.ExternalAccountID == externalAccountID && c.Active {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ChannelRepo) UpdateLiveState(_ context.Context, id int64, state model.LiveState, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.channels[id]
	if !ok {
		return appErrors.NewChannelNotFound(id)
	}
	c.LiveState = state
	c.UpdatedAt = &at
	return nil
}

type OwnerRepo struct{ s *state }

func (r *OwnerRepo) Timezone(_ context.Context, ownerID int64) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.owners[ownerID]; ok {
		return o.Timezone, nil
	}
	return "", nil
}

type ContactRepo struct{ s *state }

func (r *ContactRepo) Upsert(_ context.Context, c *model.Contact) (*model.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.upsertContact(c), nil
}

// upsertContact expects s.mu to be held.
func (s *state) upsertContact(c *model.Contact) *model.Contact {
	for _, existing := range s.contacts {
		if existing.OwnerID == c.OwnerID && existing.Platform == c.Platform && existing.Identifier == c.Identifier {
			if c.LastInteractionAt.After(existing.LastInteractionAt) {
				existing.LastInteractionAt = c.LastInteractionAt
			}
			if c.DisplayName != "" {
				existing.DisplayName = c.DisplayName
			}
			existing.Saved = existing.Saved || c.Saved
			cp := *existing
			return &cp
		}
	}
	stored := *c
	stored.ID = s.id()
	stored.CreatedAt = c.LastInteractionAt
	s.contacts[stored.ID] = &stored
	cp := stored
	return &cp
}

var (
	_ repository.ChannelRepositoryInterface = (*ChannelRepo)(nil)
	_ repository.OwnerRepositoryInterface   = (*OwnerRepo)(nil)
	_ repository.ContactRepositoryInterface = (*ContactRepo)(nil)
)
