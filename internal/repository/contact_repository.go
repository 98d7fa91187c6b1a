package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// ContactRepositoryInterface defines methods used by the normalizer and dispatcher
type ContactRepositoryInterface interface {
	// Upsert creates the contact on first sight, otherwise touches
	// last_interaction_at and refreshes a non-empty display name.
	Upsert(ctx context.Context, c *model.Contact) (*model.Contact, error)
}

type ContactRepository struct {
	DB *sqlx.DB
}

func (r *ContactRepository) Upsert(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	return upsertContact(ctx, r.DB, c)
}

// upsertContact runs on the pool or inside a transaction.
func upsertContact(ctx context.Context, q sqlx.QueryerContext, c *model.Contact) (*model.Contact, error) {
	query := `
        INSERT INTO contacts (owner_id, platform, identifier, display_name, saved, last_interaction_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (owner_id, platform, identifier) DO UPDATE
        SET last_interaction_at = GREATEST(contacts.last_interaction_at, EXCLUDED.last_interaction_at),
            display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE contacts.display_name END,
            saved = contacts.saved OR EXCLUDED.saved
        RETURNING id, owner_id, platform, identifier, display_name, saved, last_interaction_at, created_at
    `
	var out model.Contact
	err := sqlx.GetContext(ctx, q, &out, query,
		c.OwnerID, c.Platform, c.Identifier, c.DisplayName, c.Saved, c.LastInteractionAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
