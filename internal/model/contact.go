// internal/model/contact.go
package model

import "time"

// Contact is unique per (owner, platform, identifier).
type Contact struct {
	ID                int64     `db:"id" json:"id"`
	OwnerID           int64     `db:"owner_id" json:"owner_id"`
	Platform          Platform  `db:"platform" json:"platform"`
	Identifier        string    `db:"identifier" json:"identifier"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	Saved             bool      `db:"saved" json:"saved"`
	LastInteractionAt time.Time `db:"last_interaction_at" json:"last_interaction_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

type Owner struct {
	ID       int64  `db:"id" json:"id"`
	Timezone string `db:"timezone" json:"timezone"`
}
