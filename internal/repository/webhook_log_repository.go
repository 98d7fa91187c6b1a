package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type WebhookLogRepositoryInterface interface {
	Append(ctx context.Context, e *model.WebhookLogEntry) error
	// Prune deletes entries older than cutoff; used by housekeeping only.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type WebhookLogRepository struct {
	DB *sqlx.DB
}

func (r *WebhookLogRepository) Append(ctx context.Context, e *model.WebhookLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	payload := []byte(e.Payload)
	if payload == nil {
		payload = []byte{}
	}
	query := `
        INSERT INTO webhook_logs (platform, channel_id, payload, outcome, sender, recipient, provider_message_id, error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRowxContext(ctx, query,
		e.Platform, e.ChannelID, payload, e.Outcome, e.Sender, e.Recipient, e.ProviderMessageID, e.Error, e.CreatedAt,
	).Scan(&e.ID)
}

func (r *WebhookLogRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM webhook_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ WebhookLogRepositoryInterface = (*WebhookLogRepository)(nil)
