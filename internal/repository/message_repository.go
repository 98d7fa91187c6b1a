package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type MessageRepositoryInterface interface {
	// Insert stores m unless a message with the same provider message id
	// exists. inserted is false for a duplicate; that is not an error.
	Insert(ctx context.Context, m *model.Message) (inserted bool, err error)
	// InsertInbound upserts the sender contact and stores m in one
	// transaction. For a duplicate provider message id nothing changes,
	// the contact included, and inserted is false.
	InsertInbound(ctx context.Context, sender *model.Contact, m *model.Message) (contact *model.Contact, inserted bool, err error)
	// GetByProviderID returns nil, nil when missing.
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
	// AdvanceStatus applies status only if it moves the message forward.
	AdvanceStatus(ctx context.Context, providerMessageID string, status model.MessageStatus, errText string, at time.Time) (bool, error)
	CountInbound(ctx context.Context, channelID, contactID int64) (int, error)
}

type MessageRepository struct {
	DB *sqlx.DB
}

const messageColumns = `id, provider_message_id, channel_id, contact_id, direction, content_type, body, media_url,
	status, is_auto_reply, source_rule_id, campaign_id, error, provider_timestamp, sent_at, delivered_at,
	read_at, failed_at, created_at`

const uniqueViolation = "23505"

const insertMessage = `
        INSERT INTO messages (provider_message_id, channel_id, contact_id, direction, content_type, body, media_url,
            status, is_auto_reply, source_rule_id, campaign_id, error, provider_timestamp, sent_at, delivered_at,
            read_at, failed_at, created_at)
        VALUES (:provider_message_id, :channel_id, :contact_id, :direction, :content_type, :body, :media_url,
            :status, :is_auto_reply, :source_rule_id, :campaign_id, :error, :provider_timestamp, :sent_at,
            :delivered_at, :read_at, :failed_at, :created_at)`

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	rows, err := r.DB.NamedQueryContext(ctx, insertMessage+` RETURNING id`, m)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&m.ID); err != nil {
			return false, err
		}
	}
	if err := rows.Err(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) InsertInbound(ctx context.Context, sender *model.Contact, m *model.Message) (*model.Contact, bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	contact, err := upsertContact(ctx, tx, sender)
	if err != nil {
		return nil, false, err
	}
	m.ContactID = contact.ID

	rows, err := sqlx.NamedQueryContext(ctx, tx, insertMessage+` ON CONFLICT (provider_message_id) DO NOTHING RETURNING id`, m)
	if err != nil {
		return nil, false, err
	}
	inserted := rows.Next()
	if inserted {
		err = rows.Scan(&m.ID)
	}
	if err == nil {
		err = rows.Err()
	}
	rows.Close()
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// duplicate: the rollback undoes the contact touch
		return nil, false, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return contact, true, nil
}

func (r *MessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var m model.Message
	err := r.DB.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE provider_message_id=$1`, providerMessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, providerMessageID string, status model.MessageStatus, errText string, at time.Time) (advanced bool, err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !advanced {
			_ = tx.Rollback()
		}
	}()

	var m model.Message
	err = tx.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE provider_message_id=$1 FOR UPDATE`, providerMessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if !m.Status.CanAdvanceTo(status) {
		return false, nil
	}

	m.StampStatus(status, at)
	if errText != "" {
		m.Error = errText
	}
	_, err = tx.NamedExecContext(ctx, `
        UPDATE messages
        SET status=:status, error=:error, sent_at=:sent_at, delivered_at=:delivered_at, read_at=:read_at, failed_at=:failed_at
        WHERE id=:id
    `, &m)
	if err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) CountInbound(ctx context.Context, channelID, contactID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE channel_id=$1 AND contact_id=$2 AND direction='inbound'`
	err := r.DB.GetContext(ctx, &n, query, channelID, contactID)
	return n, err
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
