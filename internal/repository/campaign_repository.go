package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, ownerID int64, offset, limit int, status string) ([]*model.Campaign, int, error)
	// Delete removes a campaign only while it is still a draft.
	Delete(ctx context.Context, id int64) (bool, error)

	// Transition moves a campaign to `to` only if its current status is in `from`.
	Transition(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, at time.Time) (bool, error)
	// Start moves a draft/scheduled campaign to processing and creates one
	// pending delivery record per recipient, atomically.
	Start(ctx context.Context, c *model.Campaign, at time.Time) (bool, error)
	// SaveProgress caches derived counters and scheduling hints.
	SaveProgress(ctx context.Context, id int64, stats model.CampaignStats, nextTickAt *time.Time, lastError string) error
	// Complete moves a processing campaign to a terminal status.
	Complete(ctx context.Context, id int64, to model.CampaignStatus, lastError string, at time.Time) (bool, error)

	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	ListTickable(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

type campaignRow struct {
	ID               int64          `db:"id"`
	ChannelID        int64          `db:"channel_id"`
	OwnerID          int64          `db:"owner_id"`
	Name             string         `db:"name"`
	TemplateType     string         `db:"template_type"`
	TemplateContent  string         `db:"template_content"`
	TemplateMediaURL string         `db:"template_media_url"`
	Recipients       []byte         `db:"recipients"`
	BatchSize        int            `db:"batch_size"`
	BatchDelayMS     int64          `db:"batch_delay_ms"`
	Status           string         `db:"status"`
	TotalCount       int            `db:"total_count"`
	SentCount        int            `db:"sent_count"`
	FailedCount      int            `db:"failed_count"`
	ScheduledAt      *time.Time     `db:"scheduled_at"`
	StartedAt        *time.Time     `db:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at"`
	NextTickAt       *time.Time     `db:"next_tick_at"`
	LastError        sql.NullString `db:"last_error"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        *time.Time     `db:"updated_at"`
}

const campaignColumns = `id, channel_id, owner_id, name, template_type, template_content, template_media_url,
	recipients, batch_size, batch_delay_ms, status, total_count, sent_count, failed_count,
	scheduled_at, started_at, completed_at, next_tick_at, last_error, created_at, updated_at`

func (r campaignRow) toModel() (*model.Campaign, error) {
	c := &model.Campaign{
		ID:        r.ID,
		ChannelID: r.ChannelID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Template: model.MessageTemplate{
			Type:     model.ContentType(r.TemplateType),
			Content:  r.TemplateContent,
			MediaURL: r.TemplateMediaURL,
		},
		BatchSize:   r.BatchSize,
		BatchDelay:  time.Duration(r.BatchDelayMS) * time.Millisecond,
		Status:      model.CampaignStatus(r.Status),
		TotalCount:  r.TotalCount,
		SentCount:   r.SentCount,
		FailedCount: r.FailedCount,
		ScheduledAt: r.ScheduledAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		NextTickAt:  r.NextTickAt,
		LastError:   r.LastError.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Recipients) > 0 {
		if err := json.Unmarshal(r.Recipients, &c.Recipients); err != nil {
			return nil, fmt.Errorf("decoding recipients of campaign %d: %w", r.ID, err)
		}
	}
	return c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	recipients, err := json.Marshal(c.Recipients)
	if err != nil {
		return fmt.Errorf("encoding recipients: %w", err)
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.TotalCount = len(c.Recipients)

	query := `
        INSERT INTO campaigns (channel_id, owner_id, name, template_type, template_content, template_media_url,
            recipients, batch_size, batch_delay_ms, status, total_count, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRowxContext(ctx, query,
		c.ChannelID, c.OwnerID, c.Name, c.Template.Type, c.Template.Content, c.Template.MediaURL,
		recipients, c.BatchSize, c.BatchDelay.Milliseconds(), c.Status, c.TotalCount, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var row campaignRow
	err := r.DB.GetContext(ctx, &row, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return row.toModel()
}

func (r *CampaignRepository) List(ctx context.Context, ownerID int64, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE owner_id=$1`
	args := []interface{}{ownerID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns`+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, len(args)+1, len(args)+2)
	var rows []campaignRow
	if err := r.DB.SelectContext(ctx, &rows, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	campaigns := make([]*model.Campaign, 0, len(rows))
	for _, row := range rows {
		c, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1 AND status=$2`, id, model.CampaignDraft)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func statusStrings(from []model.CampaignStatus) pq.StringArray {
	out := make(pq.StringArray, len(from))
	for i, s := range from {
		out[i] = string(s)
	}
	return out
}

func (r *CampaignRepository) Transition(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, at time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, updated_at=$2,
            completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN $2 ELSE completed_at END
        WHERE id=$3 AND status = ANY($4)
    `
	res, err := r.DB.ExecContext(ctx, query, to, at, id, statusStrings(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *CampaignRepository) Start(ctx context.Context, c *model.Campaign, at time.Time) (ok bool, err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
        UPDATE campaigns
        SET status=$1, started_at=$2, updated_at=$2, next_tick_at=NULL
        WHERE id=$3 AND status = ANY($4)
    `, model.CampaignProcessing, at, c.ID, statusStrings([]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled}))
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return false, err
	}

	stmt, err := tx.PreparexContext(ctx, `
        INSERT INTO broadcast_deliveries (campaign_id, position, recipient_identifier, status, created_at, updated_at)
        VALUES ($1, $2, $3, 'pending', $4, $4)
        ON CONFLICT (campaign_id, position) DO NOTHING
    `)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	for i, rcpt := range c.Recipients {
		if _, err = stmt.ExecContext(ctx, c.ID, i, rcpt.Identifier, at); err != nil {
			return false, fmt.Errorf("creating delivery record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *CampaignRepository) SaveProgress(ctx context.Context, id int64, stats model.CampaignStats, nextTickAt *time.Time, lastError string) error {
	query := `
        UPDATE campaigns
        SET sent_count=$1, failed_count=$2, next_tick_at=$3, last_error=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.ExecContext(ctx, query, stats.Sent, stats.Failed, nextTickAt, lastError, id)
	return err
}

func (r *CampaignRepository) Complete(ctx context.Context, id int64, to model.CampaignStatus, lastError string, at time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, completed_at=$2, updated_at=$2, next_tick_at=NULL,
            last_error = CASE WHEN $3 = '' THEN last_error ELSE $3 END
        WHERE id=$4 AND status = ANY($5)
    `
	from := statusStrings([]model.CampaignStatus{model.CampaignProcessing, model.CampaignPaused})
	res, err := r.DB.ExecContext(ctx, query, to, at, lastError, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	return r.listWhere(ctx, `status=$1 AND scheduled_at <= $2`, model.CampaignScheduled, now)
}

func (r *CampaignRepository) ListTickable(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	return r.listWhere(ctx, `status=$1 AND (next_tick_at IS NULL OR next_tick_at <= $2)`, model.CampaignProcessing, now)
}

func (r *CampaignRepository) listWhere(ctx context.Context, where string, args ...interface{}) ([]*model.Campaign, error) {
	var rows []campaignRow
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE ` + where + ` ORDER BY id ASC`
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.Campaign, 0, len(rows))
	for _, row := range rows {
		c, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
