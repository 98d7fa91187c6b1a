package repository

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type DeliveryRepositoryInterface interface {
	// ClaimPending atomically moves up to limit pending records (in recipient
	// order) to sending, tagged with token. Records left in sending by a claim
	// older than staleBefore are claimed again. Concurrent claims never overlap.
	ClaimPending(ctx context.Context, campaignID int64, limit int, token string, staleBefore time.Time) ([]*model.DeliveryRecord, error)
	// Release returns claimed records to pending.
	Release(ctx context.Context, ids []int64, token string) error
	MarkSent(ctx context.Context, id int64, providerMessageID string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errText string, at time.Time) error
	// CancelPending moves every pending record of a campaign to cancelled.
	CancelPending(ctx context.Context, campaignID int64) (int, error)
	Stats(ctx context.Context, campaignID int64) (model.CampaignStats, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]*model.DeliveryRecord, error)
}

type DeliveryRepository struct {
	DB *sqlx.DB
}

const deliveryColumns = `id, campaign_id, position, recipient_identifier, status, provider_message_id, error,
	claim_token, sent_at, created_at, updated_at`

func (r *DeliveryRepository) ClaimPending(ctx context.Context, campaignID int64, limit int, token string, staleBefore time.Time) ([]*model.DeliveryRecord, error) {
	query := `
        UPDATE broadcast_deliveries
        SET status='sending', claim_token=$1, updated_at=NOW()
        WHERE id IN (
            SELECT id FROM broadcast_deliveries
            WHERE campaign_id=$2
              AND (status='pending' OR (status='sending' AND updated_at < $4))
            ORDER BY position ASC
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + deliveryColumns
	var records []*model.DeliveryRecord
	if err := r.DB.SelectContext(ctx, &records, query, token, campaignID, limit, staleBefore); err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order
	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })
	return records, nil
}

func (r *DeliveryRepository) Release(ctx context.Context, ids []int64, token string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
        UPDATE broadcast_deliveries
        SET status='pending', claim_token='', updated_at=NOW()
        WHERE id = ANY($1) AND status='sending' AND claim_token=$2
    `
	_, err := r.DB.ExecContext(ctx, query, pq.Array(ids), token)
	return err
}

func (r *DeliveryRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, at time.Time) error {
	query := `
        UPDATE broadcast_deliveries
        SET status='sent', provider_message_id=$1, sent_at=$2, error='', updated_at=$2
        WHERE id=$3 AND status='sending'
    `
	_, err := r.DB.ExecContext(ctx, query, providerMessageID, at, id)
	return err
}

func (r *DeliveryRepository) MarkFailed(ctx context.Context, id int64, errText string, at time.Time) error {
	query := `
        UPDATE broadcast_deliveries
        SET status='failed', error=$1, updated_at=$2
        WHERE id=$3 AND status='sending'
    `
	_, err := r.DB.ExecContext(ctx, query, errText, at, id)
	return err
}

func (r *DeliveryRepository) CancelPending(ctx context.Context, campaignID int64) (int, error) {
	query := `
        UPDATE broadcast_deliveries
        SET status='cancelled', updated_at=NOW()
        WHERE campaign_id=$1 AND status='pending'
    `
	res, err := r.DB.ExecContext(ctx, query, campaignID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *DeliveryRepository) Stats(ctx context.Context, campaignID int64) (model.CampaignStats, error) {
	query := `SELECT status, COUNT(*) FROM broadcast_deliveries WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}
	defer rows.Close()

	var stats model.CampaignStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.CampaignStats{}, err
		}
		TallyStat(&stats, model.DeliveryStatus(status), count)
	}
	return stats, rows.Err()
}

// TallyStat adds n records in status to stats.
func TallyStat(stats *model.CampaignStats, status model.DeliveryStatus, n int) {
	switch status {
	case model.DeliveryPending:
		stats.Pending += n
	case model.DeliverySending:
		stats.Sending += n
	case model.DeliverySent:
		stats.Sent += n
	case model.DeliveryFailed:
		stats.Failed += n
	case model.DeliveryCancelled:
		stats.Cancelled += n
	}
	stats.Total += n
}

func (r *DeliveryRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.DeliveryRecord, error) {
	var records []*model.DeliveryRecord
	query := `SELECT ` + deliveryColumns + ` FROM broadcast_deliveries WHERE campaign_id=$1 ORDER BY position ASC`
	if err := r.DB.SelectContext(ctx, &records, query, campaignID); err != nil {
		return nil, err
	}
	return records, nil
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
