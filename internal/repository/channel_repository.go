package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type ChannelRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Channel, error)
	// GetByAccount returns nil, nil when no channel matches.
	GetByAccount(ctx context.Context, platform model.Platform, externalAccountID string) (*model.Channel, error)
	UpdateLiveState(ctx context.Context, id int64, state model.LiveState, at time.Time) error
}

// OwnerRepositoryInterface resolves owner settings needed by the engine.
type OwnerRepositoryInterface interface {
	// Timezone returns "" when the owner has none configured.
	Timezone(ctx context.Context, ownerID int64) (string, error)
}

type ChannelRepository struct {
	DB *sqlx.DB
}

const channelColumns = `id, platform, owner_id, external_account_id, live_state, auto_reply_enabled,
	auto_save_contacts, active, created_at, updated_at`

func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*model.Channel, error) {
	var c model.Channel
	err := r.DB.GetContext(ctx, &c, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewChannelNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepository) GetByAccount(ctx context.Context, platform model.Platform, externalAccountID string) (*model.Channel, error) {
	var c model.Channel
	query := `SELECT ` + channelColumns + ` FROM channels WHERE platform=$1 AND external_account_id=$2 AND active`
	err := r.DB.GetContext(ctx, &c, query, platform, externalAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepository) UpdateLiveState(ctx context.Context, id int64, state model.LiveState, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE channels SET live_state=$1, updated_at=$2 WHERE id=$3`, state, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewChannelNotFound(id)
	}
	return nil
}

type OwnerRepository struct {
	DB *sqlx.DB
}

func (r *OwnerRepository) Timezone(ctx context.Context, ownerID int64) (string, error) {
	var tz string
	err := r.DB.GetContext(ctx, &tz, `SELECT timezone FROM owners WHERE id=$1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

var (
	_ ChannelRepositoryInterface = (*ChannelRepository)(nil)
	_ OwnerRepositoryInterface   = (*OwnerRepository)(nil)
)
