package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

type RuleRepositoryInterface interface {
	Create(ctx context.Context, rule *model.AutoReplyRule) error
	Update(ctx context.Context, rule *model.AutoReplyRule) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.AutoReplyRule, error)
	// ListByChannel orders by priority descending, then id ascending.
	ListByChannel(ctx context.Context, channelID int64, activeOnly bool) ([]*model.AutoReplyRule, error)
	IncrementUsage(ctx context.Context, id int64) error
}

type RuleRepository struct {
	DB *sqlx.DB
}

type ruleRow struct {
	ID                int64          `db:"id"`
	ChannelID         int64          `db:"channel_id"`
	Name              string         `db:"name"`
	TriggerType       string         `db:"trigger_type"`
	TriggerValue      sql.NullString `db:"trigger_value"`
	ReplyType         string         `db:"reply_type"`
	ReplyText         string         `db:"reply_text"`
	ReplyMediaURL     string         `db:"reply_media_url"`
	ReplyFileName     string         `db:"reply_file_name"`
	ReplyTemplateName string         `db:"reply_template_name"`
	Active            bool           `db:"active"`
	Priority          int            `db:"priority"`
	HoursStart        sql.NullString `db:"business_hours_start"`
	HoursEnd          sql.NullString `db:"business_hours_end"`
	BusinessDays      pq.Int64Array  `db:"business_days"`
	OnlyFirstMessage  bool           `db:"only_first_message"`
	UsageCount        int64          `db:"usage_count"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         *time.Time     `db:"updated_at"`
}

const ruleColumns = `id, channel_id, name, trigger_type, trigger_value, reply_type, reply_text, reply_media_url,
	reply_file_name, reply_template_name, active, priority, business_hours_start, business_hours_end,
	business_days, only_first_message, usage_count, created_at, updated_at`

func (r ruleRow) toModel() *model.AutoReplyRule {
	rule := &model.AutoReplyRule{
		ID:          r.ID,
		ChannelID:   r.ChannelID,
		Name:        r.Name,
		TriggerType: model.TriggerType(r.TriggerType),
		Reply: model.Reply{
			Type:         model.ReplyType(r.ReplyType),
			Text:         r.ReplyText,
			MediaURL:     r.ReplyMediaURL,
			FileName:     r.ReplyFileName,
			TemplateName: r.ReplyTemplateName,
		},
		Active:           r.Active,
		Priority:         r.Priority,
		OnlyFirstMessage: r.OnlyFirstMessage,
		UsageCount:       r.UsageCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.TriggerValue.Valid {
		v := r.TriggerValue.String
		rule.TriggerValue = &v
	}
	if r.HoursStart.Valid && r.HoursEnd.Valid {
		bh := &model.BusinessHours{Start: r.HoursStart.String, End: r.HoursEnd.String}
		for _, d := range r.BusinessDays {
			bh.Days = append(bh.Days, time.Weekday(d))
		}
		rule.BusinessHours = bh
	}
	return rule
}

func ruleArgs(rule *model.AutoReplyRule) (start, end sql.NullString, days pq.Int64Array) {
	if rule.BusinessHours == nil {
		return
	}
	start = sql.NullString{String: rule.BusinessHours.Start, Valid: true}
	end = sql.NullString{String: rule.BusinessHours.End, Valid: true}
	for _, d := range rule.BusinessHours.Days {
		days = append(days, int64(d))
	}
	return
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.AutoReplyRule) error {
	rule.CreatedAt = time.Now()
	start, end, days := ruleArgs(rule)
	query := `
        INSERT INTO auto_reply_rules (channel_id, name, trigger_type, trigger_value, reply_type, reply_text,
            reply_media_url, reply_file_name, reply_template_name, active, priority, business_hours_start,
            business_hours_end, business_days, only_first_message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING id
    `
	return r.DB.QueryRowxContext(ctx, query,
		rule.ChannelID, rule.Name, rule.TriggerType, rule.TriggerValue, rule.Reply.Type, rule.Reply.Text,
		rule.Reply.MediaURL, rule.Reply.FileName, rule.Reply.TemplateName, rule.Active, rule.Priority,
		start, end, days, rule.OnlyFirstMessage, rule.CreatedAt,
	).Scan(&rule.ID)
}

func (r *RuleRepository) Update(ctx context.Context, rule *model.AutoReplyRule) error {
	now := time.Now()
	rule.UpdatedAt = &now
	start, end, days := ruleArgs(rule)
	query := `
        UPDATE auto_reply_rules
        SET name=$1, trigger_type=$2, trigger_value=$3, reply_type=$4, reply_text=$5, reply_media_url=$6,
            reply_file_name=$7, reply_template_name=$8, active=$9, priority=$10, business_hours_start=$11,
            business_hours_end=$12, business_days=$13, only_first_message=$14, updated_at=$15
        WHERE id=$16
    `
	res, err := r.DB.ExecContext(ctx, query,
		rule.Name, rule.TriggerType, rule.TriggerValue, rule.Reply.Type, rule.Reply.Text, rule.Reply.MediaURL,
		rule.Reply.FileName, rule.Reply.TemplateName, rule.Active, rule.Priority, start, end, days,
		rule.OnlyFirstMessage, now, rule.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewRuleNotFound(rule.ID)
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM auto_reply_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewRuleNotFound(id)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*model.AutoReplyRule, error) {
	var row ruleRow
	err := r.DB.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM auto_reply_rules WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewRuleNotFound(id)
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *RuleRepository) ListByChannel(ctx context.Context, channelID int64, activeOnly bool) ([]*model.AutoReplyRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM auto_reply_rules WHERE channel_id=$1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY priority DESC, id ASC`

	var rows []ruleRow
	if err := r.DB.SelectContext(ctx, &rows, query, channelID); err != nil {
		return nil, err
	}
	rules := make([]*model.AutoReplyRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toModel())
	}
	return rules, nil
}

func (r *RuleRepository) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE auto_reply_rules SET usage_count = usage_count + 1 WHERE id=$1`, id)
	return err
}

var _ RuleRepositoryInterface = (*RuleRepository)(nil)
