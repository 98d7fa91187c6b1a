package memstore

import (
	"context"
	"sort"
	"time"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
)

type CampaignRepo struct{ s *state }

func copyCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Recipients = append([]model.Recipient(nil), c.Recipients...)
	return &cp
}

func statusIn(s model.CampaignStatus, from []model.CampaignStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (r *CampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.TotalCount = len(c.Recipients)
	r.s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (r *CampaignRepo) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return copyCampaign(c), nil
}

func (r *CampaignRepo) List(_ context.Context, ownerID int64, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.s.campaigns {
		if c.OwnerID != ownerID || (status != "" && string(c.Status) != status) {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*model.Campaign, 0, end-offset)
	for _, c := range all[offset:end] {
		out = append(out, copyCampaign(c))
	}
	return out, total, nil
}

func (r *CampaignRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != model.CampaignDraft {
		return false, nil
	}
	delete(r.s.campaigns, id)
	delete(r.s.deliveries, id)
	return true, nil
}

func (r *CampaignRepo) Transition(_ context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || !statusIn(c.Status, from) {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = &at
	if to.Terminal() {
		c.CompletedAt = &at
	}
	return true, nil
}

func (r *CampaignRepo) Start(_ context.Context, c *model.Campaign, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.campaigns[c.ID]
	if !ok || !statusIn(stored.Status, []model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled}) {
		return false, nil
	}
	stored.Status = model.CampaignProcessing
	stored.StartedAt = &at
	stored.UpdatedAt = &at
	stored.NextTickAt = nil

	records := make([]*model.DeliveryRecord, 0, len(stored.Recipients))
	for i, rcpt := range stored.Recipients {
		records = append(records, &model.DeliveryRecord{
			ID:                  r.s.id(),
			CampaignID:          c.ID,
			Position:            i,
			RecipientIdentifier: rcpt.Identifier,
			Status:              model.DeliveryPending,
			CreatedAt:           at,
			UpdatedAt:           at,
		})
	}
	r.s.deliveries[c.ID] = records
	return true, nil
}

func (r *CampaignRepo) SaveProgress(_ context.Context, id int64, stats model.CampaignStats, nextTickAt *time.Time, lastError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	now := time.Now()
	c.SentCount = stats.Sent
	c.FailedCount = stats.Failed
	c.NextTickAt = nextTickAt
	c.LastError = lastError
	c.UpdatedAt = &now
	return nil
}

func (r *CampaignRepo) Complete(_ context.Context, id int64, to model.CampaignStatus, lastError string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || !statusIn(c.Status, []model.CampaignStatus{model.CampaignProcessing, model.CampaignPaused}) {
		return false, nil
	}
	c.Status = to
	c.CompletedAt = &at
	c.UpdatedAt = &at
	c.NextTickAt = nil
	if lastError != "" {
		c.LastError = lastError
	}
	return true, nil
}

func (r *CampaignRepo) ListDueScheduled(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	return r.listWhere(func(c *model.Campaign) bool {
		return c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
	}), nil
}

func (r *CampaignRepo) ListTickable(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	return r.listWhere(func(c *model.Campaign) bool {
		return c.Status == model.CampaignProcessing && (c.NextTickAt == nil || !c.NextTickAt.After(now))
	}), nil
}

func (r *CampaignRepo) listWhere(match func(*model.Campaign) bool) []*model.Campaign {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.s.campaigns {
		if match(c) {
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type DeliveryRepo struct{ s *state }

func (r *DeliveryRepo) find(id int64) *model.DeliveryRecord {
	for _, records := range r.s.deliveries {
		for _, d := range records {
			if d.ID == id {
				return d
			}
		}
	}
	return nil
}

func (r *DeliveryRepo) ClaimPending(_ context.Context, campaignID int64, limit int, token string, staleBefore time.Time) ([]*model.DeliveryRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var out []*model.DeliveryRecord
	for _, d := range r.s.deliveries[campaignID] {
		if len(out) == limit {
			break
		}
		stale := d.Status == model.DeliverySending && d.UpdatedAt.Before(staleBefore)
		if d.Status != model.DeliveryPending && !stale {
			continue
		}
		d.Status = model.DeliverySending
		d.ClaimToken = token
		d.UpdatedAt = now
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (r *DeliveryRepo) Release(_ context.Context, ids []int64, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if d := r.find(id); d != nil && d.Status == model.DeliverySending && d.ClaimToken == token {
			d.Status = model.DeliveryPending
			d.ClaimToken = ""
			d.UpdatedAt = now
		}
	}
	return nil
}

func (r *DeliveryRepo) MarkSent(_ context.Context, id int64, providerMessageID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d := r.find(id); d != nil && d.Status == model.DeliverySending {
		d.Status = model.DeliverySent
		d.ProviderMessageID = providerMessageID
		d.SentAt = &at
		d.Error = ""
		d.UpdatedAt = at
	}
	return nil
}

func (r *DeliveryRepo) MarkFailed(_ context.Context, id int64, errText string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d := r.find(id); d != nil && d.Status == model.DeliverySending {
		d.Status = model.DeliveryFailed
		d.Error = errText
		d.UpdatedAt = at
	}
	return nil
}

func (r *DeliveryRepo) CancelPending(_ context.Context, campaignID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, d := range r.s.deliveries[campaignID] {
		if d.Status == model.DeliveryPending {
			d.Status = model.DeliveryCancelled
			d.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *DeliveryRepo) Stats(_ context.Context, campaignID int64) (model.CampaignStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats model.CampaignStats
	for _, d := range r.s.deliveries[campaignID] {
		repository.TallyStat(&stats, d.Status, 1)
	}
	return stats, nil
}

func (r *DeliveryRepo) ListByCampaign(_ context.Context, campaignID int64) ([]*model.DeliveryRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	records := r.s.deliveries[campaignID]
	out := make([]*model.DeliveryRecord, len(records))
	for i, d := range records {
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

var (
	_ repository.CampaignRepositoryInterface = (*CampaignRepo)(nil)
	_ repository.DeliveryRepositoryInterface = (*DeliveryRepo)(nil)
)
