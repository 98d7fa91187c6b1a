// Package ratelimit enforces per-channel provider sending caps. Every send,
// campaign or auto-reply, reserves a slot here first.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/metrics"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

const (
	ReasonCooldown  = "cooldown"
	ReasonHourlyCap = "hourly_cap"
	ReasonDailyCap  = "daily_cap"
)

// CapsFunc returns the hourly and daily cap for a platform. A cap of zero
// denies every reservation.
type CapsFunc func(p model.Platform) (hourly, daily int)

// Reservation is the outcome of TryReserve. A denied reservation is not an
// error; RetryAt says when the channel may be eligible again.
type Reservation struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

// Snapshot is the read model of a channel's bucket.
type Snapshot struct {
	ChannelID            int64      `json:"channel_id"`
	HourlyCount          int        `json:"hourly_count"`
	HourlyCap            int        `json:"hourly_cap"`
	DailyCount           int        `json:"daily_count"`
	DailyCap             int        `json:"daily_cap"`
	LastSendAt           *time.Time `json:"last_send_at,omitempty"`
	CooldownUntil        *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveThrottles int        `json:"consecutive_throttles"`
}

type Limiter struct {
	store       BucketStore
	caps        CapsFunc
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      zerolog.Logger

	locks sync.Map // channel id -> *sync.Mutex

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewLimiter(store BucketStore, caps CapsFunc, backoffBase, backoffMax time.Duration, logger zerolog.Logger) *Limiter {
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}
	return &Limiter{
		store:       store,
		caps:        caps,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		logger:      logger.With().Str("component", "ratelimit").Logger(),
		Now:         time.Now,
	}
}

// lock returns the mutex guarding channelID. Each channel has its own.
func (l *Limiter) lock(channelID int64) *sync.Mutex {
	if mu, ok := l.locks.Load(channelID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := l.locks.LoadOrStore(channelID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func hourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func nextDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// roll resets counters whose hour or date has passed.
func roll(b *model.RateLimitBucket, now time.Time) {
	if hb := hourBucket(now); !b.HourBucket.Equal(hb) {
		b.HourBucket = hb
		b.HourlyCount = 0
	}
	if d := dayKey(now); b.Day != d {
		b.Day = d
		b.DailyCount = 0
	}
}

// TryReserve takes one send slot for the channel, or reports why it cannot.
// It fails closed: a store error denies the reservation.
func (l *Limiter) TryReserve(ctx context.Context, ch *model.Channel) (Reservation, error) {
	mu := l.lock(ch.ID)
	mu.Lock()
	defer mu.Unlock()

	now := l.Now()
	hourlyCap, dailyCap := l.caps(ch.Platform)

	var res Reservation
	_, err := l.store.Update(ctx, ch.ID, func(b *model.RateLimitBucket) {
		roll(b, now)
		switch {
		case b.CooldownUntil != nil && now.Before(*b.CooldownUntil):
			res = Reservation{Reason: ReasonCooldown, RetryAt: *b.CooldownUntil}
		case b.HourlyCount >= hourlyCap:
			res = Reservation{Reason: ReasonHourlyCap, RetryAt: b.HourBucket.Add(time.Hour)}
		case b.DailyCount >= dailyCap:
			res = Reservation{Reason: ReasonDailyCap, RetryAt: nextDay(now)}
		default:
			b.HourlyCount++
			b.DailyCount++
			sentAt := now
			b.LastSendAt = &sentAt
			res = Reservation{Allowed: true}
		}
	})
	if err != nil {
		l.logger.Error().Err(err).Int64("channel_id", ch.ID).Msg("rate limit store unavailable")
		return Reservation{Reason: "store_error", RetryAt: now.Add(l.backoffBase)}, err
	}
	if !res.Allowed {
		metrics.RateLimitDenials.WithLabelValues(res.Reason).Inc()
		l.logger.Debug().
			Int64("channel_id", ch.ID).
			Str("reason", res.Reason).
			Time("retry_at", res.RetryAt).
			Msg("reservation denied")
	}
	return res, nil
}

// Refund gives back a reservation that was never used for a send. Counters
// that rolled over since the reservation are left alone.
func (l *Limiter) Refund(ctx context.Context, channelID int64) error {
	mu := l.lock(channelID)
	mu.Lock()
	defer mu.Unlock()

	now := l.Now()
	_, err := l.store.Update(ctx, channelID, func(b *model.RateLimitBucket) {
		roll(b, now)
		if b.HourlyCount > 0 {
			b.HourlyCount--
		}
		if b.DailyCount > 0 {
			b.DailyCount--
		}
	})
	return err
}

// RecordSuccess clears the throttle streak after a successful send.
func (l *Limiter) RecordSuccess(ctx context.Context, channelID int64) error {
	mu := l.lock(channelID)
	mu.Lock()
	defer mu.Unlock()

	_, err := l.store.Update(ctx, channelID, func(b *model.RateLimitBucket) {
		b.ConsecutiveThrottles = 0
	})
	return err
}

// RecordFailure escalates the channel cooldown when sendErr is a provider
// throttle. Other failures leave the bucket untouched.
func (l *Limiter) RecordFailure(ctx context.Context, channelID int64, sendErr error) error {
	if !appErrors.IsThrottle(sendErr) {
		return nil
	}
	mu := l.lock(channelID)
	mu.Lock()
	defer mu.Unlock()

	now := l.Now()
	b, err := l.store.Update(ctx, channelID, func(b *model.RateLimitBucket) {
		b.ConsecutiveThrottles++
		until := now.Add(l.backoff(b.ConsecutiveThrottles))
		b.CooldownUntil = &until
	})
	if err != nil {
		return err
	}
	l.logger.Warn().
		Int64("channel_id", channelID).
		Int("consecutive_throttles", b.ConsecutiveThrottles).
		Time("cooldown_until", *b.CooldownUntil).
		Msg("provider throttled channel")
	return nil
}

// backoff doubles from the base per consecutive throttle, capped at max.
func (l *Limiter) backoff(n int) time.Duration {
	d := l.backoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= l.backoffMax {
			return l.backoffMax
		}
	}
	return d
}

func (l *Limiter) Snapshot(ctx context.Context, ch *model.Channel) (Snapshot, error) {
	b, err := l.store.Get(ctx, ch.ID)
	if err != nil {
		return Snapshot{}, err
	}
	roll(&b, l.Now())
	hourlyCap, dailyCap := l.caps(ch.Platform)
	return Snapshot{
		ChannelID:            ch.ID,
		HourlyCount:          b.HourlyCount,
		HourlyCap:            hourlyCap,
		DailyCount:           b.DailyCount,
		DailyCap:             dailyCap,
		LastSendAt:           b.LastSendAt,
		CooldownUntil:        b.CooldownUntil,
		ConsecutiveThrottles: b.ConsecutiveThrottles,
	}, nil
}
