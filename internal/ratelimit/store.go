package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// BucketStore persists one RateLimitBucket per channel. Update must apply fn
// atomically with respect to other Updates of the same channel.
type BucketStore interface {
	Get(ctx context.Context, channelID int64) (model.RateLimitBucket, error)
	Update(ctx context.Context, channelID int64, fn func(b *model.RateLimitBucket)) (model.RateLimitBucket, error)
}

type MemoryStore struct {
	mu      sync.Mutex
	buckets map[int64]model.RateLimitBucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[int64]model.RateLimitBucket)}
}

func (s *MemoryStore) Get(_ context.Context, channelID int64) (model.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[channelID]
	if !ok {
		b.ChannelID = channelID
	}
	return b, nil
}

func (s *MemoryStore) Update(_ context.Context, channelID int64, fn func(b *model.RateLimitBucket)) (model.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[channelID]
	if !ok {
		b.ChannelID = channelID
	}
	fn(&b)
	s.buckets[channelID] = b
	return b, nil
}

// ErrContention is returned when a Redis bucket keeps changing underneath
// an optimistic transaction.
var ErrContention = errors.New("rate limit bucket contention")

const redisTxRetries = 8

// RedisStore keeps buckets as JSON under ratelimit:channel:<id>, so several
// server and worker processes share one set of counters.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	// daily buckets must survive until the next date rollover
	return &RedisStore{client: client, ttl: 48 * time.Hour}
}

func (s *RedisStore) key(channelID int64) string {
	return "ratelimit:channel:" + strconv.FormatInt(channelID, 10)
}

func decodeBucket(raw []byte, channelID int64) (model.RateLimitBucket, error) {
	b := model.RateLimitBucket{ChannelID: channelID}
	if len(raw) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("decoding bucket for channel %d: %w", channelID, err)
	}
	return b, nil
}

func (s *RedisStore) Get(ctx context.Context, channelID int64) (model.RateLimitBucket, error) {
	raw, err := s.client.Get(ctx, s.key(channelID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.RateLimitBucket{}, err
	}
	return decodeBucket(raw, channelID)
}

func (s *RedisStore) Update(ctx context.Context, channelID int64, fn func(b *model.RateLimitBucket)) (model.RateLimitBucket, error) {
	key := s.key(channelID)
	var out model.RateLimitBucket

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		b, err := decodeBucket(raw, channelID)
		if err != nil {
			return err
		}
		fn(&b)
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			out = b
		}
		return err
	}

	for i := 0; i < redisTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, ErrContention
}

var (
	_ BucketStore = (*MemoryStore)(nil)
	_ BucketStore = (*RedisStore)(nil)
)
