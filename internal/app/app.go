// Package app builds the component graph shared by the server and worker
// binaries from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/autoreply"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/channel"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/config"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/db"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/orchestrator"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/queue"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/ratelimit"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository/memstore"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/scheduler"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/transport"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/webhook"
)

type repositories struct {
	owners      repository.OwnerRepositoryInterface
	channels    repository.ChannelRepositoryInterface
	contacts    repository.ContactRepositoryInterface
	messages    repository.MessageRepositoryInterface
	rules       repository.RuleRepositoryInterface
	campaigns   repository.CampaignRepositoryInterface
	deliveries  repository.DeliveryRepositoryInterface
	webhookLogs repository.WebhookLogRepositoryInterface
}

func postgresRepositories(conn *sqlx.DB) repositories {
	return repositories{
		owners:      &repository.OwnerRepository{DB: conn},
		channels:    &repository.ChannelRepository{DB: conn},
		contacts:    &repository.ContactRepository{DB: conn},
		messages:    &repository.MessageRepository{DB: conn},
		rules:       &repository.RuleRepository{DB: conn},
		campaigns:   &repository.CampaignRepository{DB: conn},
		deliveries:  &repository.DeliveryRepository{DB: conn},
		webhookLogs: &repository.WebhookLogRepository{DB: conn},
	}
}

func memoryRepositories(st *memstore.Store) repositories {
	return repositories{
		owners:      st.Owners,
		channels:    st.Channels,
		contacts:    st.Contacts,
		messages:    st.Messages,
		rules:       st.Rules,
		campaigns:   st.Campaigns,
		deliveries:  st.Deliveries,
		webhookLogs: st.WebhookLogs,
	}
}

// App is the wired orchestrator plus the resources it owns.
type App struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	Queue        queue.Queue

	closers []func() error
	logger  zerolog.Logger
}

// Build connects to the configured backends. Without DATABASE_URL the
// repositories live in memory, without REDIS_URL the rate-limit buckets do,
// and without AMQP_URL channel events travel over an in-process queue.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	var repos repositories
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		repos = postgresRepositories(conn)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory repositories")
		repos = memoryRepositories(memstore.New())
	}

	var buckets ratelimit.BucketStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			a.Close()
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		buckets = ratelimit.NewRedisStore(client)
		logger.Info().Msg("connected to Redis")
	} else {
		buckets = ratelimit.NewMemoryStore()
	}

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		a.Queue = q
	} else {
		a.Queue = queue.NewInMemoryQueue(logger)
	}

	sender := newSender(cfg, logger)

	tz, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading DEFAULT_TIMEZONE: %w", err)
	}

	registry := channel.NewRegistry(repos.channels, logger)
	limiter := ratelimit.NewLimiter(buckets, cfg.Rate.Caps, cfg.Rate.BackoffBase, cfg.Rate.BackoffMax, logger)
	engine := autoreply.NewEngine(repos.rules, repos.owners, repos.messages, tz, logger)
	normalizer := webhook.NewNormalizer(registry, repos.messages, repos.webhookLogs, cfg.Webhook.For, logger)
	campaigns := service.NewCampaignService(repos.campaigns, repos.deliveries, repos.contacts, repos.messages,
		registry, limiter, sender, logger)
	if cfg.ClaimLease > 0 {
		campaigns.ClaimLease = cfg.ClaimLease
	}

	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Registry:     registry,
		Limiter:      limiter,
		Normalizer:   normalizer,
		Engine:       engine,
		Campaigns:    campaigns,
		Rules:        service.NewRuleService(repos.rules, registry, engine, logger),
		Messages:     repos.messages,
		Transport:    sender,
		ReplyTimeout: cfg.ReplyTimeout,
		Logger:       logger,
	})
	a.Scheduler = scheduler.New(campaigns, repos.webhookLogs, cfg.WebhookLogRetention,
		cfg.SchedulerInterval, cfg.SchedulerConcurrency, logger)
	return a, nil
}

// newSender returns the HTTP transport client, or a logging stand-in when
// no transport is configured.
func newSender(cfg *config.Config, logger zerolog.Logger) transport.Sender {
	if cfg.TransportURL != "" {
		return transport.NewHTTPClient(cfg.TransportURL, cfg.TransportToken, cfg.TransportTimeout, logger)
	}
	logger.Warn().Msg("TRANSPORT_URL not set, sends are only logged")
	return transport.Func{SendFunc: func(_ context.Context, channelID int64, recipient string, c transport.Content) (string, error) {
		id := "local-" + uuid.NewString()
		logger.Info().
			Int64("channel_id", channelID).
			Str("recipient", recipient).
			Str("type", string(c.Type)).
			Str("provider_message_id", id).
			Msg("send (no transport configured)")
		return id, nil
	}}
}

// SubscribeChannelEvents feeds transport live-state events into the registry.
func (a *App) SubscribeChannelEvents(ctx context.Context) error {
	return a.Orchestrator.Registry.Subscribe(ctx, a.Queue)
}

// Close releases every backend connection in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("closing resource")
		}
	}
	a.closers = nil
}
