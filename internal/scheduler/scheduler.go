// Package scheduler is the periodic driver of campaigns: it promotes due
// scheduled campaigns, ticks processing ones and prunes old webhook logs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
)

// Dispatcher is the part of the campaign service the scheduler drives.
type Dispatcher interface {
	service.Ticker
	PromoteDue(ctx context.Context) (int, error)
	TickableCampaigns(ctx context.Context) ([]int64, error)
}

const pruneEvery = time.Hour

type Scheduler struct {
	dispatcher  Dispatcher
	logs        repository.WebhookLogRepositoryInterface
	retention   time.Duration
	interval    time.Duration
	concurrency int
	logger      zerolog.Logger

	mu        sync.Mutex
	isRunning bool
	lastPrune time.Time

	now func() time.Time
}

// New builds a scheduler. logs may be nil, and a zero retention disables pruning.
func New(d Dispatcher, logs repository.WebhookLogRepositoryInterface, retention, interval time.Duration, concurrency int, logger zerolog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Scheduler{
		dispatcher:  d,
		logs:        logs,
		retention:   retention,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		now:         time.Now,
	}
}

// Run drives campaigns until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Int("concurrency", s.concurrency).Msg("scheduler started")
	s.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("shutdown signal received, stopping scheduler")
			return
		}
	}
}

// RunOnce performs one scheduling round. A round still in progress makes the
// next one a no-op.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Msg("previous round still running, skipping")
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	if n, err := s.dispatcher.PromoteDue(ctx); err != nil {
		s.logger.Error().Err(err).Msg("promoting scheduled campaigns")
	} else if n > 0 {
		s.logger.Info().Int("started", n).Msg("scheduled campaigns started")
	}

	ids, err := s.dispatcher.TickableCampaigns(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing tickable campaigns")
	} else if len(ids) > 0 {
		s.tickAll(ctx, ids)
	}

	s.prune(ctx)
}

// tickAll fans the ids out to a bounded set of workers.
func (s *Scheduler) tickAll(ctx context.Context, ids []int64) {
	jobs := make(chan int64)
	workers := min(s.concurrency, len(ids))

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		w := service.NewWorker(s.dispatcher, jobs, s.logger)
		g.Go(func() error {
			w.Start(ctx)
			return nil
		})
	}

feed:
	for _, id := range ids {
		select {
		case jobs <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	_ = g.Wait()
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.logs == nil || s.retention <= 0 {
		return
	}
	now := s.now()
	if now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now
	n, err := s.logs.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Error().Err(err).Msg("pruning webhook logs")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("pruned webhook logs")
	}
}
