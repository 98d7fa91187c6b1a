package service

import (
	"context"

	"github.com/rs/zerolog"
)

// Ticker is what the worker needs from the dispatcher.
type Ticker interface {
	Tick(ctx context.Context, campaignID int64) (*TickResult, error)
}

// Worker processes campaign tick jobs
type Worker struct {
	Ticker  Ticker
	JobChan <-chan int64
	Logger  zerolog.Logger
}

func NewWorker(ticker Ticker, jobChan <-chan int64, logger zerolog.Logger) *Worker {
	return &Worker{
		Ticker:  ticker,
		JobChan: jobChan,
		Logger:  logger,
	}
}

// Start ticks every campaign id it receives until the channel closes or ctx
// is done. A failed tick is logged; the campaign already carries the error.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-w.JobChan:
			if !ok {
				return
			}
			res, err := w.Ticker.Tick(ctx, id)
			if err != nil {
				w.Logger.Error().Err(err).Int64("campaign_id", id).Msg("tick failed")
				continue
			}
			if !res.Skipped && (res.Sent > 0 || res.Failed > 0 || res.Deferred > 0) {
				w.Logger.Debug().
					Int64("campaign_id", id).
					Int("sent", res.Sent).
					Int("failed", res.Failed).
					Int("deferred", res.Deferred).
					Str("status", string(res.Status)).
					Msg("tick done")
			}
		}
	}
}
