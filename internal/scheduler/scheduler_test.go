package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/repository/memstore"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/service"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	ids      []int64
	ticked   []int64
	promoted int
	tickErr  error
	block    chan struct{}
}

func (d *fakeDispatcher) PromoteDue(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.promoted++
	return 0, nil
}

func (d *fakeDispatcher) TickableCampaigns(context.Context) ([]int64, error) {
	return d.ids, nil
}

func (d *fakeDispatcher) Tick(_ context.Context, id int64) (*service.TickResult, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticked = append(d.ticked, id)
	if d.tickErr != nil {
		return nil, d.tickErr
	}
	return &service.TickResult{CampaignID: id, Sent: 1, Status: model.CampaignProcessing}, nil
}

func TestRunOnce_TicksEveryCampaignOnce(t *testing.T) {
	d := &fakeDispatcher{ids: []int64{4, 1, 3, 2, 5, 6, 7}}
	s := New(d, nil, 0, time.Second, 3, zerolog.Nop())

	s.RunOnce(context.Background())

	sort.Slice(d.ticked, func(i, j int) bool { return d.ticked[i] < d.ticked[j] })
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, d.ticked)
	assert.Equal(t, 1, d.promoted)
}

func TestRunOnce_TickErrorsDoNotStopRound(t *testing.T) {
	d := &fakeDispatcher{ids: []int64{1, 2}, tickErr: errors.New("boom")}
	s := New(d, nil, 0, time.Second, 1, zerolog.Nop())

	s.RunOnce(context.Background())
	assert.Len(t, d.ticked, 2)
}

func TestRunOnce_SkipsOverlappingRound(t *testing.T) {
	d := &fakeDispatcher{ids: []int64{1}, block: make(chan struct{})}
	s := New(d, nil, 0, time.Second, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.isRunning
	}, time.Second, time.Millisecond)

	s.RunOnce(context.Background())
	close(d.block)
	<-done

	assert.Len(t, d.ticked, 1)
	assert.Equal(t, 1, d.promoted)
}

func TestRunOnce_PrunesWebhookLogs(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.WebhookLogs.Append(ctx, &model.WebhookLogEntry{Platform: model.PlatformTelegram, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.WebhookLogs.Append(ctx, &model.WebhookLogEntry{Platform: model.PlatformTelegram, CreatedAt: now.Add(-time.Hour)}))

	s := New(&fakeDispatcher{}, store.WebhookLogs, 24*time.Hour, time.Second, 1, zerolog.Nop())
	s.now = func() time.Time { return now }

	s.RunOnce(ctx)
	assert.Len(t, store.WebhookLogList(), 1)

	// pruning runs at most once an hour
	require.NoError(t, store.WebhookLogs.Append(ctx, &model.WebhookLogEntry{Platform: model.PlatformTelegram, CreatedAt: now.Add(-72 * time.Hour)}))
	s.RunOnce(ctx)
	assert.Len(t, store.WebhookLogList(), 2)
}

func TestRun_StopsOnCancel(t *testing.T) {
	d := &fakeDispatcher{ids: []int64{1}}
	s := New(d, nil, 0, 5*time.Millisecond, 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.ticked) >= 2
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
