package queue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop())
	assert.Error(t, q.Publish("nobody", 1))
}

func TestInMemoryQueue_Retry(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop())
	q.retryDelay = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("t", func(payload any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}))
	require.NoError(t, q.Publish("t", "x"))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryQueue_GivesUp(t *testing.T) {
	q := NewInMemoryQueue(zerolog.Nop())
	q.retryDelay = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("t", func(payload any) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))
	require.NoError(t, q.Publish("t", "x"))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 4 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestDecode(t *testing.T) {
	var e event
	require.NoError(t, Decode(event{ID: 1, State: "connected"}, &e))
	assert.Equal(t, int64(1), e.ID)

	require.NoError(t, Decode(&event{ID: 2}, &e))
	assert.Equal(t, int64(2), e.ID)

	require.NoError(t, Decode([]byte(`{"id":3,"state":"failed"}`), &e))
	assert.Equal(t, event{ID: 3, State: "failed"}, e)

	assert.Error(t, Decode(42, &e))
}
