package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TopicChannelEvents carries model.ChannelEvent from the session service.
const TopicChannelEvents = "channel_events"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to every subscriber of a topic with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		logger:     logger.With().Str("component", "queue").Logger(),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.maxRetries}
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		q.logger.Warn().Err(err).
			Str("topic", job.Topic).
			Int("attempt", job.RetryCount).
			Msg("job failed")

		if job.RetryCount > job.MaxRetries {
			q.logger.Error().Str("topic", job.Topic).Int("attempts", job.RetryCount).Msg("job permanently failed")
			return // No requeue
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.retryDelay)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Decode fills out from a payload that is either raw JSON (AMQP delivery)
// or a value of out's element type (in-memory publish).
func Decode[T any](payload any, out *T) error {
	switch p := payload.(type) {
	case T:
		*out = p
		return nil
	case *T:
		*out = *p
		return nil
	case []byte:
		return json.Unmarshal(p, out)
	case json.RawMessage:
		return json.Unmarshal(p, out)
	}
	return fmt.Errorf("unexpected payload type %T", payload)
}

var _ Queue = (*InMemoryQueue)(nil)
