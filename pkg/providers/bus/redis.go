// Package bus implements the Publisher: a non-blocking, best-effort
// emitter of TranscriptEvents onto a pub/sub message bus.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	"github.com/lokutor-ai/transflow-engine/pkg/orchestrator"
)

// RedisPublisher publishes TranscriptEvents as JSON to a single Redis
// pub/sub channel (spec.md §4.5/§4.6's "message bus"). Publish never
// blocks the calling session for longer than the bounded back-off
// window; past that the event is dropped and counted.
type RedisPublisher struct {
	client      *redis.Client
	channelName string
	maxElapsed  time.Duration
	dropped     atomic.Int64
	log         orchestrator.Logger
}

// New returns a RedisPublisher dialing busURL (a redis:// URL) and
// publishing to channelName. maxElapsed bounds the retry window
// before an event is dropped (spec.md §4.5: "~5 s").
func New(busURL, channelName string, maxElapsed time.Duration, log orchestrator.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(busURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = &orchestrator.NoOpLogger{}
	}
	return &RedisPublisher{
		client:      redis.NewClient(opts),
		channelName: channelName,
		maxElapsed:  maxElapsed,
		log:         log,
	}, nil
}

// Publish encodes event as JSON and publishes it, retrying with
// bounded exponential back-off on transient failures. Past maxElapsed
// the event is dropped and DroppedEvents is incremented; Publish never
// returns an error to the caller since publishing is best-effort.
func (p *RedisPublisher) Publish(event orchestrator.TranscriptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal transcript event", "error", err)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = p.maxElapsed

	err = backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.client.Publish(ctx, p.channelName, payload).Err()
	}, policy)

	if err != nil {
		p.dropped.Inc()
		wrapped := fmt.Errorf("%w: %v", orchestrator.ErrPublishDropped, err)
		p.log.Warn("dropping transcript event after back-off window", "callId", event.CallId, "error", wrapped)
	}
	return nil
}

// DroppedEvents returns the number of events dropped after exhausting
// the retry window (spec.md §7 diagnostics counter).
func (p *RedisPublisher) DroppedEvents() int64 {
	return p.dropped.Load()
}

// Close releases the underlying Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
