// Package dedup remembers which inbound webhook events have already been
// handled. The marker lives in Redis with a TTL rather than in process
// memory, so duplicate deliveries are caught across restarts and replicas.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventKeyPrefix = "event:"

type EventStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventStore(client *redis.Client, ttl time.Duration) *EventStore {
	return &EventStore{client: client, ttl: ttl}
}

// FirstSeen marks eventID as processed and reports whether this call was the
// first to do so. Callers drop the event when it returns false.
func (s *EventStore) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, eventKeyPrefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("event dedup check: %w", err)
	}
	return ok, nil
}
