package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const appointmentIDKey = "seq:appointment_id"

// IDAllocator hands out appointment ids from a Redis counter. INCR is
// atomic, so ids are unique across instances and never reused.
type IDAllocator struct {
	client *redis.Client
	key    string
}

func NewIDAllocator(client *redis.Client) *IDAllocator {
	return &IDAllocator{client: client, key: appointmentIDKey}
}

func (a *IDAllocator) AllocateAppointmentID(ctx context.Context) (int64, error) {
	id, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate appointment id: %w", err)
	}
	return id, nil
}
