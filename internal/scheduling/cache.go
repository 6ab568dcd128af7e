package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medrex/hms-scheduling/pkg/types"
)

const (
	slotCacheKeyPrefix      = "hms:slots:"
	slotGenerationKeyPrefix = "hms:slots:gen:"
)

// RedisSlotCache keeps each doctor's full slot listing as one JSON value.
// Every invalidation bumps a per-doctor generation; a listing is only stored
// if the generation it was read under is still current.
type RedisSlotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSlotCache creates a slot cache whose entries expire after ttl
func NewRedisSlotCache(client redis.UniversalClient, ttl time.Duration) *RedisSlotCache {
	return &RedisSlotCache{client: client, ttl: ttl}
}

func slotCacheKey(doctorID int64) string {
	return fmt.Sprintf("%s%d", slotCacheKeyPrefix, doctorID)
}

func slotGenerationKey(doctorID int64) string {
	return fmt.Sprintf("%s%d", slotGenerationKeyPrefix, doctorID)
}

// Get returns the cached listing and whether it was present
func (c *RedisSlotCache) Get(ctx context.Context, doctorID int64) ([]*types.AvailabilitySlot, bool, error) {
	data, err := c.client.Get(ctx, slotCacheKey(doctorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read slot cache: %w", err)
	}

	var slots []*types.AvailabilitySlot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached slots: %w", err)
	}
	return slots, true, nil
}

// Generation returns the doctor's current invalidation generation. Read it
// before loading the listing from the database and pass it to Set.
func (c *RedisSlotCache) Generation(ctx context.Context, doctorID int64) (int64, error) {
	return generation(ctx, c.client, doctorID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, client getter, doctorID int64) (int64, error) {
	gen, err := client.Get(ctx, slotGenerationKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read slot cache generation: %w", err)
	}
	return gen, nil
}

// Set stores the listing for doctorID unless an invalidation happened after
// gen was read. A skipped write is not an error.
func (c *RedisSlotCache) Set(ctx context.Context, doctorID int64, gen int64, slots []*types.AvailabilitySlot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	genKey := slotGenerationKey(doctorID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, doctorID)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, slotCacheKey(doctorID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to write slot cache: %w", err)
	}
	return nil
}

// Invalidate drops the listing for doctorID and fences off in-flight writers
func (c *RedisSlotCache) Invalidate(ctx context.Context, doctorID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, slotGenerationKey(doctorID))
		pipe.Del(ctx, slotCacheKey(doctorID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate slot cache: %w", err)
	}
	return nil
}

// NoopSlotCache is used when Redis is disabled; every lookup misses
type NoopSlotCache struct{}

func (NoopSlotCache) Get(context.Context, int64) ([]*types.AvailabilitySlot, bool, error) {
	return nil, false, nil
}

func (NoopSlotCache) Generation(context.Context, int64) (int64, error) { return 0, nil }

func (NoopSlotCache) Set(context.Context, int64, int64, []*types.AvailabilitySlot) error { return nil }

func (NoopSlotCache) Invalidate(context.Context, int64) error { return nil }
