package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs Cache with Redis hashes, written with a pipelined
// HSET+EXPIRE, fronted by an optional in-process LRU to absorb hot-key
// repeats within one process.
type RedisCache struct {
	client *redis.Client
	front  *frontCache
}

// NewRedisCache wraps a redis.Client. frontSize of 0 disables the
// in-process front tier.
func NewRedisCache(client *redis.Client, frontSize int) *RedisCache {
	var front *frontCache
	if frontSize > 0 {
		front = newFrontCache(frontSize)
	}
	return &RedisCache{client: client, front: front}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if c.front != nil {
		if e, ok := c.front.get(key); ok {
			return e, true, nil
		}
	}

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	entry := decodeEntry(fields)
	if c.front != nil {
		c.front.put(key, entry)
	}
	return entry, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, entry Entry) error {
	ttl := TTLFor(entry.Outcome)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, encodeEntry(entry))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: put %q: %w", key, err)
	}

	if c.front != nil {
		c.front.put(key, entry)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

func encodeEntry(e Entry) map[string]any {
	if e.Outcome != OutcomeSuccess {
		return map[string]any{"error": e.Error, "outcome": int(e.Outcome)}
	}
	fields := map[string]any{"outcome": int(e.Outcome)}
	for k, v := range e.Payload {
		fields[k] = fmt.Sprintf("%v", v)
	}
	return fields
}

func decodeEntry(fields map[string]string) Entry {
	outcome := OutcomeSuccess
	if o, ok := fields["outcome"]; ok {
		switch o {
		case "1":
			outcome = OutcomeUsageLimit
		case "2":
			outcome = OutcomeError
		}
	}
	if errMsg, ok := fields["error"]; ok && errMsg != "" {
		return Entry{Outcome: outcome, Error: errMsg}
	}
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "outcome" {
			continue
		}
		payload[k] = v
	}
	return Entry{Outcome: outcome, Payload: payload}
}
