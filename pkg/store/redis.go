package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds connection settings for the ephemeral store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadRedisConfigFromEnv loads ephemeral store configuration from
// environment variables.
func LoadRedisConfigFromEnv() (RedisConfig, error) {
	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	return RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

// RedisEphemeralStore implements EphemeralStore over a single Redis
// instance: plain keys with TTL for events/dedup/poller/shaper state, a
// pub/sub channel per user, and a sorted set keyed waitQueueKey for the
// wait/resume schedule (spec.md §4.1, §6.6).
type RedisEphemeralStore struct {
	client *redis.Client
}

const waitQueueKey = "wait-queue"

// NewRedisEphemeralStore opens a client against cfg and verifies
// connectivity with a PING.
func NewRedisEphemeralStore(ctx context.Context, cfg RedisConfig) (*RedisEphemeralStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisEphemeralStore{client: client}, nil
}

// Close releases the underlying client.
func (r *RedisEphemeralStore) Close() error {
	return r.client.Close()
}

// Ping implements EphemeralStore's reachability check for the health
// endpoint.
func (r *RedisEphemeralStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err()
}

// SetIfAbsent implements the dedup-marker check via SET NX, atomic at the
// Redis protocol level.
func (r *RedisEphemeralStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Set stores value at key with ttl, overwriting any existing value.
func (r *RedisEphemeralStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns the value at key, or ok=false if it is absent or expired.
func (r *RedisEphemeralStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// Delete removes key, silently succeeding if it was already absent.
func (r *RedisEphemeralStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Publish fans payload out to channel's subscribers.
func (r *RedisEphemeralStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// EnqueueWait adds/updates runID's entry in the wait queue sorted set,
// scored by resumeAt's epoch milliseconds.
func (r *RedisEphemeralStore) EnqueueWait(ctx context.Context, runID string, resumeAt time.Time) error {
	err := r.client.ZAdd(ctx, waitQueueKey, &redis.Z{
		Score:  float64(resumeAt.UnixMilli()),
		Member: runID,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd wait queue: %w", err)
	}
	return nil
}

// dequeueDueScript atomically reads and removes every wait-queue member
// due by the given score, so two concurrent Scheduler ticks can never
// both claim the same run (spec.md §4.8).
var dequeueDueScript = redis.NewScript(`
	local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #due > 0 then
		redis.call("ZREM", KEYS[1], unpack(due))
	end
	return due
`)

// DequeueDue atomically pops every run id due by before.
func (r *RedisEphemeralStore) DequeueDue(ctx context.Context, before time.Time) ([]string, error) {
	res, err := dequeueDueScript.Run(ctx, r.client, []string{waitQueueKey}, before.UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("dequeue due waits: %w", err)
	}
	return res, nil
}

// RemoveWait removes runID from the wait queue regardless of score.
func (r *RedisEphemeralStore) RemoveWait(ctx context.Context, runID string) error {
	if err := r.client.ZRem(ctx, waitQueueKey, runID).Err(); err != nil {
		return fmt.Errorf("zrem wait queue: %w", err)
	}
	return nil
}
