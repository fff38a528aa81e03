package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHistoryKey is the sorted set holding run history.
const DefaultHistoryKey = "rice-eval:runs"

// RedisHistory persists runs in a Redis sorted set scored by finish time.
// Runs older than the TTL are trimmed on every save.
type RedisHistory struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisHistory connects to the Redis server at url.
// Returns error if connection fails.
func NewRedisHistory(url string, ttl time.Duration) (*RedisHistory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &RedisHistory{
		client: client,
		key:    DefaultHistoryKey,
		ttl:    ttl,
	}, nil
}

// SetKey overrides the sorted set key.
func (h *RedisHistory) SetKey(key string) {
	h.key = key
}

// SaveRun stores run and drops runs that finished before now - TTL.
func (h *RedisHistory) SaveRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	pipe := h.client.Pipeline()

	pipe.ZAdd(ctx, h.key, redis.Z{
		Score:  float64(run.FinishedAt.Unix()),
		Member: string(data),
	})

	minScore := time.Now().Add(-h.ttl).Unix()
	pipe.ZRemRangeByScore(ctx, h.key, "-inf", fmt.Sprintf("(%d", minScore))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	return nil
}

// LoadRuns returns runs that finished at or after since, oldest first.
func (h *RedisHistory) LoadRuns(ctx context.Context, since time.Time) ([]Run, error) {
	members, err := h.client.ZRangeByScore(ctx, h.key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading runs: %w", err)
	}

	runs := make([]Run, 0, len(members))
	for _, m := range members {
		var run Run
		if err := json.Unmarshal([]byte(m), &run); err != nil {
			// Skip invalid entries
			continue
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// Clear deletes the whole history.
func (h *RedisHistory) Clear(ctx context.Context) error {
	if err := h.client.Del(ctx, h.key).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
