package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/huddle/internal/metrics"
	"github.com/eldtechnologies/huddle/internal/models"
)

const mirrorTTL = 24 * time.Hour

// HistoryMirror persists recent ciphertext history to Redis so a room's
// window survives a process restart. Messages are mirrored as stored:
// ciphertext only, never plaintext. Decryptability across restarts
// requires room keys derived from a master secret; stale ciphertext that
// fails authentication is skipped at delivery.
type HistoryMirror struct {
	client *redis.Client
}

// NewHistoryMirror creates a mirror backed by the given Redis URL.
func NewHistoryMirror(ctx context.Context, redisURL string) (*HistoryMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &HistoryMirror{client: client}, nil
}

// Client exposes the underlying Redis client for middleware that shares
// the connection, like the rate limiter.
func (m *HistoryMirror) Client() *redis.Client {
	return m.client
}

// Close closes the Redis connection.
func (m *HistoryMirror) Close() error {
	return m.client.Close()
}

// Ping checks the Redis connection.
func (m *HistoryMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// roomHistoryKey returns the key for a room's mirrored history.
func roomHistoryKey(roomID string) string {
	return fmt.Sprintf("room:%s:history", roomID)
}

// Append mirrors one message, trimming the set to limit entries.
func (m *HistoryMirror) Append(ctx context.Context, roomID string, msg models.Message, limit int) error {
	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := roomHistoryKey(roomID)

	pipe := m.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Seq),
		Member: string(data),
	})
	// Keep only the newest limit entries
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-limit-1))
	pipe.Expire(ctx, key, mirrorTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the mirrored window for a room in sequence order.
func (m *HistoryMirror) Load(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	key := roomHistoryKey(roomID)

	// Newest limit entries, then reverse into ascending sequence order
	results, err := m.client.ZRevRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		var msg models.Message
		if err := json.Unmarshal([]byte(results[i]), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
