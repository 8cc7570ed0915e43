package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

const (
	playTTL      = 24 * time.Hour
	recentKey    = "plays:recent"
	maxRecentLen = 1000
)

// RedisStore keeps recent play results in Redis for a day.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Backend returns "redis".
func (s *RedisStore) Backend() string {
	return "redis"
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// playKey returns the key holding a single play.
func playKey(id string) string {
	return fmt.Sprintf("play:%s", id)
}

// SavePlay stores a play and indexes it by completion time.
func (s *RedisStore) SavePlay(ctx context.Context, play *models.PlayResponse) error {
	stampPlay(play)

	data, err := json.Marshal(play)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, playKey(play.ID), data, playTTL)
	pipe.ZAdd(ctx, recentKey, redis.Z{
		Score:  float64(play.Timestamp),
		Member: play.ID,
	})
	// Keep only the newest entries in the index
	pipe.ZRemRangeByRank(ctx, recentKey, 0, -maxRecentLen-1)
	pipe.Expire(ctx, recentKey, playTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetPlay retrieves a play by ID.
func (s *RedisStore) GetPlay(ctx context.Context, id string) (*models.PlayResponse, error) {
	data, err := s.client.Get(ctx, playKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var play models.PlayResponse
	if err := json.Unmarshal(data, &play); err != nil {
		return nil, err
	}
	return &play, nil
}

// RecentPlays returns up to limit plays, newest first. Expired entries are
// skipped.
func (s *RedisStore) RecentPlays(ctx context.Context, limit int) ([]models.PlayResponse, error) {
	ids, err := s.client.ZRevRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.PlayResponse{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	plays := make([]models.PlayResponse, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var play models.PlayResponse
		if err := json.Unmarshal([]byte(raw), &play); err != nil {
			continue
		}
		plays = append(plays, play)
	}
	return plays, nil
}
