package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

const redisKeyPrefix = "flood:series:"

// RedisCache shares computed series between API replicas.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects and pings the server before returning.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func genKey(station string) string {
	return redisKeyPrefix + "gen:" + station
}

func seriesKey(key Key, gen int64) string {
	return fmt.Sprintf("%s%s:%d:%d:%d:%s", redisKeyPrefix, key.StationCode, gen,
		key.Start.UnixMilli(), key.End.UnixMilli(), key.Interval)
}

func (c *RedisCache) Generation(ctx context.Context, station string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(station)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read series generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, key Key, gen int64) (*models.Series, bool, error) {
	data, err := c.rdb.Get(ctx, seriesKey(key, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached series: %w", err)
	}
	var s models.Series
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached series: %w", err)
	}
	if width, err := ParseInterval(s.Interval); err == nil {
		for i := range s.Buckets {
			s.Buckets[i].Width = width
		}
	}
	return &s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, gen int64, s *models.Series) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}
	if err := c.rdb.Set(ctx, seriesKey(key, gen), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache series: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, station string) error {
	if err := c.rdb.Incr(ctx, genKey(station)).Err(); err != nil {
		return fmt.Errorf("failed to bump series generation: %w", err)
	}
	return nil
}
