// SPDX-License-Identifier: GPL-3.0-or-later
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const connectTimeout = 5 * time.Second

// RedisCache implements domain.Cache on a redis instance. It is
// strictly best-effort: callers treat every returned error as a miss
// or a no-op write.
type RedisCache struct {
	client *redis.Client
	l      *logrus.Logger
}

func NewRedisCache(addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("could not ping redis: %w", err)
	}

	l := log.Logger(log.LOG_CACHE)
	l.WithField("addr", addr).Info("Connected")

	return &RedisCache{
		client: client,
		l:      l,
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		c.l.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache read failed")
		return nil, fmt.Errorf("could not read cache: %w", err)
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		c.l.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache write failed")
		return fmt.Errorf("could not write cache: %w", err)
	}
	return nil
}

// DeletePattern evicts every key matching the given glob pattern via
// the non-blocking SCAN iterator.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("could not delete cache key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("could not scan cache keys: %w", err)
	}

	c.l.WithFields(logrus.Fields{"pattern": pattern, "deleted": deleted}).Debug("Evicted cache keys")
	return nil
}

func (c *RedisCache) Close() error {
	err := c.client.Close()
	if err != nil {
		return fmt.Errorf("could not close redis client: %w", err)
	}
	c.l.Info("Disconnected")
	return nil
}
