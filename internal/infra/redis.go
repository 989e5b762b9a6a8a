package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisNotConfigured is returned when no redis url was supplied.
var ErrRedisNotConfigured = errors.New("redis url is required")

// Idempotency keys and rate limits issue short commands; the update fan-out
// holds one pub/sub connection outside the pool.
const (
	redisPoolSize     = 8
	redisMinIdleConns = 1
	redisDialTimeout  = 3 * time.Second
	redisIOTimeout    = 2 * time.Second
	redisPingTimeout  = 3 * time.Second
)

// RedisOptions parses url and applies the wallet's pool and timeout limits.
// Limits set explicitly in the url query are kept.
func RedisOptions(url string) (*redis.Options, error) {
	if url == "" {
		return nil, ErrRedisNotConfigured
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = redisPoolSize
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = redisMinIdleConns
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = redisDialTimeout
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = redisIOTimeout
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = redisIOTimeout
	}
	return opt, nil
}

// NewRedisClient connects the client used for idempotency keys, rate limits
// and wallet update fan-out. The connection is verified before returning.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := RedisOptions(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}
	return client, nil
}

// RedisCheck reports whether client still answers PING.
func RedisCheck(client *redis.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
