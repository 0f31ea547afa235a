package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/config"
	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	ratesKeyPrefix     = "rates:"
	rateLimitKeyPrefix = "rate_limit:"
)

// RedisCacheRepository keeps exchange rates and rate-limit counters in Redis
// so every API instance sees the same values.
type RedisCacheRepository struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{client: client}
}

func ratesKey(base string) string {
	return ratesKeyPrefix + strings.ToUpper(base)
}

func (r *RedisCacheRepository) GetRates(ctx context.Context, base string) (*models.Rates, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, ratesKey(base)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rates from redis: %w", err)
	}

	var rates models.Rates
	if err := json.Unmarshal(val, &rates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rates: %w", err)
	}
	return &rates, nil
}

func (r *RedisCacheRepository) SetRates(ctx context.Context, rates *models.Rates, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("failed to marshal rates: %w", err)
	}
	if err := r.client.Set(ctx, ratesKey(rates.Base), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set rates in redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts hits for key in a fixed window and reports whether
// the current hit is within limit.
func (r *RedisCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := rateLimitKeyPrefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping reports whether redis answers.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
