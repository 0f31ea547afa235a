package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCacheRepository serves from the primary cache and switches to the
// fallback when the primary errors. The primary is retried once per minute.
type FailoverCacheRepository struct {
	primary  domain.CacheRepository
	fallback domain.CacheRepository
	logger   *zerolog.Logger
	now      Clock

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverCacheRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverCacheRepository) markResult(err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary cache repository recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cache repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

func (r *FailoverCacheRepository) GetRates(ctx context.Context, base string) (*models.Rates, error) {
	if r.usePrimary() {
		rates, err := r.primary.GetRates(ctx, base)
		r.markResult(err)
		if err == nil {
			return rates, nil
		}
	}
	return r.fallback.GetRates(ctx, base)
}

func (r *FailoverCacheRepository) SetRates(ctx context.Context, rates *models.Rates, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetRates(ctx, rates, ttl)
		r.markResult(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetRates(ctx, rates, ttl)
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.markResult(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
