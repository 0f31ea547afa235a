package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"carrental/internal/models"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// MemoryCacheRepository is a process-local cache with explicit expiry.
type MemoryCacheRepository struct {
	mu         sync.Mutex
	rates      map[string]ratesEntry
	rateLimits map[string]*rateLimitEntry
	now        Clock
}

type ratesEntry struct {
	rates     models.Rates
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryCacheRepository(clock Clock) *MemoryCacheRepository {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCacheRepository{
		rates:      make(map[string]ratesEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        clock,
	}
}

func (r *MemoryCacheRepository) GetRates(ctx context.Context, base string) (*models.Rates, error) {
	key := strings.ToUpper(base)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rates[key]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.rates, key)
		return nil, nil
	}

	rates := entry.rates
	rates.Values = make(map[string]float64, len(entry.rates.Values))
	for k, v := range entry.rates.Values {
		rates.Values[k] = v
	}
	return &rates, nil
}

func (r *MemoryCacheRepository) SetRates(ctx context.Context, rates *models.Rates, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rates[strings.ToUpper(rates.Base)] = ratesEntry{
		rates:     *rates,
		expiresAt: r.now().Add(ttl),
	}
	return nil
}

func (r *MemoryCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
