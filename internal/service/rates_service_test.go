package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryRates is a CacheRepository keeping one table per base.
type memoryRates struct {
	mu    sync.Mutex
	rates map[string]*models.Rates
}

func (m *memoryRates) GetRates(_ context.Context, base string) (*models.Rates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rates[base], nil
}

func (m *memoryRates) SetRates(_ context.Context, rates *models.Rates, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rates == nil {
		m.rates = make(map[string]*models.Rates)
	}
	m.rates[rates.Base] = rates
	return nil
}

func (m *memoryRates) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func TestRatesService_Convert(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	provider := new(mockProvider)
	cache := &memoryRates{}
	s := NewRatesService(provider, cache, 10*time.Minute, nil).WithClock(clock.Now)

	provider.On("FetchRates", mock.Anything, "EUR").
		Return(&models.Rates{Values: map[string]float64{"RSD": 117, "USD": 1.1}}, nil).Once()

	conv, err := s.Convert(ctx, 10, "eur", "rsd")
	require.NoError(t, err)
	assert.Equal(t, "EUR", conv.From)
	assert.Equal(t, 117.0, conv.Rate)
	assert.InDelta(t, 1170, conv.Converted, 1e-9)

	// served from cache inside the ttl
	clock.Advance(9 * time.Minute)
	conv, err = s.Convert(ctx, 2, "EUR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 2.2, conv.Converted, 1e-9)
	provider.AssertNumberOfCalls(t, "FetchRates", 1)

	// stale after the ttl
	clock.Advance(2 * time.Minute)
	provider.On("FetchRates", mock.Anything, "EUR").
		Return(&models.Rates{Values: map[string]float64{"RSD": 118}}, nil).Once()
	conv, err = s.Convert(ctx, 1, "EUR", "RSD")
	require.NoError(t, err)
	assert.Equal(t, 118.0, conv.Rate)
	provider.AssertNumberOfCalls(t, "FetchRates", 2)
	provider.AssertExpectations(t)
}

func TestRatesService_EdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("SameCurrency", func(t *testing.T) {
		s := NewRatesService(new(mockProvider), nil, time.Minute, nil)
		conv, err := s.Convert(ctx, 42, "USD", "usd")
		require.NoError(t, err)
		assert.Equal(t, 1.0, conv.Rate)
		assert.Equal(t, 42.0, conv.Converted)
	})

	t.Run("BadCodes", func(t *testing.T) {
		s := NewRatesService(new(mockProvider), nil, time.Minute, nil)
		_, err := s.Convert(ctx, 1, "EURO", "USD")
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = s.Convert(ctx, 1, "EUR", "U1D")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		provider := new(mockProvider)
		provider.On("FetchRates", mock.Anything, "EUR").
			Return(&models.Rates{Values: map[string]float64{"USD": 1.1}}, nil).Once()
		s := NewRatesService(provider, nil, time.Minute, nil)
		_, err := s.Convert(ctx, 1, "EUR", "JPY")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("ProviderDown", func(t *testing.T) {
		provider := new(mockProvider)
		provider.On("FetchRates", mock.Anything, "EUR").Return(nil, errors.New("boom")).Once()
		s := NewRatesService(provider, nil, time.Minute, nil)
		_, err := s.Convert(ctx, 1, "EUR", "USD")
		assert.ErrorIs(t, err, ErrRatesUnavailable)
	})
}

func TestHTTPRateProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/EUR":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":"success","base_code":"EUR","rates":{"USD":1.1,"RSD":117.2}}`))
		case "/XXX":
			_, _ = w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
		default:
			http.Error(w, "nope", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	p := NewHTTPRateProvider(srv.URL+"/", time.Second)

	rates, err := p.FetchRates(context.Background(), "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", rates.Base)
	assert.Equal(t, 117.2, rates.Values["RSD"])

	_, err = p.FetchRates(context.Background(), "XXX")
	assert.Error(t, err)

	_, err = p.FetchRates(context.Background(), "USD")
	assert.Error(t, err)
}
