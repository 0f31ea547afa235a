package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// HTTPRateProvider reads open.er-api.com style rate tables:
// GET {baseURL}/{BASE} -> {"result":"success","base_code":"EUR","rates":{...}}.
type HTTPRateProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRateProvider(baseURL string, timeout time.Duration) *HTTPRateProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRateProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

func (p *HTTPRateProvider) FetchRates(ctx context.Context, base string) (*models.Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+base, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if body.Result == "error" || len(body.Rates) == 0 {
		return nil, fmt.Errorf("invalid exchange rate response")
	}
	return &models.Rates{Base: base, Values: body.Rates}, nil
}

// RatesService converts amounts between currencies. Rate tables are cached per
// base currency for ttl, measured with the injected clock.
type RatesService struct {
	provider domain.RateProvider
	cache    domain.CacheRepository
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	logger   *zerolog.Logger
}

func NewRatesService(provider domain.RateProvider, cache domain.CacheRepository, ttl time.Duration, logger *zerolog.Logger) *RatesService {
	if ttl <= 0 {
		ttl = models.DefaultRatesTTL * time.Second
	}
	return &RatesService{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		logger:   nopLogger(logger),
	}
}

// WithClock replaces the clock used for cache freshness.
func (s *RatesService) WithClock(now func() time.Time) *RatesService {
	s.now = now
	return s
}

func (s *RatesService) Convert(ctx context.Context, amount float64, from, to string) (*models.Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !isCurrencyCode(from) || !isCurrencyCode(to) {
		return nil, invalidInput("from and to must be ISO currency codes")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, invalidInput("invalid amount")
	}

	if from == to {
		return &models.Conversion{From: from, To: to, Amount: amount, Rate: 1, Converted: amount}, nil
	}

	rates, err := s.rates(ctx, from)
	if err != nil {
		return nil, err
	}
	rate, ok := rates.Values[to]
	if !ok || rate == 0 {
		return nil, invalidInput("rate not found %s -> %s", from, to)
	}
	return &models.Conversion{From: from, To: to, Amount: amount, Rate: rate, Converted: amount * rate}, nil
}

func (s *RatesService) rates(ctx context.Context, base string) (*models.Rates, error) {
	if cached := s.cached(ctx, base); cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(base, func() (interface{}, error) {
		rates, err := s.provider.FetchRates(ctx, base)
		if err != nil {
			return nil, err
		}
		rates.Base = base
		rates.FetchedAt = s.now().Unix()
		if s.cache != nil {
			if err := s.cache.SetRates(ctx, rates, s.ttl); err != nil {
				s.logger.Warn().Err(err).Str("base", base).Msg("cache rates")
			}
		}
		return rates, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("base", base).Msg("exchange rates fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
	}
	return v.(*models.Rates), nil
}

func (s *RatesService) cached(ctx context.Context, base string) *models.Rates {
	if s.cache == nil {
		return nil
	}
	rates, err := s.cache.GetRates(ctx, base)
	if err != nil {
		s.logger.Warn().Err(err).Str("base", base).Msg("read cached rates")
		return nil
	}
	if rates == nil {
		return nil
	}
	if s.now().Sub(time.Unix(rates.FetchedAt, 0)) >= s.ttl {
		return nil
	}
	return rates
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
