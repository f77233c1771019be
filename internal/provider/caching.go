package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"oneil/pkg/model"
)

// CachingProvider wraps a Provider with an in-memory cache for
// GetDailyCandles. Scans evaluate every pattern against the same
// history, so each symbol should only be fetched once per run.
type CachingProvider struct {
	inner Provider
	mu    sync.Mutex
	cache map[string][]model.Candle
}

// NewCachingProvider creates a caching wrapper
func NewCachingProvider(inner Provider) *CachingProvider {
	return &CachingProvider{
		inner: inner,
		cache: make(map[string][]model.Candle),
	}
}

func (p *CachingProvider) Name() string         { return p.inner.Name() }
func (p *CachingProvider) Market() model.Market { return p.inner.Market() }
func (p *CachingProvider) IsAvailable() bool    { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int       { return p.inner.RateLimit() }

// GetDailyCandles serves repeated range requests from memory.
func (p *CachingProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	key := fmt.Sprintf("%s|%s|%s", symbol, start.Format("20060102"), end.Format("20060102"))

	p.mu.Lock()
	if cached, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	candles, err := p.inner.GetDailyCandles(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = candles
	p.mu.Unlock()

	return candles, nil
}

// Clear drops all cached history. Called between scheduled scans so a
// new run sees fresh bars.
func (p *CachingProvider) Clear() {
	p.mu.Lock()
	p.cache = make(map[string][]model.Candle)
	p.mu.Unlock()
}
