package provider

import (
	"context"
	"fmt"
	"time"

	"oneil/pkg/model"
)

// Provider defines the interface for daily market data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Market returns the market this provider serves
	Market() model.Market

	// GetDailyCandles fetches daily OHLCV bars for [start, end],
	// oldest first
	GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)

	// IsAvailable checks if the provider is usable (has valid credentials)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	market    model.Market
	providers []Provider
}

// NewFallbackProvider creates a fallback chain over the available
// providers. All providers must serve the same market.
func NewFallbackProvider(market model.Market, providers ...Provider) *FallbackProvider {
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{market: market, providers: available}
}

func (f *FallbackProvider) Name() string         { return "fallback" }
func (f *FallbackProvider) Market() model.Market { return f.market }

// GetDailyCandles tries each provider in order until one succeeds
func (f *FallbackProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	var lastErr error
	for _, p := range f.providers {
		candles, err := p.GetDailyCandles(ctx, symbol, start, end)
		if err == nil {
			return candles, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &ProviderError{Provider: f.Name(), Err: fmt.Errorf("no provider available"), Retryable: false}
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}

// Source fetches history for a stock in whatever market it belongs to.
type Source interface {
	GetDailyCandles(ctx context.Context, stock model.Stock, start, end time.Time) ([]model.Candle, error)
}

// Router dispatches fetches to the provider registered for each
// stock's market.
type Router struct {
	providers map[model.Market]Provider
}

// NewRouter creates a market router
func NewRouter() *Router {
	return &Router{providers: make(map[model.Market]Provider)}
}

// Register installs the provider for its market.
func (r *Router) Register(p Provider) {
	r.providers[p.Market()] = p
}

// GetDailyCandles routes the fetch by the stock's market.
func (r *Router) GetDailyCandles(ctx context.Context, stock model.Stock, start, end time.Time) ([]model.Candle, error) {
	p, ok := r.providers[stock.Market]
	if !ok {
		return nil, fmt.Errorf("no provider registered for market %s", stock.Market)
	}
	return p.GetDailyCandles(ctx, stock.Symbol, start, end)
}

// Provider returns the provider registered for a market, if any.
func (r *Router) Provider(market model.Market) (Provider, bool) {
	p, ok := r.providers[market]
	return p, ok
}

// ClearCaches drops cached history on every caching provider so the
// next fetch sees fresh bars.
func (r *Router) ClearCaches() {
	for _, p := range r.providers {
		if cp, ok := p.(*CachingProvider); ok {
			cp.Clear()
		}
	}
}
