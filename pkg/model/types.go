package model

import "time"

// Market identifies which exchange universe a symbol belongs to.
// It selects the data source and the price formatting convention;
// the simulation math itself is market-agnostic.
type Market string

const (
	MarketUS Market = "US"
	MarketKR Market = "KR"
)

// Candle represents a single daily candlestick (OHLCV data)
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Stock represents basic stock information
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Market Market `json:"market"`
}
