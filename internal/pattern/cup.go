package pattern

import "oneil/pkg/model"

// CupConfig holds the cup-and-handle thresholds, all in percent.
type CupConfig struct {
	Window         int     `yaml:"window"`
	MinDepth       float64 `yaml:"min_depth"`
	MaxDepth       float64 `yaml:"max_depth"`
	MaxHandleDepth float64 `yaml:"max_handle_depth"`
}

// DefaultCupConfig returns the default cup-and-handle thresholds
func DefaultCupConfig() CupConfig {
	return CupConfig{
		Window:         60,
		MinDepth:       12,
		MaxDepth:       40,
		MaxHandleDepth: 12,
	}
}

// detectCup looks for a cup-and-handle over the trailing window: a
// left-rim high, a rounded bottom near the window midpoint, a shallow
// handle in the last 10 bars, and a close at or within 1% of the
// 20-day resistance.
func detectCup(candles []model.Candle, cfg CupConfig) (Signal, bool) {
	if cfg.Window <= 0 || len(candles) < cfg.Window {
		return Signal{}, false
	}
	window := candles[len(candles)-cfg.Window:]
	cl := closes(window)
	mid := len(cl) / 2

	maxLeft := maxOf(cl[:mid])
	if maxLeft <= 0 {
		return Signal{}, false
	}

	lo := mid - 10
	hi := mid + 10
	if lo < 0 {
		lo = 0
	}
	if hi > len(cl) {
		hi = len(cl)
	}
	cupLow := minOf(cl[lo:hi])
	cupDepth := (maxLeft - cupLow) / maxLeft * 100
	if cupDepth < cfg.MinDepth-thresholdEpsilon || cupDepth > cfg.MaxDepth+thresholdEpsilon {
		return Signal{}, false
	}

	handle := tail(cl, 10)
	handleHigh := maxOf(handle)
	if handleHigh <= 0 {
		return Signal{}, false
	}
	handleDepth := (handleHigh - minOf(handle)) / handleHigh * 100
	if handleDepth >= cfg.MaxHandleDepth {
		return Signal{}, false
	}

	resistance := maxOf(tail(cl, 20))
	last := window[len(window)-1]
	if last.Close < resistance*0.99 {
		return Signal{}, false
	}

	return Signal{
		Kind:           KindCup,
		Date:           last.Time,
		Price:          last.Close,
		Reference:      resistance,
		BreakoutPct:    (last.Close - resistance) / resistance * 100,
		CupDepthPct:    cupDepth,
		HandleDepthPct: handleDepth,
	}, true
}
