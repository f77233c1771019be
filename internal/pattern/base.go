package pattern

import "oneil/pkg/model"

// BaseConfig holds the base-breakout thresholds, in percent.
type BaseConfig struct {
	Window         int     `yaml:"window"`
	MaxVolatility  float64 `yaml:"max_volatility"`
	MinVolumeSurge float64 `yaml:"min_volume_surge"`
	MaxBreakoutPct float64 `yaml:"max_breakout_pct"`
}

// DefaultBaseConfig returns the default base-breakout thresholds
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Window:         40,
		MaxVolatility:  15,
		MinVolumeSurge: 40,
		MaxBreakoutPct: 7,
	}
}

// detectBase fires when the close breaks above a tight consolidation
// base (bars -30 to -5 of the window) with elevated volume.
func detectBase(candles []model.Candle, cfg BaseConfig) (Signal, bool) {
	if cfg.Window <= 0 || len(candles) < cfg.Window {
		return Signal{}, false
	}
	window := candles[len(candles)-cfg.Window:]
	last := window[len(window)-1]

	// Consolidation base is bars -30 to -5, clamped for short windows.
	end := len(window) - 5
	if end < 0 {
		end = 0
	}
	start := end - 25
	if start < 0 {
		start = 0
	}
	base := window[start:end]
	baseCloses := closes(base)
	baseHigh := maxOf(baseCloses)
	baseLow := minOf(baseCloses)
	if baseHigh <= 0 || baseLow <= 0 {
		return Signal{}, false
	}
	volatility := (baseHigh - baseLow) / baseLow * 100
	if volatility >= cfg.MaxVolatility {
		return Signal{}, false
	}

	if last.Close <= baseHigh {
		return Signal{}, false
	}
	breakout := (last.Close - baseHigh) / baseHigh * 100
	if breakout > cfg.MaxBreakoutPct+thresholdEpsilon {
		return Signal{}, false
	}

	avgVol := meanVolume(base)
	if avgVol <= 0 {
		return Signal{}, false
	}
	surge := (float64(last.Volume)/avgVol - 1) * 100
	if surge < cfg.MinVolumeSurge {
		return Signal{}, false
	}

	return Signal{
		Kind:           KindBase,
		Date:           last.Time,
		Price:          last.Close,
		Reference:      baseHigh,
		BreakoutPct:    breakout,
		VolumeSurgePct: surge,
		BaseRangePct:   volatility,
	}, true
}
