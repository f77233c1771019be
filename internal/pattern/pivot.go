package pattern

import "oneil/pkg/model"

// PivotConfig holds the pivot-breakout thresholds, in percent.
type PivotConfig struct {
	Window         int     `yaml:"window"`
	MinVolumeSurge float64 `yaml:"min_volume_surge"`
	MaxBreakoutPct float64 `yaml:"max_breakout_pct"`
}

// DefaultPivotConfig returns the default pivot-breakout thresholds
func DefaultPivotConfig() PivotConfig {
	return PivotConfig{
		Window:         30,
		MinVolumeSurge: 50,
		MaxBreakoutPct: 5,
	}
}

// detectPivot fires when today's close clears the prior 20-day high on
// a volume surge, while the move is still early enough to chase.
func detectPivot(candles []model.Candle, cfg PivotConfig) (Signal, bool) {
	if cfg.Window <= 0 || len(candles) < cfg.Window {
		return Signal{}, false
	}
	window := candles[len(candles)-cfg.Window:]
	last := window[len(window)-1]

	avgVol := meanVolume(window[:len(window)-1])
	if avgVol <= 0 {
		return Signal{}, false
	}
	surge := (float64(last.Volume)/avgVol - 1) * 100
	if surge < cfg.MinVolumeSurge {
		return Signal{}, false
	}

	// Prior resistance excludes the breakout day itself.
	cl := closes(window)
	resistance := maxOf(tail(cl[:len(cl)-1], 19))
	if resistance <= 0 || last.Close <= resistance {
		return Signal{}, false
	}

	breakout := (last.Close - resistance) / resistance * 100
	if breakout > cfg.MaxBreakoutPct+thresholdEpsilon {
		return Signal{}, false
	}

	return Signal{
		Kind:           KindPivot,
		Date:           last.Time,
		Price:          last.Close,
		Reference:      resistance,
		BreakoutPct:    breakout,
		VolumeSurgePct: surge,
	}, true
}
