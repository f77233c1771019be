package pattern

import (
	"testing"
	"time"

	"oneil/pkg/model"
)

// flatCandles builds n daily candles with the same close and volume.
func flatCandles(n int, close float64, volume int64) []model.Candle {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{
			Time:   start.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: volume,
		}
	}
	return candles
}

// cupSeries builds a 60-bar series with a rim at 100, a bottom at the
// given low near the midpoint, and a recovery to 100 on the last bar.
func cupSeries(cupLow, handleLow float64) []model.Candle {
	candles := flatCandles(60, 100, 1000)
	candles[25].Close = cupLow
	for i := 30; i < 50; i++ {
		candles[i].Close = 95
	}
	for i := 50; i < 59; i++ {
		candles[i].Close = 99
	}
	candles[51].Close = handleLow
	return candles
}

func TestDetectCup(t *testing.T) {
	cfg := DefaultCupConfig()

	// Depth (100-88)/100 = exactly 12% fires.
	sig, ok := detectCup(cupSeries(88, 99), cfg)
	if !ok {
		t.Fatal("Expected cup signal at 12% depth")
	}
	if sig.Kind != KindCup {
		t.Errorf("Expected kind %s, got %s", KindCup, sig.Kind)
	}
	if sig.CupDepthPct != 12.0 {
		t.Errorf("Expected cup depth 12.0, got %f", sig.CupDepthPct)
	}
	if sig.Reference != 100.0 {
		t.Errorf("Expected resistance 100.0, got %f", sig.Reference)
	}

	// Depth 11.99% is too shallow.
	if _, ok := detectCup(cupSeries(88.01, 99), cfg); ok {
		t.Error("Cup should not fire below minimum depth")
	}

	// Depth above 40% is too deep.
	if _, ok := detectCup(cupSeries(59, 99), cfg); ok {
		t.Error("Cup should not fire above maximum depth")
	}

	// A handle pulling back a full 12% disqualifies the pattern.
	candles := cupSeries(88, 88)
	candles[50].Close = 100 // handle high back at the rim
	if _, ok := detectCup(candles, cfg); ok {
		t.Error("Cup should not fire with a 12% handle depth")
	}
}

func TestDetectCupShortHistory(t *testing.T) {
	if _, ok := detectCup(flatCandles(59, 100, 1000), DefaultCupConfig()); ok {
		t.Error("Cup should not fire with fewer bars than the window")
	}
}

// pivotSeries builds a 30-bar series flat at 100 on volume 1000, with
// the last bar closing at the given price and volume.
func pivotSeries(lastClose float64, lastVolume int64) []model.Candle {
	candles := flatCandles(30, 100, 1000)
	candles[29].Close = lastClose
	candles[29].Volume = lastVolume
	return candles
}

func TestDetectPivot(t *testing.T) {
	cfg := DefaultPivotConfig()

	// Flat at $100, then a $103 close on doubled volume.
	sig, ok := detectPivot(pivotSeries(103, 2000), cfg)
	if !ok {
		t.Fatal("Expected pivot signal")
	}
	if sig.Reference != 100.0 {
		t.Errorf("Expected resistance 100.0, got %f", sig.Reference)
	}
	if sig.BreakoutPct != 3.0 {
		t.Errorf("Expected breakout 3.0%%, got %f", sig.BreakoutPct)
	}
	if sig.VolumeSurgePct != 100.0 {
		t.Errorf("Expected volume surge 100%%, got %f", sig.VolumeSurgePct)
	}

	// A close equal to resistance is not a breakout.
	if _, ok := detectPivot(pivotSeries(100, 2000), cfg); ok {
		t.Error("Pivot should require a close strictly above resistance")
	}

	// Breakout of exactly 5% is still chaseable.
	if _, ok := detectPivot(pivotSeries(105, 2000), cfg); !ok {
		t.Error("Pivot should fire at exactly 5% breakout")
	}

	// Just past 5% is extended.
	if _, ok := detectPivot(pivotSeries(105.0001, 2000), cfg); ok {
		t.Error("Pivot should not fire above 5% breakout")
	}

	// Volume surge below 50% does not confirm.
	if _, ok := detectPivot(pivotSeries(103, 1400), cfg); ok {
		t.Error("Pivot should require a 50% volume surge")
	}
}

func TestDetectPivotCeilingRounding(t *testing.T) {
	// (107-100)/100*100 computes to 7.000000000000001; a configured 7%
	// ceiling must still accept it.
	cfg := DefaultPivotConfig()
	cfg.MaxBreakoutPct = 7
	if _, ok := detectPivot(pivotSeries(107, 2000), cfg); !ok {
		t.Error("Pivot should fire at exactly 7% breakout")
	}
	if _, ok := detectPivot(pivotSeries(107.01, 2000), cfg); ok {
		t.Error("Pivot should not fire above 7% breakout")
	}
}

func TestDetectCupMaxDepthRounding(t *testing.T) {
	// Depth (100-60)/100 is exactly the 40% ceiling, bar float noise.
	if _, ok := detectCup(cupSeries(60, 99), DefaultCupConfig()); !ok {
		t.Error("Cup should fire at exactly 40% depth")
	}
	if _, ok := detectCup(cupSeries(59.9, 99), DefaultCupConfig()); ok {
		t.Error("Cup should not fire above 40% depth")
	}
}

// baseSeries builds a 40-bar series whose consolidation base sits at
// 100, with the last bar closing at the given price and volume.
func baseSeries(lastClose float64, lastVolume int64) []model.Candle {
	candles := flatCandles(40, 100, 1000)
	candles[39].Close = lastClose
	candles[39].Volume = lastVolume
	return candles
}

func TestDetectBase(t *testing.T) {
	cfg := DefaultBaseConfig()

	sig, ok := detectBase(baseSeries(105, 1500), cfg)
	if !ok {
		t.Fatal("Expected base signal")
	}
	if sig.Reference != 100.0 {
		t.Errorf("Expected base high 100.0, got %f", sig.Reference)
	}
	if sig.BreakoutPct != 5.0 {
		t.Errorf("Expected breakout 5.0%%, got %f", sig.BreakoutPct)
	}
	if sig.BaseRangePct != 0.0 {
		t.Errorf("Expected flat base, got range %f", sig.BaseRangePct)
	}

	// Breakout of exactly 7% fires, 7.5% does not.
	if _, ok := detectBase(baseSeries(107, 1500), cfg); !ok {
		t.Error("Base should fire at exactly 7% breakout")
	}
	if _, ok := detectBase(baseSeries(107.5, 1500), cfg); ok {
		t.Error("Base should not fire above 7% breakout")
	}

	// A loose base disqualifies the pattern.
	candles := baseSeries(105, 1500)
	candles[20].Close = 80 // 25% range off the base low
	if _, ok := detectBase(candles, cfg); ok {
		t.Error("Base should not fire with 15%+ volatility")
	}

	// Volume surge below 40% does not confirm.
	if _, ok := detectBase(baseSeries(105, 1300), cfg); ok {
		t.Error("Base should require a 40% volume surge")
	}
}

func TestDetectorDegenerateInput(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// All-zero bars hit every zero divisor; must not fire or panic.
	if signals := detector.Evaluate(flatCandles(60, 0, 0)); len(signals) != 0 {
		t.Errorf("Expected no signals on zero bars, got %d", len(signals))
	}

	if signals := detector.Evaluate(nil); len(signals) != 0 {
		t.Errorf("Expected no signals on empty history, got %d", len(signals))
	}
}

func TestDetectorSmallWindows(t *testing.T) {
	// Windows configured below the fixed sub-ranges (handle, prior
	// resistance, consolidation base) must degrade to not-fired, never
	// slice out of bounds.
	cupCfg := DefaultCupConfig()
	cupCfg.Window = 15
	if _, ok := detectCup(flatCandles(15, 100, 1000), cupCfg); ok {
		t.Error("Flat series should not fire a cup")
	}

	pivotCfg := DefaultPivotConfig()
	pivotCfg.Window = 10
	if _, ok := detectPivot(flatCandles(10, 100, 1000), pivotCfg); ok {
		t.Error("Flat series should not fire a pivot")
	}

	baseCfg := DefaultBaseConfig()
	baseCfg.Window = 20
	if _, ok := detectBase(flatCandles(20, 100, 1000), baseCfg); ok {
		t.Error("Flat series should not fire a base breakout")
	}

	// A breakout still resolves inside the clamped base.
	candles := flatCandles(20, 100, 1000)
	candles[19].Close = 103
	candles[19].Volume = 2000
	if _, ok := detectBase(candles, baseCfg); !ok {
		t.Error("Clamped base window should still detect a breakout")
	}

	// One- and two-bar windows exercise every empty sub-slice.
	for _, n := range []int{1, 2} {
		cupCfg.Window, pivotCfg.Window, baseCfg.Window = n, n, n
		series := flatCandles(n, 100, 1000)
		if _, ok := detectCup(series, cupCfg); ok {
			t.Errorf("Cup should not fire on a %d-bar window", n)
		}
		if _, ok := detectPivot(series, pivotCfg); ok {
			t.Errorf("Pivot should not fire on a %d-bar window", n)
		}
		if _, ok := detectBase(series, baseCfg); ok {
			t.Errorf("Base should not fire on a %d-bar window", n)
		}
	}
}

func TestDetectorFirstPriority(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// A pivot-only series: First should return the pivot even though
	// cup ranks above it.
	candles := flatCandles(60, 100, 1000)
	candles[59].Close = 103
	candles[59].Volume = 2000

	sig, ok := detector.First(candles)
	if !ok {
		t.Fatal("Expected a signal")
	}
	if sig.Kind != KindPivot {
		t.Errorf("Expected %s, got %s", KindPivot, sig.Kind)
	}
}

func TestDetectorEnabledSubset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = []Kind{KindCup}
	detector := NewDetector(cfg)

	candles := flatCandles(60, 100, 1000)
	candles[59].Close = 103
	candles[59].Volume = 2000

	if _, ok := detector.First(candles); ok {
		t.Error("Disabled detectors should not fire")
	}
}
