package pattern

import (
	"time"

	"oneil/pkg/model"
)

// Kind identifies which chart pattern produced a signal.
type Kind string

const (
	KindCup   Kind = "cup-and-handle"
	KindPivot Kind = "pivot-breakout"
	KindBase  Kind = "base-breakout"
)

// Priority is the fixed evaluation order when several detectors could
// fire on the same day: the first kind that fires wins.
var Priority = []Kind{KindCup, KindPivot, KindBase}

// thresholdEpsilon absorbs float rounding at the percent thresholds:
// (107-100)/100*100 computes to 7.000000000000001, which must still
// count as a 7% breakout.
const thresholdEpsilon = 1e-9

// Signal is the output of a detector for one symbol on one day.
type Signal struct {
	Kind      Kind         `json:"kind"`
	Symbol    string       `json:"symbol"`
	Market    model.Market `json:"market"`
	Date      time.Time    `json:"date"`
	Price     float64      `json:"price"`     // close on the signal day
	Reference float64      `json:"reference"` // resistance / base high

	BreakoutPct    float64 `json:"breakout_pct"`
	CupDepthPct    float64 `json:"cup_depth_pct,omitempty"`
	HandleDepthPct float64 `json:"handle_depth_pct,omitempty"`
	VolumeSurgePct float64 `json:"volume_surge_pct,omitempty"`
	BaseRangePct   float64 `json:"base_range_pct,omitempty"`
}

// Config bundles the per-detector thresholds and the enabled set.
type Config struct {
	Cup   CupConfig   `yaml:"cup"`
	Pivot PivotConfig `yaml:"pivot"`
	Base  BaseConfig  `yaml:"base"`

	// Enabled lists the active kinds in evaluation priority order.
	Enabled []Kind `yaml:"enabled"`
}

// DefaultConfig returns the default detector configuration
func DefaultConfig() Config {
	return Config{
		Cup:     DefaultCupConfig(),
		Pivot:   DefaultPivotConfig(),
		Base:    DefaultBaseConfig(),
		Enabled: append([]Kind(nil), Priority...),
	}
}

// Detector evaluates the configured patterns over a daily bar history.
// All methods are pure: the candle slice must end at the evaluation
// day, and nothing past the last element is ever read.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given configuration
func NewDetector(cfg Config) *Detector {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = append([]Kind(nil), Priority...)
	}
	return &Detector{config: cfg}
}

// Evaluate runs every enabled detector and returns all signals that
// fired, in priority order. Used by the live scanner, which alerts on
// each pattern independently.
func (d *Detector) Evaluate(candles []model.Candle) []Signal {
	var signals []Signal
	for _, kind := range d.config.Enabled {
		if sig, ok := d.detect(kind, candles); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// First returns the highest-priority signal that fires, if any. Used
// by the backtest engine, which opens at most one position per symbol
// per day.
func (d *Detector) First(candles []model.Candle) (Signal, bool) {
	for _, kind := range d.config.Enabled {
		if sig, ok := d.detect(kind, candles); ok {
			return sig, true
		}
	}
	return Signal{}, false
}

func (d *Detector) detect(kind Kind, candles []model.Candle) (Signal, bool) {
	switch kind {
	case KindCup:
		return detectCup(candles, d.config.Cup)
	case KindPivot:
		return detectPivot(candles, d.config.Pivot)
	case KindBase:
		return detectBase(candles, d.config.Base)
	}
	return Signal{}, false
}

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// tail returns the last n values, or the whole slice when it is
// shorter. Keeps the detectors in-bounds for windows configured
// smaller than their fixed sub-ranges.
func tail(vals []float64, n int) []float64 {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}

func maxOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func meanVolume(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum int64
	for _, c := range candles {
		sum += c.Volume
	}
	return float64(sum) / float64(len(candles))
}
