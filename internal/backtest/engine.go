package backtest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"oneil/internal/pattern"
	"oneil/internal/provider"
	"oneil/pkg/model"
)

// EntryPolicy controls how many signals may open positions on a
// single simulated day.
type EntryPolicy string

const (
	// EntryFill opens every firing signal until the position cap or
	// cash runs out.
	EntryFill EntryPolicy = "fill"
	// EntryOnePerDay opens at most one new position per day.
	EntryOnePerDay EntryPolicy = "one-per-day"
)

// Config holds the simulation parameters.
type Config struct {
	InitialCapital  float64        `yaml:"initial_capital"`
	MaxPositions    int            `yaml:"max_positions"`
	PositionSizePct float64        `yaml:"position_size_pct"`
	StopLossPct     float64        `yaml:"stop_loss_pct"` // negative, e.g. -8
	TakeProfitPct   float64        `yaml:"take_profit_pct"`
	MaxHoldingDays  int            `yaml:"max_holding_days"` // calendar days
	MinHistoryBars  int            `yaml:"min_history_bars"`
	EntryPolicy     EntryPolicy    `yaml:"entry_policy"`
	Patterns        pattern.Config `yaml:"-"`
}

// DefaultConfig returns the default simulation parameters
func DefaultConfig() Config {
	return Config{
		InitialCapital:  10000000, // 1000만원
		MaxPositions:    5,
		PositionSizePct: 20,
		StopLossPct:     -8,
		TakeProfitPct:   20,
		MaxHoldingDays:  30,
		MinHistoryBars:  100,
		EntryPolicy:     EntryFill,
		Patterns:        pattern.DefaultConfig(),
	}
}

// Result contains the complete simulation output.
type Result struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TradingDays int       `json:"trading_days"`
	Universe    int       `json:"universe"`
	Loaded      int       `json:"loaded"`
	Trades      []Trade   `json:"trades"`
	FinalCash   float64   `json:"final_cash"`
	Summary     Summary   `json:"summary"`
}

// ProgressCallback reports loading progress
type ProgressCallback func(loaded, total int, symbol string)

// Engine runs the portfolio simulation over a stock universe.
type Engine struct {
	config   Config
	source   provider.Source
	detector *pattern.Detector
}

// NewEngine creates a simulation engine
func NewEngine(cfg Config, source provider.Source) *Engine {
	return &Engine{
		config:   cfg,
		source:   source,
		detector: pattern.NewDetector(cfg.Patterns),
	}
}

// symbolData holds the preloaded history for one stock.
type symbolData struct {
	Stock   model.Stock
	Candles []model.Candle
	index   map[string]int // date key -> candle index
}

// Run executes the simulation over [start, end].
func (e *Engine) Run(ctx context.Context, stocks []model.Stock, start, end time.Time) (*Result, error) {
	return e.RunWithProgress(ctx, stocks, start, end, nil)
}

// RunWithProgress executes the simulation, reporting per-symbol
// loading progress. Stocks with insufficient history are skipped, not
// fatal. The day loop only ever sees bars up to the simulated date,
// so detectors cannot look ahead.
func (e *Engine) RunWithProgress(ctx context.Context, stocks []model.Stock, start, end time.Time, progress ProgressCallback) (*Result, error) {
	series := make([]*symbolData, 0, len(stocks))
	for i, stock := range stocks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candles, err := e.source.GetDailyCandles(ctx, stock, start, end)
		if err != nil || len(candles) < e.config.MinHistoryBars {
			if err != nil {
				log.Printf("[WARN] %s dropped from universe: %v", stock.Symbol, err)
			} else {
				log.Printf("[WARN] %s dropped from universe: %d bars, need %d",
					stock.Symbol, len(candles), e.config.MinHistoryBars)
			}
			if progress != nil {
				progress(i+1, len(stocks), stock.Symbol+" (skipped)")
			}
			continue
		}

		sd := &symbolData{Stock: stock, Candles: candles, index: make(map[string]int, len(candles))}
		for idx, c := range candles {
			sd.index[dateKey(c.Time)] = idx
		}
		series = append(series, sd)

		if progress != nil {
			progress(i+1, len(stocks), stock.Symbol)
		}
	}

	if len(series) == 0 {
		return nil, fmt.Errorf("no symbol has at least %d bars of history", e.config.MinHistoryBars)
	}

	dates := commonDates(series)
	if len(dates) == 0 {
		return nil, fmt.Errorf("no trading day is shared by all %d symbols", len(series))
	}

	pf := NewPortfolio(e.config.InitialCapital)

	for _, date := range dates {
		e.closeExits(pf, series, date)
		e.openEntries(pf, series, date)
	}

	// Whatever is still open liquidates at the final close.
	last := dates[len(dates)-1]
	for _, pos := range append([]*Position(nil), pf.Positions...) {
		if sd := findSeries(series, pos.Symbol); sd != nil {
			if idx, ok := sd.index[dateKey(last)]; ok {
				pf.Close(pos, last, sd.Candles[idx].Close, ExitEnd)
			}
		}
	}

	result := &Result{
		Start:       dates[0],
		End:         last,
		TradingDays: len(dates),
		Universe:    len(stocks),
		Loaded:      len(series),
		Trades:      pf.Trades,
		FinalCash:   pf.Cash,
	}
	result.Summary = Summarize(pf.Trades, e.config.InitialCapital, pf.Cash+pf.OpenCost(), dates[0], last)
	return result, nil
}

// closeExits applies the exit rules to every open position, in entry
// order.
func (e *Engine) closeExits(pf *Portfolio, series []*symbolData, date time.Time) {
	for _, pos := range append([]*Position(nil), pf.Positions...) {
		sd := findSeries(series, pos.Symbol)
		if sd == nil {
			continue
		}
		idx, ok := sd.index[dateKey(date)]
		if !ok {
			continue
		}
		candle := sd.Candles[idx]
		if price, reason, ok := checkExit(pos, candle, e.config.MaxHoldingDays); ok {
			pf.Close(pos, date, price, reason)
		}
	}
}

// openEntries scans the universe in input order and opens positions
// for firing signals until the cap, cash, or the entry policy stops
// it.
func (e *Engine) openEntries(pf *Portfolio, series []*symbolData, date time.Time) {
	for _, sd := range series {
		if len(pf.Positions) >= e.config.MaxPositions {
			return
		}
		if pf.Holding(sd.Stock.Symbol) {
			continue
		}

		idx, present := sd.index[dateKey(date)]
		if !present {
			continue
		}
		sig, ok := e.detector.First(sd.Candles[:idx+1])
		if !ok {
			continue
		}
		sig.Symbol = sd.Stock.Symbol
		sig.Market = sd.Stock.Market

		budget := pf.Cash * e.config.PositionSizePct / 100
		pos := pf.Open(sd.Stock, sig, date, budget, e.config.StopLossPct, e.config.TakeProfitPct)
		if pos != nil && e.config.EntryPolicy == EntryOnePerDay {
			return
		}
	}
}

// commonDates returns the trading dates present in every series,
// ascending. A date missing from any one symbol is dropped entirely.
func commonDates(series []*symbolData) []time.Time {
	seen := make(map[string]time.Time)
	tally := make(map[string]int)
	for _, sd := range series {
		// A date may only count once per symbol, even if the feed
		// repeats a bar.
		mine := make(map[string]struct{}, len(sd.Candles))
		for _, c := range sd.Candles {
			key := dateKey(c.Time)
			if _, dup := mine[key]; dup {
				continue
			}
			mine[key] = struct{}{}
			tally[key]++
			seen[key] = c.Time
		}
	}

	var dates []time.Time
	for key, n := range tally {
		if n == len(series) {
			dates = append(dates, seen[key])
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func findSeries(series []*symbolData, symbol string) *symbolData {
	for _, sd := range series {
		if sd.Stock.Symbol == symbol {
			return sd
		}
	}
	return nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
