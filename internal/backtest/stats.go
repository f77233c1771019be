package backtest

import (
	"math"
	"time"

	"oneil/internal/pattern"
)

// Summary aggregates performance over a set of closed trades.
type Summary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalProfit    float64 `json:"total_profit"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CAGR           float64 `json:"cagr"`

	AvgProfitPct   float64 `json:"avg_profit_pct"`
	AvgLossPct     float64 `json:"avg_loss_pct"`
	MaxProfitPct   float64 `json:"max_profit_pct"`
	MinProfitPct   float64 `json:"min_profit_pct"`
	AvgHoldingDays float64 `json:"avg_holding_days"`

	Patterns map[pattern.Kind]PatternStats `json:"patterns"`
}

// PatternStats breaks performance down by the pattern that triggered
// the entry.
type PatternStats struct {
	Trades       int     `json:"trades"`
	AvgProfitPct float64 `json:"avg_profit_pct"`
	WinRate      float64 `json:"win_rate"`
}

// Summarize computes the performance summary. A zero-trade run yields
// a zeroed summary rather than NaNs, and CAGR is zero when the period
// is shorter than a day.
func Summarize(trades []Trade, initialCapital, finalCapital float64, start, end time.Time) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalCapital:   finalCapital,
		Patterns:       make(map[pattern.Kind]PatternStats),
	}
	s.CAGR = cagr(initialCapital, finalCapital, start, end)

	if len(trades) == 0 {
		return s
	}

	s.TotalTrades = len(trades)
	s.MaxProfitPct = trades[0].ProfitPct
	s.MinProfitPct = trades[0].ProfitPct

	var profitPctSum, lossPctSum, holdingSum float64
	byPattern := make(map[pattern.Kind][]Trade)

	for _, t := range trades {
		s.TotalProfit += t.Profit
		holdingSum += float64(t.HoldingDays)
		byPattern[t.Pattern] = append(byPattern[t.Pattern], t)

		if t.Profit > 0 {
			s.WinningTrades++
			profitPctSum += t.ProfitPct
		} else if t.Profit < 0 {
			s.LosingTrades++
			lossPctSum += t.ProfitPct
		}
		if t.ProfitPct > s.MaxProfitPct {
			s.MaxProfitPct = t.ProfitPct
		}
		if t.ProfitPct < s.MinProfitPct {
			s.MinProfitPct = t.ProfitPct
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.TotalReturnPct = s.TotalProfit / initialCapital * 100
	s.AvgHoldingDays = holdingSum / float64(s.TotalTrades)

	if s.WinningTrades > 0 {
		s.AvgProfitPct = profitPctSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPct = lossPctSum / float64(s.LosingTrades)
	}

	for kind, ts := range byPattern {
		var sum float64
		wins := 0
		for _, t := range ts {
			sum += t.ProfitPct
			if t.Profit > 0 {
				wins++
			}
		}
		s.Patterns[kind] = PatternStats{
			Trades:       len(ts),
			AvgProfitPct: sum / float64(len(ts)),
			WinRate:      float64(wins) / float64(len(ts)) * 100,
		}
	}

	return s
}

// cagr annualizes the total return over the calendar span.
func cagr(initial, final float64, start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	if days <= 0 || initial <= 0 || final <= 0 {
		return 0
	}
	years := days / 365.25
	return (math.Pow(final/initial, 1/years) - 1) * 100
}
