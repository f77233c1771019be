package backtest

import (
	"testing"
	"time"

	"oneil/internal/pattern"
)

func TestSummarizeNoTrades(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := Summarize(nil, 10000000, 10000000, start, start)

	if s.TotalTrades != 0 || s.WinRate != 0 {
		t.Errorf("Expected zeroed summary, got trades=%d win_rate=%f", s.TotalTrades, s.WinRate)
	}
	if s.CAGR != 0 {
		t.Errorf("Expected zero CAGR for a zero-day period, got %f", s.CAGR)
	}
	if s.FinalCapital != 10000000 {
		t.Errorf("Final capital should pass through, got %f", s.FinalCapital)
	}
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	trades := []Trade{
		{Pattern: pattern.KindCup, Cost: 1000, Profit: 100, ProfitPct: 10, HoldingDays: 10},
		{Pattern: pattern.KindPivot, Cost: 1000, Profit: -50, ProfitPct: -5, HoldingDays: 20},
		{Pattern: pattern.KindCup, Cost: 1000, Profit: 200, ProfitPct: 20, HoldingDays: 6},
	}

	s := Summarize(trades, 10000, 10250, start, end)

	if s.TotalTrades != 3 || s.WinningTrades != 2 || s.LosingTrades != 1 {
		t.Errorf("Bad counts: %d/%d/%d", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	}
	if !approx(s.WinRate, 200.0/3) {
		t.Errorf("Expected win rate %.4f, got %f", 200.0/3, s.WinRate)
	}
	if !approx(s.TotalProfit, 250) {
		t.Errorf("Expected total profit 250, got %f", s.TotalProfit)
	}
	if !approx(s.TotalReturnPct, 2.5) {
		t.Errorf("Expected total return 2.5%%, got %f", s.TotalReturnPct)
	}
	if !approx(s.AvgProfitPct, 15) {
		t.Errorf("Expected avg profit 15%%, got %f", s.AvgProfitPct)
	}
	if !approx(s.AvgLossPct, -5) {
		t.Errorf("Expected avg loss -5%%, got %f", s.AvgLossPct)
	}
	if !approx(s.MaxProfitPct, 20) || !approx(s.MinProfitPct, -5) {
		t.Errorf("Bad extremes: max %f min %f", s.MaxProfitPct, s.MinProfitPct)
	}
	if !approx(s.AvgHoldingDays, 12) {
		t.Errorf("Expected avg holding 12 days, got %f", s.AvgHoldingDays)
	}

	cup := s.Patterns[pattern.KindCup]
	if cup.Trades != 2 || !approx(cup.AvgProfitPct, 15) || !approx(cup.WinRate, 100) {
		t.Errorf("Bad cup stats: %+v", cup)
	}
	pivot := s.Patterns[pattern.KindPivot]
	if pivot.Trades != 1 || !approx(pivot.WinRate, 0) {
		t.Errorf("Bad pivot stats: %+v", pivot)
	}

	// One year at +2.5% should annualize to roughly +2.5%.
	if s.CAGR < 2.3 || s.CAGR > 2.7 {
		t.Errorf("Unexpected CAGR: %f", s.CAGR)
	}
}

func TestPortfolioOpenRejectsOversizedOrders(t *testing.T) {
	pf := NewPortfolio(100)

	sig := pattern.Signal{Kind: pattern.KindPivot, Price: 1000}
	if pos := pf.Open(stocks("AAA")[0], sig, testStart, 500, -8, 20); pos != nil {
		t.Error("Budget below one share should not open a position")
	}
	if !approx(pf.Cash, 100) {
		t.Errorf("Cash must be untouched, got %f", pf.Cash)
	}
}
