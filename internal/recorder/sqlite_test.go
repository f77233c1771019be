package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"oneil/internal/backtest"
	"oneil/internal/pattern"
	"oneil/pkg/model"
)

func TestSQLiteRecorderRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "oneil.db")

	r, err := NewSQLiteRecorder(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder failed: %v", err)
	}
	defer r.Close()

	runID, err := r.BeginRun("backtest")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("Expected a run ID")
	}

	sig := pattern.Signal{
		Kind:        pattern.KindPivot,
		Symbol:      "AAPL",
		Market:      model.MarketUS,
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Price:       190.5,
		Reference:   188,
		BreakoutPct: 1.33,
	}
	if err := r.RecordSignal(runID, sig); err != nil {
		t.Fatalf("RecordSignal failed: %v", err)
	}

	trade := backtest.Trade{
		Symbol:      "AAPL",
		Market:      model.MarketUS,
		Pattern:     pattern.KindPivot,
		EntryDate:   sig.Date,
		EntryPrice:  190.5,
		ExitDate:    sig.Date.AddDate(0, 0, 5),
		ExitPrice:   200,
		Shares:      10,
		Profit:      95,
		ProfitPct:   4.99,
		HoldingDays: 5,
		ExitReason:  backtest.ExitTakeProfit,
	}
	if err := r.RecordTrade(runID, trade); err != nil {
		t.Fatalf("RecordTrade failed: %v", err)
	}

	summary := backtest.Summary{TotalTrades: 1, WinRate: 100, TotalReturnPct: 0.95}
	if err := r.EndRun(runID, summary); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	var trades int
	var winRate float64
	row := r.db.QueryRow(`SELECT trades, win_rate FROM runs WHERE id = ?`, runID)
	if err := row.Scan(&trades, &winRate); err != nil {
		t.Fatalf("Scan run failed: %v", err)
	}
	if trades != 1 || winRate != 100 {
		t.Errorf("Bad run row: trades=%d win_rate=%f", trades, winRate)
	}

	var signalCount int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM signals WHERE run_id = ?`, runID).Scan(&signalCount); err != nil {
		t.Fatalf("Count signals failed: %v", err)
	}
	if signalCount != 1 {
		t.Errorf("Expected 1 signal, got %d", signalCount)
	}
}
