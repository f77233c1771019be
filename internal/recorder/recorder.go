package recorder

import (
	"oneil/internal/backtest"
	"oneil/internal/pattern"
)

// Recorder persists scan and backtest history for later inspection.
type Recorder interface {
	// BeginRun opens a new run of the given kind ("scan" or
	// "backtest") and returns its ID.
	BeginRun(kind string) (string, error)

	// RecordSignal stores one detected signal under a run.
	RecordSignal(runID string, sig pattern.Signal) error

	// RecordTrade stores one closed backtest trade under a run.
	RecordTrade(runID string, trade backtest.Trade) error

	// EndRun finalizes a run with its performance summary.
	EndRun(runID string, summary backtest.Summary) error

	Close() error
}

// Noop discards all history. Used when no database is configured.
type Noop struct{}

func (Noop) BeginRun(string) (string, error) { return "", nil }
func (Noop) RecordSignal(string, pattern.Signal) error { return nil }
func (Noop) RecordTrade(string, backtest.Trade) error { return nil }
func (Noop) EndRun(string, backtest.Summary) error { return nil }
func (Noop) Close() error { return nil }
