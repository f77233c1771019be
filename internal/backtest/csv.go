package backtest

import (
	"encoding/csv"
	"os"
	"strconv"
)

// WriteCSV saves the trade ledger to a CSV file, one row per closed
// trade in close order.
func WriteCSV(trades []Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"symbol", "market", "pattern", "entry_date", "entry_price",
		"exit_date", "exit_price", "shares", "cost", "proceeds",
		"profit", "profit_pct", "holding_days", "exit_reason",
	}); err != nil {
		return err
	}

	for _, t := range trades {
		if err := w.Write([]string{
			t.Symbol,
			string(t.Market),
			string(t.Pattern),
			t.EntryDate.Format("2006-01-02"),
			formatF(t.EntryPrice),
			t.ExitDate.Format("2006-01-02"),
			formatF(t.ExitPrice),
			strconv.Itoa(t.Shares),
			formatF(t.Cost),
			formatF(t.Proceeds),
			formatF(t.Profit),
			formatF(t.ProfitPct),
			strconv.Itoa(t.HoldingDays),
			t.ExitReason,
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
