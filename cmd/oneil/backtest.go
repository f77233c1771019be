package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"oneil/internal/backtest"
	"oneil/internal/notifier"
	"oneil/internal/pattern"
	"oneil/internal/recorder"
)

func newBacktestCmd() *cobra.Command {
	var (
		marketFlag string
		startStr   string
		endStr     string
		csvPath    string
		format     string
		capital    float64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the breakout strategy over historical daily bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("capital") {
				cfg.Backtest.InitialCapital = capital
			}
			cfg.Backtest.Patterns = cfg.Pattern

			markets, err := marketsFor(marketFlag)
			if err != nil {
				return err
			}
			if len(markets) != 1 {
				return fmt.Errorf("backtest runs one market at a time (--market us or --market kr)")
			}
			market := markets[0]

			end := time.Now().UTC().Truncate(24 * time.Hour)
			if endStr != "" {
				if end, err = time.Parse("2006-01-02", endStr); err != nil {
					return fmt.Errorf("parsing --end: %w", err)
				}
			}
			start := end.AddDate(-2, 0, 0)
			if startStr != "" {
				if start, err = time.Parse("2006-01-02", startStr); err != nil {
					return fmt.Errorf("parsing --start: %w", err)
				}
			}
			if !start.Before(end) {
				return fmt.Errorf("start %s is not before end %s",
					start.Format("2006-01-02"), end.Format("2006-01-02"))
			}

			store, err := openWatchlist(cfg)
			if err != nil {
				return err
			}
			stocks := store.Stocks(market)
			if len(stocks) == 0 {
				return fmt.Errorf("%s watchlist is empty", market)
			}

			rec, err := openRecorder(cfg)
			if err != nil {
				return err
			}
			defer rec.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				fmt.Println("\nInterrupted. Stopping backtest...")
				cancel()
			}()

			fmt.Printf("Backtesting %d %s stocks from %s to %s...\n\n",
				len(stocks), market, start.Format("2006-01-02"), end.Format("2006-01-02"))

			engine := backtest.NewEngine(cfg.Backtest, buildSource(cfg))

			bar := newProgressBar(len(stocks), "Loading")
			result, err := engine.RunWithProgress(ctx, stocks, start, end,
				func(loaded, total int, symbol string) {
					bar.Set(loaded)
				})
			bar.Finish()
			fmt.Println()
			if err != nil {
				return fmt.Errorf("backtest: %w", err)
			}

			recordBacktest(rec, result)

			if csvPath != "" {
				if err := backtest.WriteCSV(result.Trades, csvPath); err != nil {
					log.Printf("[WARN] writing trade log: %v", err)
				} else {
					fmt.Printf("Trade log written to %s\n\n", csvPath)
				}
			}

			if cfg.Telegram.BotToken != "" {
				n := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
				if err := n.SendWithRetry(ctx, notifier.FormatBacktestSummary(result.Summary), 3); err != nil {
					log.Printf("[WARN] send backtest report: %v", err)
				}
			}

			if format == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}
			printBacktestReport(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&marketFlag, "market", "us", "market to backtest: us, kr")
	cmd.Flags().StringVar(&startStr, "start", "", "start date (YYYY-MM-DD, default two years before end)")
	cmd.Flags().StringVar(&endStr, "end", "", "end date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "export the trade log to a CSV file")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	cmd.Flags().Float64Var(&capital, "capital", 0, "initial capital override")
	return cmd
}

func recordBacktest(rec recorder.Recorder, result *backtest.Result) {
	runID, err := rec.BeginRun("backtest")
	if err != nil {
		log.Printf("[ERROR] begin backtest run: %v", err)
		return
	}
	if runID == "" {
		return
	}
	for _, trade := range result.Trades {
		if err := rec.RecordTrade(runID, trade); err != nil {
			log.Printf("[ERROR] record trade %s: %v", trade.Symbol, err)
		}
	}
	if err := rec.EndRun(runID, result.Summary); err != nil {
		log.Printf("[ERROR] end backtest run: %v", err)
	}
}

func printBacktestReport(result *backtest.Result) {
	s := result.Summary

	fmt.Printf("Period: %s - %s (%d trading days, %d/%d symbols loaded)\n\n",
		result.Start.Format("2006-01-02"), result.End.Format("2006-01-02"),
		result.TradingDays, result.Loaded, result.Universe)

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Metric", "Value"}),
	)
	table.Append([]string{"Trades", fmt.Sprintf("%d (W %d / L %d)", s.TotalTrades, s.WinningTrades, s.LosingTrades)})
	table.Append([]string{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate)})
	table.Append([]string{"Initial capital", fmt.Sprintf("%.0f", s.InitialCapital)})
	table.Append([]string{"Final capital", fmt.Sprintf("%.0f", s.FinalCapital)})
	table.Append([]string{"Total return", fmt.Sprintf("%+.2f%%", s.TotalReturnPct)})
	table.Append([]string{"CAGR", fmt.Sprintf("%+.2f%%", s.CAGR)})
	table.Append([]string{"Avg profit", fmt.Sprintf("%+.2f%%", s.AvgProfitPct)})
	table.Append([]string{"Avg loss", fmt.Sprintf("%+.2f%%", s.AvgLossPct)})
	table.Append([]string{"Best / worst", fmt.Sprintf("%+.2f%% / %+.2f%%", s.MaxProfitPct, s.MinProfitPct)})
	table.Append([]string{"Avg holding", fmt.Sprintf("%.1f days", s.AvgHoldingDays)})
	table.Render()

	if len(s.Patterns) > 0 {
		fmt.Println("\nBy pattern:")
		kinds := make([]string, 0, len(s.Patterns))
		for kind := range s.Patterns {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)

		patternTable := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Pattern", "Trades", "Avg Profit", "Win Rate"}),
		)
		for _, kind := range kinds {
			stats := s.Patterns[pattern.Kind(kind)]
			patternTable.Append([]string{
				kind,
				fmt.Sprintf("%d", stats.Trades),
				fmt.Sprintf("%+.2f%%", stats.AvgProfitPct),
				fmt.Sprintf("%.1f%%", stats.WinRate),
			})
		}
		patternTable.Render()
	}

	if verbose && len(result.Trades) > 0 {
		fmt.Println("\n--- Trades ---")
		tradeTable := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Symbol", "Pattern", "Entry", "Exit", "P/L %", "Days", "Reason"}),
		)
		for _, t := range result.Trades {
			tradeTable.Append([]string{
				t.Symbol,
				string(t.Pattern),
				fmt.Sprintf("%s @ %.2f", t.EntryDate.Format("2006-01-02"), t.EntryPrice),
				fmt.Sprintf("%s @ %.2f", t.ExitDate.Format("2006-01-02"), t.ExitPrice),
				fmt.Sprintf("%+.2f", t.ProfitPct),
				fmt.Sprintf("%d", t.HoldingDays),
				t.ExitReason,
			})
		}
		tradeTable.Render()
	}
}
