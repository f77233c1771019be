package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"oneil/internal/pattern"
	"oneil/internal/scanner"
	"oneil/pkg/model"
)

func newScanCmd() *cobra.Command {
	var (
		marketFlag string
		format     string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the watchlist for breakout signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Scan.Workers = workers
			}

			markets, err := marketsFor(marketFlag)
			if err != nil {
				return err
			}

			store, err := openWatchlist(cfg)
			if err != nil {
				return err
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
				fmt.Println("\nInterrupted. Stopping scan...")
				cancel()
			}()

			source := buildSource(cfg)
			sc := scanner.NewScanner(source, cfg.Pattern, cfg.Scan.LookbackDays, cfg.Scan.Workers, cfg.Scan.Timeout)

			for _, market := range markets {
				if err := runScan(ctx, sc, store.Stocks(market), market, rec, format); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&marketFlag, "market", "all", "market to scan: us, kr, all")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers")
	return cmd
}

func runScan(ctx context.Context, sc *scanner.Scanner, stocks []model.Stock, market model.Market, rec recorderI, format string) error {
	if len(stocks) == 0 {
		fmt.Printf("%s watchlist is empty.\n", market)
		return nil
	}

	fmt.Printf("Scanning %d %s stocks for breakout patterns...\n\n", len(stocks), market)

	bar := newProgressBar(len(stocks), "Scanning")
	sc.SetProgressCallback(func(scanned, total int) {
		bar.Set(scanned)
	})

	result, err := sc.Scan(ctx, stocks)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", market, err)
	}

	bar.Finish()
	fmt.Println()

	recordScan(rec, result)

	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	return printScanTable(result, market)
}

// recorderI keeps runScan testable without the full Recorder surface.
type recorderI interface {
	BeginRun(kind string) (string, error)
	RecordSignal(runID string, sig pattern.Signal) error
}

func recordScan(rec recorderI, result *scanner.Result) {
	if result.SignalCount() == 0 {
		return
	}
	runID, err := rec.BeginRun("scan")
	if err != nil {
		log.Printf("[ERROR] begin scan run: %v", err)
		return
	}
	if runID == "" {
		return
	}
	for _, hit := range result.Hits {
		for _, sig := range hit.Signals {
			if err := rec.RecordSignal(runID, sig); err != nil {
				log.Printf("[ERROR] record signal %s: %v", sig.Symbol, err)
			}
		}
	}
}

func printScanTable(result *scanner.Result, market model.Market) error {
	if len(result.Hits) == 0 {
		fmt.Printf("No breakout signals on the %s watchlist.\n", market)
		fmt.Printf("Scanned %d stocks in %s\n", result.TotalScanned, result.ScanTime.Round(time.Second))
		return nil
	}

	fmt.Printf("Found %d signals:\n\n", result.SignalCount())

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Name", "Pattern", "Close", "Resistance", "Breakout"}),
	)

	for _, hit := range result.Hits {
		name := hit.Stock.Name
		if len(name) > 18 {
			name = name[:18] + "..."
		}
		for _, sig := range hit.Signals {
			table.Append([]string{
				hit.Stock.Symbol,
				name,
				string(sig.Kind),
				fmt.Sprintf("%.2f", sig.Price),
				fmt.Sprintf("%.2f", sig.Reference),
				fmt.Sprintf("%+.1f%%", sig.BreakoutPct),
			})
		}
	}
	table.Render()

	if verbose {
		fmt.Println("\n--- Signal Details ---")
		for _, hit := range result.Hits {
			for _, sig := range hit.Signals {
				printSignalDetail(hit.Stock, sig)
			}
		}
	}

	fmt.Printf("\nScanned %d stocks in %s\n", result.TotalScanned, result.ScanTime.Round(time.Second))
	return nil
}

func printSignalDetail(stock model.Stock, sig pattern.Signal) {
	fmt.Printf("\n[%s] %s - %s\n", stock.Symbol, stock.Name, sig.Kind)
	fmt.Printf("  Close: %.2f | Resistance: %.2f | Breakout: %+.1f%%\n",
		sig.Price, sig.Reference, sig.BreakoutPct)
	switch sig.Kind {
	case pattern.KindCup:
		fmt.Printf("  Cup depth: %.1f%% | Handle depth: %.1f%%\n", sig.CupDepthPct, sig.HandleDepthPct)
	case pattern.KindPivot:
		fmt.Printf("  Volume surge: %+.0f%%\n", sig.VolumeSurgePct)
	case pattern.KindBase:
		fmt.Printf("  Base range: %.1f%% | Volume surge: %+.0f%%\n", sig.BaseRangePct, sig.VolumeSurgePct)
	}
}
