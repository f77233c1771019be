package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"oneil/internal/config"
	"oneil/internal/provider"
	"oneil/internal/recorder"
	"oneil/internal/watchlist"
	"oneil/pkg/model"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	// Local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "oneil",
		Short: "Breakout pattern scanner and backtester",
		Long: `oneil watches US and KR stocks for O'Neil-style breakout setups:

Patterns:
  cup-and-handle  - cup base with a shallow handle breaking resistance
  pivot-breakout  - volume-surge close above the recent pivot
  base-breakout   - flat base resolving upward on expanding volume

Examples:
  oneil scan --market us
  oneil backtest --market us --start 2023-01-01 --end 2024-12-31 --csv trades.csv
  oneil watch`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show detailed output")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newBotCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildSource wires the per-market providers into one router. US
// quotes come from Yahoo Finance; KR quotes prefer the KIS OpenAPI
// when a key pair is configured and fall back to Yahoo's .KS listings.
func buildSource(cfg *config.Config) *provider.Router {
	router := provider.NewRouter()
	router.Register(provider.NewCachingProvider(provider.NewYahooProvider()))

	yahooKR := provider.NewYahooKRProvider()
	if cfg.KIS.HasKIS() {
		kis := provider.NewKISProvider(cfg.KIS.Credentials())
		router.Register(provider.NewCachingProvider(
			provider.NewFallbackProvider(model.MarketKR, kis, yahooKR)))
	} else {
		router.Register(provider.NewCachingProvider(yahooKR))
	}
	return router
}

func openWatchlist(cfg *config.Config) (*watchlist.Store, error) {
	store, err := watchlist.NewStore(cfg.Storage.WatchlistPath)
	if err != nil {
		return nil, fmt.Errorf("opening watchlist: %w", err)
	}
	return store, nil
}

func openRecorder(cfg *config.Config) (recorder.Recorder, error) {
	if cfg.Storage.DatabasePath == "" {
		return recorder.Noop{}, nil
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening recorder: %w", err)
	}
	return rec, nil
}

// marketsFor maps the --market flag to the market list.
func marketsFor(flag string) ([]model.Market, error) {
	switch flag {
	case "us":
		return []model.Market{model.MarketUS}, nil
	case "kr":
		return []model.Market{model.MarketKR}, nil
	case "all", "":
		return []model.Market{model.MarketUS, model.MarketKR}, nil
	default:
		return nil, fmt.Errorf("unknown market %q (want us, kr, or all)", flag)
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
