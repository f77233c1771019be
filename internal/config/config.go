package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"oneil/internal/backtest"
	"oneil/internal/pattern"
	"oneil/internal/provider"
)

// Config represents the application configuration
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	KIS      KISConfig       `yaml:"kis"`
	Scan     ScanConfig      `yaml:"scan"`
	Pattern  pattern.Config  `yaml:"pattern"`
	Backtest backtest.Config `yaml:"backtest"`
	Storage  StorageConfig   `yaml:"storage"`
}

// TelegramConfig holds the bot credentials. Both fields empty means
// alerts are logged locally instead of sent.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// KISConfig holds the Korea Investment & Securities OpenAPI key pair.
// Without it KR quotes fall back to Yahoo Finance.
type KISConfig struct {
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`
}

// ScanConfig holds watchlist scan settings
type ScanConfig struct {
	LookbackDays int           `yaml:"lookback_days"` // calendar days of history per evaluation
	Workers      int           `yaml:"workers"`
	Timeout      time.Duration `yaml:"timeout"`
	CronUS       string        `yaml:"cron_us"`
	CronKR       string        `yaml:"cron_kr"`
}

// StorageConfig holds file paths for local state
type StorageConfig struct {
	WatchlistPath string `yaml:"watchlist_path"`
	DatabasePath  string `yaml:"database_path"` // empty disables history recording
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		KIS: KISConfig{
			AppKey:    os.Getenv("KIS_APP_KEY"),
			AppSecret: os.Getenv("KIS_APP_SECRET"),
		},
		Scan: ScanConfig{
			LookbackDays: 150,
			Workers:      5,
			Timeout:      5 * time.Minute,
			CronUS:       "0 */30 * * * 1-5",
			CronKR:       "0 */30 * * * 1-5",
		},
		Pattern:  pattern.DefaultConfig(),
		Backtest: backtest.DefaultConfig(),
		Storage: StorageConfig{
			WatchlistPath: "watchlist.json",
			DatabasePath:  "oneil.db",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan workers must be at least 1")
	}
	if c.Scan.LookbackDays < 60 {
		return fmt.Errorf("lookback_days must cover the widest detector window (got %d)", c.Scan.LookbackDays)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.Backtest.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1")
	}
	if c.Backtest.PositionSizePct <= 0 || c.Backtest.PositionSizePct > 100 {
		return fmt.Errorf("position_size_pct must be in (0, 100]")
	}
	if c.Backtest.StopLossPct >= 0 {
		return fmt.Errorf("stop_loss_pct must be negative")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram chat_id is required when bot_token is set")
	}
	return nil
}

// Credentials converts the config into provider credentials.
func (c *KISConfig) Credentials() provider.KISCredentials {
	return provider.KISCredentials{AppKey: c.AppKey, AppSecret: c.AppSecret}
}

// HasKIS reports whether the KIS key pair is configured.
func (c *KISConfig) HasKIS() bool {
	return c.AppKey != "" && c.AppSecret != ""
}
