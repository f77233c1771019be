package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"oneil/internal/bot"
	"oneil/internal/notifier"
	"oneil/internal/scanner"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"bot"},
		Short:   "Run the Telegram alert bot with scheduled market-hours scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var n notifier.Notifier = notifier.Noop{}
			if cfg.Telegram.BotToken != "" {
				n = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
			} else {
				log.Println("[WARN] TELEGRAM_BOT_TOKEN not set, alerts will only be logged")
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

			source := buildSource(cfg)
			sc := scanner.NewScanner(source, cfg.Pattern, cfg.Scan.LookbackDays, cfg.Scan.Workers, cfg.Scan.Timeout)

			opts := bot.DefaultOptions()
			if cfg.Scan.CronUS != "" {
				opts.ScanCronUS = cfg.Scan.CronUS
			}
			if cfg.Scan.CronKR != "" {
				opts.ScanCronKR = cfg.Scan.CronKR
			}
			opts.BeforeScan = source.ClearCaches

			b := bot.New(sc, store, n, rec, opts)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				log.Printf("[INFO] received %s, shutting down", sig)
				cancel()
			}()

			fmt.Println("Bot started. Press Ctrl+C to stop.")
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
