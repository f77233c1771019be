package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"oneil/internal/notifier"
	"oneil/internal/recorder"
	"oneil/internal/scanner"
	"oneil/internal/watchlist"
	"oneil/pkg/model"
)

// Options configures the bot's scheduled scans.
type Options struct {
	// Cron expressions (with seconds) for the periodic scans. A scan
	// only runs when its market is in regular session.
	ScanCronUS string
	ScanCronKR string

	// SendRetries caps retransmissions for alert messages.
	SendRetries int

	// BeforeScan runs before each scheduled scan, typically to drop
	// provider caches so the scan sees fresh bars.
	BeforeScan func()
}

// DefaultOptions returns every half hour during a generous window;
// the market-hours gate filters the rest.
func DefaultOptions() Options {
	return Options{
		ScanCronUS:  "0 */30 * * * 1-5",
		ScanCronKR:  "0 */30 * * * 1-5",
		SendRetries: 3,
	}
}

// Bot ties the scanner, watchlist, notifier, and recorder into a
// long-running Telegram-driven service.
type Bot struct {
	scanner   *scanner.Scanner
	watchlist *watchlist.Store
	notifier  notifier.Notifier
	recorder  recorder.Recorder
	opts      Options

	cron   *cron.Cron
	scanMu sync.Mutex // held during a scan; commands get a busy reply
}

// New creates a Bot.
func New(sc *scanner.Scanner, wl *watchlist.Store, n notifier.Notifier, rec recorder.Recorder, opts Options) *Bot {
	if opts.SendRetries < 1 {
		opts.SendRetries = 1
	}
	return &Bot{
		scanner:   sc,
		watchlist: wl,
		notifier:  n,
		recorder:  rec,
		opts:      opts,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start registers the scheduled scans, begins command polling, and
// blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.cron.AddFunc(b.opts.ScanCronUS, func() { b.scheduledScan(ctx, model.MarketUS) }); err != nil {
		return fmt.Errorf("register US scan: %w", err)
	}
	if _, err := b.cron.AddFunc(b.opts.ScanCronKR, func() { b.scheduledScan(ctx, model.MarketKR) }); err != nil {
		return fmt.Errorf("register KR scan: %w", err)
	}
	b.cron.Start()
	log.Println("[INFO] scheduler started")

	if poller, ok := b.notifier.(*notifier.TelegramNotifier); ok {
		go poller.StartPolling(ctx, b.HandleCommand)
	}

	<-ctx.Done()
	b.cron.Stop()
	log.Println("[INFO] scheduler stopped")
	return ctx.Err()
}

// scheduledScan runs a scan only while the market is in session.
func (b *Bot) scheduledScan(ctx context.Context, market model.Market) {
	status := GetMarketStatus(market, time.Now())
	if !status.IsOpen {
		log.Printf("[INFO] skipping %s scan: %s", market, status.Reason)
		return
	}
	if b.opts.BeforeScan != nil {
		b.opts.BeforeScan()
	}
	reply := b.runScan(ctx, market)
	if reply != "" {
		b.trySend(ctx, reply)
	}
}

// HandleCommand dispatches one Telegram command and returns the reply.
func (b *Bot) HandleCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	// Telegram group commands arrive as /cmd@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	arg := ""
	if len(fields) > 1 {
		arg = strings.ToUpper(fields[1])
	}

	ctx := context.Background()

	switch cmd {
	case "/help", "/start":
		return helpText
	case "/scan":
		us := b.runScan(ctx, model.MarketUS)
		kr := b.runScan(ctx, model.MarketKR)
		return us + "\n\n" + kr
	case "/scan_us":
		return b.runScan(ctx, model.MarketUS)
	case "/scan_kr":
		return b.runScan(ctx, model.MarketKR)
	case "/add_us":
		return b.addSymbol(model.MarketUS, arg)
	case "/add_kr":
		return b.addSymbol(model.MarketKR, arg)
	case "/remove_us":
		return b.removeSymbol(model.MarketUS, arg)
	case "/remove_kr":
		return b.removeSymbol(model.MarketKR, arg)
	case "/list":
		return b.listWatchlist()
	case "/status":
		return b.statusText()
	default:
		return "Unknown command. Send /help for the command list."
	}
}

const helpText = `📈 <b>Breakout Scanner</b>

/scan - scan both watchlists now
/scan_us - scan the US watchlist
/scan_kr - scan the KR watchlist
/add_us SYMBOL - add a US ticker
/add_kr CODE - add a KR ticker
/remove_us SYMBOL - remove a US ticker
/remove_kr CODE - remove a KR ticker
/list - show both watchlists
/status - market session status`

// runScan scans one market's watchlist, sends an alert per signal,
// and returns the summary line for the command reply.
func (b *Bot) runScan(ctx context.Context, market model.Market) string {
	if !b.scanMu.TryLock() {
		return "⏳ A scan is already running, try again in a bit."
	}
	defer b.scanMu.Unlock()

	stocks := b.watchlist.Stocks(market)
	if len(stocks) == 0 {
		return fmt.Sprintf("%s watchlist is empty.", market)
	}

	log.Printf("[INFO] scanning %d %s symbols", len(stocks), market)
	result, err := b.scanner.Scan(ctx, stocks)
	if err != nil {
		log.Printf("[ERROR] %s scan: %v", market, err)
		return fmt.Sprintf("❌ %s scan failed: %v", market, err)
	}

	runID, err := b.recorder.BeginRun("scan")
	if err != nil {
		log.Printf("[ERROR] begin scan run: %v", err)
	}

	for _, hit := range result.Hits {
		for _, sig := range hit.Signals {
			b.trySend(ctx, notifier.FormatSignal(sig, hit.Stock))
			if runID != "" {
				if err := b.recorder.RecordSignal(runID, sig); err != nil {
					log.Printf("[ERROR] record signal %s: %v", sig.Symbol, err)
				}
			}
		}
	}

	log.Printf("[INFO] %s scan done: %d scanned, %d signals in %s",
		market, result.TotalScanned, result.SignalCount(), result.ScanTime.Round(time.Millisecond))
	return notifier.FormatScanSummary(market, result.TotalScanned, result.SignalCount(), result.ScanTime)
}

func (b *Bot) addSymbol(market model.Market, symbol string) string {
	if symbol == "" {
		return "Usage: /add_" + strings.ToLower(string(market)) + " SYMBOL"
	}
	if err := b.watchlist.Add(market, symbol); err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	return fmt.Sprintf("✅ Added %s to the %s watchlist.", symbol, market)
}

func (b *Bot) removeSymbol(market model.Market, symbol string) string {
	if symbol == "" {
		return "Usage: /remove_" + strings.ToLower(string(market)) + " SYMBOL"
	}
	if err := b.watchlist.Remove(market, symbol); err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	return fmt.Sprintf("✅ Removed %s from the %s watchlist.", symbol, market)
}

func (b *Bot) listWatchlist() string {
	var sb strings.Builder
	for _, market := range []model.Market{model.MarketUS, model.MarketKR} {
		symbols := b.watchlist.Symbols(market)
		fmt.Fprintf(&sb, "<b>%s</b> (%d)\n", market, len(symbols))
		if len(symbols) == 0 {
			sb.WriteString("(empty)\n")
		} else {
			sb.WriteString(strings.Join(symbols, ", "))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) statusText() string {
	now := time.Now()
	var sb strings.Builder
	for _, market := range []model.Market{model.MarketUS, model.MarketKR} {
		status := GetMarketStatus(market, now)
		if status.IsOpen {
			fmt.Fprintf(&sb, "%s: open (local %s)\n", market, status.LocalTime.Format("15:04"))
		} else {
			next := NextOpen(market, now)
			fmt.Fprintf(&sb, "%s: closed (%s), opens in %s\n",
				market, status.Reason, FormatDuration(next.Sub(now)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) trySend(ctx context.Context, text string) {
	if err := b.notifier.SendWithRetry(ctx, text, b.opts.SendRetries); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
