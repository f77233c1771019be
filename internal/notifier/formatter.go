package notifier

import (
	"fmt"
	"strings"
	"time"

	"oneil/internal/backtest"
	"oneil/internal/pattern"
	"oneil/pkg/model"
)

// FormatPrice renders a price in its market's convention: dollars
// with cents for US, whole won with thousand separators for KR.
func FormatPrice(price float64, market model.Market) string {
	if market == model.MarketKR {
		return groupDigits(int64(price)) + "원"
	}
	return fmt.Sprintf("$%.2f", price)
}

// groupDigits inserts comma thousand separators.
func groupDigits(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)
	if length <= 3 {
		if negative {
			return "-" + str
		}
		return str
	}

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return "-" + result
	}
	return result
}

func marketEmoji(market model.Market) string {
	if market == model.MarketKR {
		return "🇰🇷"
	}
	return "🇺🇸"
}

func patternTitle(kind pattern.Kind) string {
	switch kind {
	case pattern.KindCup:
		return "Cup-and-Handle Detected"
	case pattern.KindPivot:
		return "Pivot Point Breakout!"
	case pattern.KindBase:
		return "Base Breakout Detected"
	}
	return string(kind)
}

// FormatSignal renders one pattern signal as a Telegram alert.
func FormatSignal(sig pattern.Signal, stock model.Stock) string {
	var b strings.Builder

	name := stock.Symbol
	if stock.Name != "" && stock.Name != stock.Symbol {
		name = fmt.Sprintf("%s (%s)", stock.Name, stock.Symbol)
	}

	b.WriteString(fmt.Sprintf("%s <b>[%s]</b>\n\n", marketEmoji(sig.Market), patternTitle(sig.Kind)))
	b.WriteString(fmt.Sprintf("🏢 Symbol: <b>%s</b>\n", name))
	b.WriteString(fmt.Sprintf("💰 Price: %s\n", FormatPrice(sig.Price, sig.Market)))
	b.WriteString(fmt.Sprintf("🎯 Resistance: %s\n", FormatPrice(sig.Reference, sig.Market)))
	b.WriteString(fmt.Sprintf("📈 Breakout: %.2f%%\n", sig.BreakoutPct))

	switch sig.Kind {
	case pattern.KindCup:
		b.WriteString(fmt.Sprintf("\n📉 Cup depth: %.1f%%\n", sig.CupDepthPct))
		b.WriteString(fmt.Sprintf("🔧 Handle depth: %.1f%%\n", sig.HandleDepthPct))
	case pattern.KindPivot:
		b.WriteString(fmt.Sprintf("\n📊 Volume surge: +%.0f%%\n", sig.VolumeSurgePct))
	case pattern.KindBase:
		b.WriteString(fmt.Sprintf("\n📊 Base range: %.1f%%\n", sig.BaseRangePct))
		b.WriteString(fmt.Sprintf("📊 Volume surge: +%.0f%%\n", sig.VolumeSurgePct))
	}

	b.WriteString(fmt.Sprintf("\n⏰ %s", sig.Date.Format("2006-01-02")))
	return b.String()
}

// FormatScanSummary renders the result of one watchlist scan.
func FormatScanSummary(market model.Market, scanned, signals int, elapsed time.Duration) string {
	if signals == 0 {
		return fmt.Sprintf("%s Scan complete: %d symbols, no signals (%.0fs)",
			marketEmoji(market), scanned, elapsed.Seconds())
	}
	return fmt.Sprintf("%s Scan complete: %d symbols, <b>%d signal(s)</b> (%.0fs)",
		marketEmoji(market), scanned, signals, elapsed.Seconds())
}

// FormatBacktestSummary renders a performance summary for chat.
func FormatBacktestSummary(s backtest.Summary) string {
	var b strings.Builder
	b.WriteString("📊 <b>Backtest Report</b>\n\n")
	b.WriteString(fmt.Sprintf("Trades: %d (W %d / L %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades))
	b.WriteString(fmt.Sprintf("Win rate: %.1f%%\n", s.WinRate))
	b.WriteString(fmt.Sprintf("Return: %+.2f%%\n", s.TotalReturnPct))
	b.WriteString(fmt.Sprintf("CAGR: %+.2f%%\n", s.CAGR))
	b.WriteString(fmt.Sprintf("Avg hold: %.1f days\n", s.AvgHoldingDays))
	return b.String()
}
