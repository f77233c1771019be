package backtest

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"oneil/pkg/model"
)

// fakeSource serves preloaded candles keyed by symbol.
type fakeSource struct {
	data map[string][]model.Candle
}

func (f *fakeSource) GetDailyCandles(_ context.Context, stock model.Stock, _, _ time.Time) ([]model.Candle, error) {
	return f.data[stock.Symbol], nil
}

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func flatSeries(n int, close float64, volume int64) []model.Candle {
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{
			Time:   testStart.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: volume,
		}
	}
	return candles
}

// breakoutSeries is flat at 100 for 100 bars, then breaks out to 103
// on doubled volume at index 100. Extra bars are appended by callers.
func breakoutSeries(extra ...model.Candle) []model.Candle {
	candles := flatSeries(101, 100, 1000)
	candles[100].Close = 103
	candles[100].High = 103
	candles[100].Volume = 2000
	return append(candles, extra...)
}

func bar(idx int, open, high, low, close float64, volume int64) model.Candle {
	return model.Candle{
		Time:   testStart.AddDate(0, 0, idx),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

func stocks(symbols ...string) []model.Stock {
	out := make([]model.Stock, len(symbols))
	for i, s := range symbols {
		out[i] = model.Stock{Symbol: s, Name: s, Market: model.MarketUS}
	}
	return out
}

func runEngine(t *testing.T, cfg Config, data map[string][]model.Candle, universe []model.Stock) *Result {
	t.Helper()
	engine := NewEngine(cfg, &fakeSource{data: data})
	result, err := engine.Run(context.Background(), universe, testStart, testStart.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return result
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEngineStopLossBeatsTakeProfit(t *testing.T) {
	// Entry at 103 -> stop 94.76, target 123.6. The next bar trips
	// both; the stop must win and fill at the stop price.
	series := breakoutSeries(
		bar(101, 100, 130, 90, 129, 1000),
		bar(102, 95, 95, 95, 95, 1000),
	)

	result := runEngine(t, DefaultConfig(), map[string][]model.Candle{"AAA": series}, stocks("AAA"))

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != ExitStopLoss {
		t.Errorf("Expected exit reason %q, got %q", ExitStopLoss, trade.ExitReason)
	}
	if !approx(trade.EntryPrice, 103) {
		t.Errorf("Expected entry at 103, got %f", trade.EntryPrice)
	}
	if !approx(trade.ExitPrice, 103*0.92) {
		t.Errorf("Expected exit at stop price %.2f, got %f", 103*0.92, trade.ExitPrice)
	}
}

func TestEngineTakeProfit(t *testing.T) {
	series := breakoutSeries(
		bar(101, 120, 125, 119, 124, 1000),
		bar(102, 124, 124, 124, 124, 1000),
	)

	result := runEngine(t, DefaultConfig(), map[string][]model.Candle{"AAA": series}, stocks("AAA"))

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != ExitTakeProfit {
		t.Errorf("Expected exit reason %q, got %q", ExitTakeProfit, trade.ExitReason)
	}
	// Take-profit fills at the close, not the target price.
	if !approx(trade.ExitPrice, 124) {
		t.Errorf("Expected exit at close 124, got %f", trade.ExitPrice)
	}
	if trade.Profit <= 0 {
		t.Errorf("Expected winning trade, got profit %f", trade.Profit)
	}
}

func TestEngineExpiry(t *testing.T) {
	// Hold flat after entry; the position expires 30 calendar days in.
	extra := make([]model.Candle, 0, 34)
	for i := 101; i < 135; i++ {
		extra = append(extra, bar(i, 100, 100, 100, 100, 1000))
	}
	series := breakoutSeries(extra...)

	result := runEngine(t, DefaultConfig(), map[string][]model.Candle{"AAA": series}, stocks("AAA"))

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != ExitExpired {
		t.Errorf("Expected exit reason %q, got %q", ExitExpired, trade.ExitReason)
	}
	if trade.HoldingDays != 30 {
		t.Errorf("Expected 30 holding days, got %d", trade.HoldingDays)
	}
	if !approx(trade.ExitPrice, 100) {
		t.Errorf("Expected exit at close 100, got %f", trade.ExitPrice)
	}
}

func TestEngineEndOfBacktestAndCapitalConservation(t *testing.T) {
	// The breakout day is the last day: the position opens and is
	// immediately liquidated at the final close.
	cfg := DefaultConfig()
	result := runEngine(t, cfg, map[string][]model.Candle{"AAA": breakoutSeries()}, stocks("AAA"))

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != ExitEnd {
		t.Errorf("Expected exit reason %q, got %q", ExitEnd, trade.ExitReason)
	}

	// Every trade's cash flow must reconcile with the final balance.
	var profit float64
	for _, tr := range result.Trades {
		profit += tr.Profit
	}
	if !approx(result.FinalCash, cfg.InitialCapital+profit) {
		t.Errorf("Cash not conserved: final %f, initial+profit %f",
			result.FinalCash, cfg.InitialCapital+profit)
	}
}

func TestEnginePositionSizing(t *testing.T) {
	cfg := DefaultConfig()
	result := runEngine(t, cfg, map[string][]model.Candle{"AAA": breakoutSeries()}, stocks("AAA"))

	trade := result.Trades[0]
	wantShares := int(cfg.InitialCapital * cfg.PositionSizePct / 100 / 103)
	if trade.Shares != wantShares {
		t.Errorf("Expected %d shares, got %d", wantShares, trade.Shares)
	}
}

func TestEngineMaxPositions(t *testing.T) {
	// Six symbols break out on the same day; only five may open, in
	// universe order.
	data := make(map[string][]model.Candle)
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	for _, s := range symbols {
		data[s] = breakoutSeries()
	}

	result := runEngine(t, DefaultConfig(), data, stocks(symbols...))

	if len(result.Trades) != 5 {
		t.Fatalf("Expected 5 trades, got %d", len(result.Trades))
	}
	for i, want := range symbols[:5] {
		if result.Trades[i].Symbol != want {
			t.Errorf("Trade %d: expected %s, got %s", i, want, result.Trades[i].Symbol)
		}
	}
}

func TestEngineOnePerDayPolicy(t *testing.T) {
	data := map[string][]model.Candle{
		"AAA": breakoutSeries(),
		"BBB": breakoutSeries(),
	}

	cfg := DefaultConfig()
	cfg.EntryPolicy = EntryOnePerDay
	result := runEngine(t, cfg, data, stocks("AAA", "BBB"))

	if len(result.Trades) != 1 {
		t.Fatalf("Expected 1 trade under one-per-day, got %d", len(result.Trades))
	}
	if result.Trades[0].Symbol != "AAA" {
		t.Errorf("Expected first universe symbol to enter, got %s", result.Trades[0].Symbol)
	}
}

func TestEngineNoLookAhead(t *testing.T) {
	// Truncating the future must not change trades already entered.
	full := breakoutSeries(
		bar(101, 100, 130, 90, 129, 1000),
		bar(102, 95, 95, 95, 95, 1000),
	)
	short := full[:101]

	fullResult := runEngine(t, DefaultConfig(), map[string][]model.Candle{"AAA": full}, stocks("AAA"))
	shortResult := runEngine(t, DefaultConfig(), map[string][]model.Candle{"AAA": short}, stocks("AAA"))

	if len(fullResult.Trades) == 0 || len(shortResult.Trades) == 0 {
		t.Fatal("Expected trades in both runs")
	}
	ft, st := fullResult.Trades[0], shortResult.Trades[0]
	if !ft.EntryDate.Equal(st.EntryDate) || !approx(ft.EntryPrice, st.EntryPrice) || ft.Shares != st.Shares {
		t.Errorf("Entry differs with future data: %+v vs %+v", ft, st)
	}
}

func TestEngineSkipsShortHistory(t *testing.T) {
	data := map[string][]model.Candle{
		"AAA": breakoutSeries(),
		"BBB": flatSeries(50, 100, 1000), // below the history floor
	}

	result := runEngine(t, DefaultConfig(), data, stocks("AAA", "BBB"))

	if result.Loaded != 1 {
		t.Errorf("Expected 1 loaded symbol, got %d", result.Loaded)
	}
	// With BBB dropped, AAA's full date range survives.
	if result.TradingDays != 101 {
		t.Errorf("Expected 101 trading days, got %d", result.TradingDays)
	}
}

func TestEngineErrorWhenNothingLoads(t *testing.T) {
	engine := NewEngine(DefaultConfig(), &fakeSource{data: map[string][]model.Candle{
		"AAA": flatSeries(10, 100, 1000),
	}})

	_, err := engine.Run(context.Background(), stocks("AAA"), testStart, testStart.AddDate(1, 0, 0))
	if err == nil {
		t.Error("Expected error when no symbol has enough history")
	}
}

// erroringSource fails the listed symbols and serves the rest from
// the embedded fakeSource.
type erroringSource struct {
	fakeSource
	fail map[string]error
}

func (e *erroringSource) GetDailyCandles(ctx context.Context, stock model.Stock, start, end time.Time) ([]model.Candle, error) {
	if err, ok := e.fail[stock.Symbol]; ok {
		return nil, err
	}
	return e.fakeSource.GetDailyCandles(ctx, stock, start, end)
}

func TestEngineWarnsOnDroppedSymbols(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	source := &erroringSource{
		fakeSource: fakeSource{data: map[string][]model.Candle{
			"AAA": breakoutSeries(),
			"BBB": flatSeries(50, 100, 1000),
		}},
		fail: map[string]error{"CCC": errors.New("quote feed unavailable")},
	}
	engine := NewEngine(DefaultConfig(), source)
	if _, err := engine.Run(context.Background(), stocks("AAA", "BBB", "CCC"), testStart, testStart.AddDate(1, 0, 0)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "[WARN] CCC dropped from universe: quote feed unavailable") {
		t.Errorf("Expected warning for failed CCC fetch, got: %q", out)
	}
	if !strings.Contains(out, "[WARN] BBB dropped from universe: 50 bars, need 100") {
		t.Errorf("Expected warning for short BBB history, got: %q", out)
	}
	if strings.Contains(out, "AAA dropped") {
		t.Errorf("AAA must not be dropped: %q", out)
	}
}

func TestEngineIgnoresDatesSymbolNeverTraded(t *testing.T) {
	// Drive the day loop with a date absent from the series; the
	// engine must skip the symbol, not fall back to bar 0.
	engine := NewEngine(DefaultConfig(), &fakeSource{})
	sd := &symbolData{
		Stock:   model.Stock{Symbol: "AAA", Name: "AAA", Market: model.MarketUS},
		Candles: breakoutSeries(),
		index:   make(map[string]int),
	}
	for idx, c := range sd.Candles {
		sd.index[dateKey(c.Time)] = idx
	}
	series := []*symbolData{sd}
	absent := testStart.AddDate(0, 0, 400)

	pf := NewPortfolio(engine.config.InitialCapital)
	engine.openEntries(pf, series, absent)
	if len(pf.Positions) != 0 {
		t.Errorf("No entry may open on a date the symbol never traded, got %d positions", len(pf.Positions))
	}

	engine.openEntries(pf, series, sd.Candles[100].Time)
	if len(pf.Positions) != 1 {
		t.Fatalf("Expected 1 position on the breakout day, got %d", len(pf.Positions))
	}
	engine.closeExits(pf, series, absent)
	if len(pf.Trades) != 0 {
		t.Errorf("No exit may fill on a date the symbol never traded, got %d trades", len(pf.Trades))
	}
}

func TestCommonDatesStrictIntersection(t *testing.T) {
	a := flatSeries(10, 100, 1000)
	b := flatSeries(10, 100, 1000)
	// Remove one date from B; it must disappear from the common set.
	b = append(b[:5], b[6:]...)

	series := []*symbolData{
		{Stock: model.Stock{Symbol: "AAA"}, Candles: a},
		{Stock: model.Stock{Symbol: "BBB"}, Candles: b},
	}

	dates := commonDates(series)
	if len(dates) != 9 {
		t.Fatalf("Expected 9 common dates, got %d", len(dates))
	}
	missing := testStart.AddDate(0, 0, 5)
	for _, d := range dates {
		if d.Equal(missing) {
			t.Errorf("Date %s should have been dropped", d.Format("2006-01-02"))
		}
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			t.Error("Dates must be strictly ascending")
		}
	}
}

func TestCommonDatesCountsDuplicateBarsOnce(t *testing.T) {
	// A's feed repeats day 5 and B lacks it entirely; the duplicate
	// must not let the date pass the intersection.
	a := flatSeries(10, 100, 1000)
	a = append(a, a[5])
	b := flatSeries(10, 100, 1000)
	b = append(b[:5], b[6:]...)

	series := []*symbolData{
		{Stock: model.Stock{Symbol: "AAA"}, Candles: a},
		{Stock: model.Stock{Symbol: "BBB"}, Candles: b},
	}

	dates := commonDates(series)
	if len(dates) != 9 {
		t.Fatalf("Expected 9 common dates, got %d", len(dates))
	}
	missing := testStart.AddDate(0, 0, 5)
	for _, d := range dates {
		if d.Equal(missing) {
			t.Errorf("Duplicated date %s must still be dropped", d.Format("2006-01-02"))
		}
	}
}
