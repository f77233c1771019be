package backtest

import (
	"time"

	"oneil/internal/pattern"
	"oneil/pkg/model"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss   = "stop-loss"
	ExitTakeProfit = "take-profit"
	ExitExpired    = "expired"
	ExitEnd        = "end-of-backtest"
)

// Position is an open holding inside the simulated portfolio.
type Position struct {
	Symbol     string       `json:"symbol"`
	Market     model.Market `json:"market"`
	Pattern    pattern.Kind `json:"pattern"`
	EntryDate  time.Time    `json:"entry_date"`
	EntryPrice float64      `json:"entry_price"`
	Shares     int          `json:"shares"`
	Cost       float64      `json:"cost"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
}

// HoldingDays returns calendar days held as of the given date.
func (p *Position) HoldingDays(date time.Time) int {
	return int(date.Sub(p.EntryDate).Hours() / 24)
}

// Trade is a completed round trip.
type Trade struct {
	Symbol      string       `json:"symbol"`
	Market      model.Market `json:"market"`
	Pattern     pattern.Kind `json:"pattern"`
	EntryDate   time.Time    `json:"entry_date"`
	EntryPrice  float64      `json:"entry_price"`
	ExitDate    time.Time    `json:"exit_date"`
	ExitPrice   float64      `json:"exit_price"`
	Shares      int          `json:"shares"`
	Cost        float64      `json:"cost"`
	Proceeds    float64      `json:"proceeds"`
	Profit      float64      `json:"profit"`
	ProfitPct   float64      `json:"profit_pct"`
	HoldingDays int          `json:"holding_days"`
	ExitReason  string       `json:"exit_reason"`
}

// Portfolio tracks cash and open positions during a simulation.
// Positions keep entry order so exits are evaluated deterministically.
type Portfolio struct {
	Cash      float64
	Positions []*Position
	Trades    []Trade
}

// NewPortfolio creates a portfolio with the given starting cash
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{Cash: initialCapital}
}

// Holding reports whether the portfolio has an open position in symbol.
func (pf *Portfolio) Holding(symbol string) bool {
	for _, pos := range pf.Positions {
		if pos.Symbol == symbol {
			return true
		}
	}
	return false
}

// Open buys floor(budget/price) shares at the signal day's close.
// Returns nil when the budget buys zero shares or the cost would
// exceed available cash.
func (pf *Portfolio) Open(stock model.Stock, sig pattern.Signal, date time.Time, budget, stopLossPct, takeProfitPct float64) *Position {
	if sig.Price <= 0 {
		return nil
	}
	shares := int(budget / sig.Price)
	if shares <= 0 {
		return nil
	}
	cost := float64(shares) * sig.Price
	if cost > pf.Cash {
		return nil
	}

	pos := &Position{
		Symbol:     stock.Symbol,
		Market:     stock.Market,
		Pattern:    sig.Kind,
		EntryDate:  date,
		EntryPrice: sig.Price,
		Shares:     shares,
		Cost:       cost,
		StopLoss:   sig.Price * (1 + stopLossPct/100),
		TakeProfit: sig.Price * (1 + takeProfitPct/100),
	}
	pf.Cash -= cost
	pf.Positions = append(pf.Positions, pos)
	return pos
}

// Close sells the position at exitPrice and records the trade.
func (pf *Portfolio) Close(pos *Position, date time.Time, exitPrice float64, reason string) Trade {
	proceeds := float64(pos.Shares) * exitPrice
	pf.Cash += proceeds

	profit := proceeds - pos.Cost
	trade := Trade{
		Symbol:      pos.Symbol,
		Market:      pos.Market,
		Pattern:     pos.Pattern,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    date,
		ExitPrice:   exitPrice,
		Shares:      pos.Shares,
		Cost:        pos.Cost,
		Proceeds:    proceeds,
		Profit:      profit,
		ProfitPct:   profit / pos.Cost * 100,
		HoldingDays: pos.HoldingDays(date),
		ExitReason:  reason,
	}
	pf.Trades = append(pf.Trades, trade)

	for i, p := range pf.Positions {
		if p == pos {
			pf.Positions = append(pf.Positions[:i], pf.Positions[i+1:]...)
			break
		}
	}
	return trade
}

// OpenCost returns the total entry cost of all open positions.
func (pf *Portfolio) OpenCost() float64 {
	var total float64
	for _, pos := range pf.Positions {
		total += pos.Cost
	}
	return total
}

// checkExit evaluates the exit rules for one position against one
// daily bar. Stop-loss is checked first and fills at the stop price;
// take-profit and expiry fill at the close.
func checkExit(pos *Position, candle model.Candle, maxHoldingDays int) (float64, string, bool) {
	if candle.Low <= pos.StopLoss {
		return pos.StopLoss, ExitStopLoss, true
	}
	if candle.Close >= pos.TakeProfit {
		return candle.Close, ExitTakeProfit, true
	}
	if pos.HoldingDays(candle.Time) >= maxHoldingDays {
		return candle.Close, ExitExpired, true
	}
	return 0, "", false
}
