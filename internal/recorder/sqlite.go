package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"oneil/internal/backtest"
	"oneil/internal/pattern"
)

// SQLiteRecorder persists runs, signals and trades to a SQLite
// database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs
// migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reads don't block the bot's writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			trades      INTEGER,
			win_rate    REAL,
			return_pct  REAL,
			cagr        REAL
		)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			market       TEXT NOT NULL,
			pattern      TEXT NOT NULL,
			date         TEXT NOT NULL,
			price        REAL,
			reference    REAL,
			breakout_pct REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_run ON signals(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			market       TEXT NOT NULL,
			pattern      TEXT NOT NULL,
			entry_date   TEXT NOT NULL,
			entry_price  REAL,
			exit_date    TEXT NOT NULL,
			exit_price   REAL,
			shares       INTEGER,
			profit       REAL,
			profit_pct   REAL,
			holding_days INTEGER,
			exit_reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// BeginRun inserts a new run row and returns its generated ID.
func (r *SQLiteRecorder) BeginRun(kind string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	_, err := r.db.Exec(`INSERT INTO runs (id, kind, started_at) VALUES (?,?,?)`,
		id, kind, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLiteRecorder) RecordSignal(runID string, sig pattern.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO signals
		(run_id, timestamp, symbol, market, pattern, date, price, reference, breakout_pct)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		runID, time.Now().Unix(), sig.Symbol, string(sig.Market), string(sig.Kind),
		sig.Date.Format("2006-01-02"), sig.Price, sig.Reference, sig.BreakoutPct,
	)
	return err
}

func (r *SQLiteRecorder) RecordTrade(runID string, trade backtest.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(run_id, symbol, market, pattern, entry_date, entry_price,
		 exit_date, exit_price, shares, profit, profit_pct, holding_days, exit_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, trade.Symbol, string(trade.Market), string(trade.Pattern),
		trade.EntryDate.Format("2006-01-02"), trade.EntryPrice,
		trade.ExitDate.Format("2006-01-02"), trade.ExitPrice,
		trade.Shares, trade.Profit, trade.ProfitPct, trade.HoldingDays, trade.ExitReason,
	)
	return err
}

func (r *SQLiteRecorder) EndRun(runID string, summary backtest.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`UPDATE runs
		SET finished_at = ?, trades = ?, win_rate = ?, return_pct = ?, cagr = ?
		WHERE id = ?`,
		time.Now().Unix(), summary.TotalTrades, summary.WinRate,
		summary.TotalReturnPct, summary.CAGR, runID,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
