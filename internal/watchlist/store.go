package watchlist

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"oneil/pkg/model"
)

// Default universes used when no watchlist file exists yet.
var (
	defaultUS = []string{
		"AAPL", "MSFT", "GOOGL", "AMZN", "META",
		"NVDA", "AMD", "AVGO",
		"TSLA", "NFLX", "CRM", "ADBE",
		"PLTR", "SNOW", "CRWD", "NET", "DDOG", "ZS",
		"COIN", "SQ", "PYPL",
		"SHOP",
	}
	defaultKR = []string{
		"005930", "000660", "035420", "035720",
		"373220", "086520", "247540", "066970",
		"068270", "091990", "207940", "326030",
		"005380", "000270",
		"051910", "006400", "096770",
		"009540", "010140",
	}
)

// fileFormat is the on-disk watchlist layout.
type fileFormat struct {
	US []string `json:"us"`
	KR []string `json:"kr"`
}

// Store persists the per-market watchlists to a JSON file.
type Store struct {
	mu       sync.RWMutex
	filepath string
	lists    map[model.Market][]string
}

// NewStore opens (or seeds) the watchlist at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	s := &Store{
		filepath: path,
		lists: map[model.Market][]string{
			model.MarketUS: append([]string(nil), defaultUS...),
			model.MarketKR: append([]string(nil), defaultKR...),
		},
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[WATCHLIST] Warning: could not load %s: %v", path, err)
		}
		// Seed the file with the defaults
		if err := s.persist(); err != nil {
			return nil, err
		}
	}

	log.Printf("[WATCHLIST] %d US / %d KR symbols from %s",
		len(s.lists[model.MarketUS]), len(s.lists[model.MarketKR]), path)
	return s, nil
}

// Add appends a symbol to a market's list. Adding an existing symbol
// is an error so the caller can report it.
func (s *Store) Add(market model.Market, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.lists[market] {
		if existing == symbol {
			return fmt.Errorf("%s already in %s watchlist", symbol, market)
		}
	}
	s.lists[market] = append(s.lists[market], symbol)
	log.Printf("[WATCHLIST] Added %s (%s)", symbol, market)
	return s.persist()
}

// Remove deletes a symbol from a market's list.
func (s *Store) Remove(market model.Market, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[market]
	for i, existing := range list {
		if existing == symbol {
			s.lists[market] = append(list[:i], list[i+1:]...)
			log.Printf("[WATCHLIST] Removed %s (%s)", symbol, market)
			return s.persist()
		}
	}
	return fmt.Errorf("%s not in %s watchlist", symbol, market)
}

// Symbols returns a copy of one market's list, in stored order.
func (s *Store) Symbols(market model.Market) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.lists[market]...)
}

// Stocks returns one market's list as stock descriptors, in stored
// order. Order matters: the backtest engine breaks entry ties by it.
func (s *Store) Stocks(market model.Market) []model.Stock {
	symbols := s.Symbols(market)
	stocks := make([]model.Stock, len(symbols))
	for i, sym := range symbols {
		stocks[i] = model.Stock{Symbol: sym, Market: market}
	}
	return stocks
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.lists[model.MarketUS] = f.US
	s.lists[model.MarketKR] = f.KR
	return nil
}

func (s *Store) persist() error {
	f := fileFormat{
		US: s.lists[model.MarketUS],
		KR: s.lists[model.MarketKR],
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filepath, data, 0644)
}
