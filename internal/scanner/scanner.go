package scanner

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"oneil/internal/pattern"
	"oneil/internal/provider"
	"oneil/pkg/model"
)

// ProgressCallback is called with progress updates
type ProgressCallback func(scanned, total int)

// Hit pairs a stock with the signals that fired on its latest bar.
type Hit struct {
	Stock   model.Stock
	Signals []pattern.Signal
}

// Result summarizes one watchlist scan.
type Result struct {
	TotalScanned int
	Hits         []Hit
	ScanTime     time.Duration
}

// SignalCount returns the total number of signals across all hits.
func (r *Result) SignalCount() int {
	n := 0
	for _, h := range r.Hits {
		n += len(h.Signals)
	}
	return n
}

// Scanner evaluates the pattern detectors over a watchlist in
// parallel.
type Scanner struct {
	source       provider.Source
	detector     *pattern.Detector
	lookbackDays int
	workers      int
	timeout      time.Duration
	progressFunc ProgressCallback
}

// NewScanner creates a scanner. lookbackDays controls how much
// history each evaluation sees; it must cover the widest detector
// window plus weekends and holidays.
func NewScanner(source provider.Source, cfg pattern.Config, lookbackDays, workers int, timeout time.Duration) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		source:       source,
		detector:     pattern.NewDetector(cfg),
		lookbackDays: lookbackDays,
		workers:      workers,
		timeout:      timeout,
	}
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// Scan evaluates every stock and returns the hits in watchlist order.
// Per-symbol fetch failures are skipped, not fatal.
func (s *Scanner) Scan(ctx context.Context, stocks []model.Stock) (*Result, error) {
	startTime := time.Now()

	if len(stocks) == 0 {
		return &Result{ScanTime: time.Since(startTime)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type job struct {
		order int
		stock model.Stock
	}
	type hitWithOrder struct {
		order int
		hit   Hit
	}

	jobChan := make(chan job, len(stocks))
	resultChan := make(chan hitWithOrder, len(stocks))

	for i, stock := range stocks {
		jobChan <- job{order: i, stock: stock}
	}
	close(jobChan)

	end := time.Now()
	start := end.AddDate(0, 0, -s.lookbackDays)

	var scannedCount int64
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				candles, err := s.source.GetDailyCandles(ctx, j.stock, start, end)
				if err == nil {
					if signals := s.evaluate(j.stock, candles); len(signals) > 0 {
						resultChan <- hitWithOrder{order: j.order, hit: Hit{Stock: j.stock, Signals: signals}}
					}
				}

				count := atomic.AddInt64(&scannedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(stocks))
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var ordered []hitWithOrder
	for r := range resultChan {
		ordered = append(ordered, r)
	}

	// Workers finish out of order; restore watchlist order so alerts
	// are deterministic.
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	hits := make([]Hit, 0, len(ordered))
	for _, r := range ordered {
		hits = append(hits, r.hit)
	}

	return &Result{
		TotalScanned: len(stocks),
		Hits:         hits,
		ScanTime:     time.Since(startTime),
	}, nil
}

func (s *Scanner) evaluate(stock model.Stock, candles []model.Candle) []pattern.Signal {
	signals := s.detector.Evaluate(candles)
	for i := range signals {
		signals[i].Symbol = stock.Symbol
		signals[i].Market = stock.Market
	}
	return signals
}
