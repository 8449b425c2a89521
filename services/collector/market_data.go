package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stock-strategy-backend/services/marketdata"
	"stock-strategy-backend/services/worker"
)

const dateLayout = "2006-01-02"

// KlineStore is the subset of the kline repository the collector needs.
type KlineStore interface {
	NextStartDate(ctx context.Context, g marketdata.Granularity, stockCode string) (time.Time, error)
	InsertBars(ctx context.Context, g marketdata.Granularity, stockCode string, bars []marketdata.Bar, batchSize int) (int, error)
}

// CodeLister provides the universe of securities to collect.
type CodeLister interface {
	AllCodes(ctx context.Context) ([]string, error)
}

// TradingDayResolver answers "what is the most recent completed trading day".
type TradingDayResolver interface {
	LatestTradingDay(ctx context.Context, asOf time.Time) (time.Time, error)
}

// ErrAllFailed is returned when a run attempts at least one security and
// succeeds for none: a total failure is treated as a hard failure of the run,
// unlike individual per-security failures which only degrade it.
var ErrAllFailed = errors.New("market data collection failed for every security")

// MarketDataCollector drives the concurrent fetch-and-persist pipeline for
// daily, weekly and monthly klines across the whole security universe.
type MarketDataCollector struct {
	codes      CodeLister
	store      KlineStore
	source     marketdata.Source
	calendar   TradingDayResolver
	pool       *worker.Pool
	adjustType int
	batchSize  int
}

// NewMarketDataCollector creates a market data collector. concurrency caps
// how many securities are fetched at once to protect the upstream API and
// the database.
func NewMarketDataCollector(codes CodeLister, store KlineStore, source marketdata.Source, cal TradingDayResolver, concurrency, batchSize, adjustType int) *MarketDataCollector {
	return &MarketDataCollector{
		codes:      codes,
		store:      store,
		source:     source,
		calendar:   cal,
		pool:       worker.NewPool(concurrency),
		adjustType: adjustType,
		batchSize:  batchSize,
	}
}

// CollectAll fetches and persists klines for every security in the master.
// startDate, when non-empty, overrides the per-security incremental window
// for all granularities. Per-security failures are isolated and counted;
// only a run with zero successes is reported as an error.
func (c *MarketDataCollector) CollectAll(ctx context.Context, startDate string) (worker.Summary, error) {
	stockCodes, err := c.codes.AllCodes(ctx)
	if err != nil {
		return worker.Summary{}, fmt.Errorf("failed to load security universe: %w", err)
	}

	// Codes starting with 900 (B shares) are excluded from collection.
	filtered := stockCodes[:0]
	for _, code := range stockCodes {
		if !strings.HasPrefix(code, "900") {
			filtered = append(filtered, code)
		}
	}
	stockCodes = filtered

	if len(stockCodes) == 0 {
		log.Println("No securities in master, nothing to collect")
		return worker.Summary{}, nil
	}

	tradeDate, err := c.calendar.LatestTradingDay(ctx, time.Now())
	if err != nil {
		// Documented degraded default: assume yesterday and flag it.
		tradeDate = time.Now().AddDate(0, 0, -1)
		log.Printf("WARNING: could not resolve latest trading day (%v), falling back to %s",
			err, tradeDate.Format(dateLayout))
	}
	log.Printf("Collecting klines for %d securities, trade date %s", len(stockCodes), tradeDate.Format(dateLayout))

	summary := c.pool.Run(ctx, len(stockCodes), func(ctx context.Context, i int) (worker.Outcome, error) {
		return c.collectOne(ctx, stockCodes[i], startDate)
	})

	log.Printf("Market data collection completed: success=%d, empty=%d, failed=%d, rate=%.1f%%",
		summary.SuccessCount, summary.EmptyCount, summary.FailCount, summary.SuccessRate())

	if summary.Total > 0 && summary.SuccessCount == 0 {
		return summary, ErrAllFailed
	}
	return summary, nil
}

type fetchedKline struct {
	granularity marketdata.Granularity
	bars        []marketdata.Bar
}

// collectOne runs the per-security task: resolve each granularity's window,
// fetch in the fixed daily, weekly, monthly order, and persist only once all
// three came back non-empty. An empty result for any granularity classifies
// the whole security as empty and nothing is persisted for it in this run.
func (c *MarketDataCollector) collectOne(ctx context.Context, stockCode, startDate string) (worker.Outcome, error) {
	fetched := make([]fetchedKline, 0, 3)

	for _, g := range marketdata.Granularities() {
		start := startDate
		if start == "" {
			next, err := c.store.NextStartDate(ctx, g, stockCode)
			if err != nil {
				return worker.Failed, fmt.Errorf("stock %s: %w", stockCode, err)
			}
			start = next.Format(dateLayout)
		}

		bars, err := c.source.GetKline(ctx, stockCode, start, "", g, c.adjustType)
		if err != nil {
			return worker.Failed, fmt.Errorf("stock %s: %w", stockCode, err)
		}
		if len(bars) == 0 {
			log.Printf("Stock %s: no new %s kline data from %s", stockCode, g, start)
			return worker.Empty, nil
		}
		fetched = append(fetched, fetchedKline{granularity: g, bars: bars})
	}

	for _, f := range fetched {
		if _, err := c.store.InsertBars(ctx, f.granularity, stockCode, f.bars, c.batchSize); err != nil {
			return worker.Failed, fmt.Errorf("stock %s: %w", stockCode, err)
		}
	}
	return worker.Success, nil
}
