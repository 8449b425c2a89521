package indicators

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-strategy-backend/models"
	"stock-strategy-backend/repository"
	"stock-strategy-backend/services/worker"
)

// historyDepth covers the largest moving average window.
const historyDepth = 60

var one = decimal.NewFromInt(1)

// ErrAllFailed is returned when indicator calculation was attempted for at
// least one security and produced results for none.
var ErrAllFailed = errors.New("indicator calculation failed for every security")

// DailyBarReader is the subset of the kline repository the calculator needs.
type DailyBarReader interface {
	RecentDailyBars(ctx context.Context, stockCode string, n int) ([]models.KlineBar, error)
}

// CodeLister provides the universe of securities to compute indicators for.
type CodeLister interface {
	AllCodes(ctx context.Context) ([]string, error)
}

// IndicatorStore persists computed indicator rows.
type IndicatorStore interface {
	UpsertIndicators(ctx context.Context, rows []models.StockIndicator, batchSize int) (repository.UpsertResult, error)
}

// TradingDayResolver answers "what is the most recent completed trading day".
type TradingDayResolver interface {
	LatestTradingDay(ctx context.Context, asOf time.Time) (time.Time, error)
}

// Calculator derives daily trading indicators (moving averages, limit-up and
// limit-down flags, consecutive limit-up streaks) from persisted daily klines.
type Calculator struct {
	codes     CodeLister
	bars      DailyBarReader
	store     IndicatorStore
	calendar  TradingDayResolver
	pool      *worker.Pool
	batchSize int
}

func NewCalculator(codes CodeLister, bars DailyBarReader, store IndicatorStore, cal TradingDayResolver, concurrency, batchSize int) *Calculator {
	return &Calculator{
		codes:     codes,
		bars:      bars,
		store:     store,
		calendar:  cal,
		pool:      worker.NewPool(concurrency),
		batchSize: batchSize,
	}
}

// LimitPercent returns the daily price limit for a security based on its
// code prefix: 30 (ChiNext) and 68 (STAR Market) move 20%, 8 (Beijing
// Stock Exchange) moves 30%, everything else moves 10%.
func LimitPercent(stockCode string) decimal.Decimal {
	switch {
	case strings.HasPrefix(stockCode, "30"), strings.HasPrefix(stockCode, "68"):
		return decimal.NewFromFloat(0.20)
	case strings.HasPrefix(stockCode, "8"):
		return decimal.NewFromFloat(0.30)
	default:
		return decimal.NewFromFloat(0.10)
	}
}

// limitThresholds computes the exchange-rounded limit-up and limit-down
// prices for one day from that day's prior close.
func limitThresholds(priorClose, pct decimal.Decimal) (up, down decimal.Decimal) {
	up = priorClose.Mul(one.Add(pct)).Round(2)
	down = priorClose.Mul(one.Sub(pct)).Round(2)
	return up, down
}

// priorClose recovers the previous close for a bar from its own fields, so
// the limit check does not depend on the preceding bar being present.
func priorClose(bar models.KlineBar) decimal.Decimal {
	return bar.Close.Sub(bar.Change)
}

// movingAverage returns the mean of the latest window closes, rounded to two
// decimals, or an invalid NullDecimal when fewer bars exist than the window
// needs.
func movingAverage(bars []models.KlineBar, window int) decimal.NullDecimal {
	if len(bars) < window {
		return decimal.NullDecimal{}
	}
	sum := decimal.Zero
	for _, bar := range bars[len(bars)-window:] {
		sum = sum.Add(bar.Close)
	}
	avg := sum.Div(decimal.NewFromInt(int64(window))).Round(2)
	return decimal.NullDecimal{Decimal: avg, Valid: true}
}

// isLimitUp reports whether the bar closed at or above its limit-up price.
// The rounded threshold can sit below the actual close, so the check is >=.
func isLimitUp(bar models.KlineBar, pct decimal.Decimal) bool {
	up, _ := limitThresholds(priorClose(bar), pct)
	return bar.Close.GreaterThanOrEqual(up)
}

// consecutiveLimitUpDays counts how many bars, walking back from the most
// recent, closed at their own day's limit-up price. Each day's threshold is
// recomputed from that day's prior close, so the streak survives price drift.
func consecutiveLimitUpDays(bars []models.KlineBar, pct decimal.Decimal) int {
	streak := 0
	for i := len(bars) - 1; i >= 0; i-- {
		if !isLimitUp(bars[i], pct) {
			break
		}
		streak++
	}
	return streak
}

// Compute derives the indicator row for the latest bar of one security,
// keyed to asOf, the resolved trading day the run is computing for. bars
// must be in ascending trade date order. Returns nil when no bars exist.
func Compute(stockCode string, asOf time.Time, bars []models.KlineBar) *models.StockIndicator {
	if len(bars) == 0 {
		return nil
	}
	latest := bars[len(bars)-1]
	pct := LimitPercent(stockCode)
	up, down := limitThresholds(priorClose(latest), pct)

	row := &models.StockIndicator{
		StockCode:   stockCode,
		TradeDate:   asOf,
		IsLimitUp:   latest.Close.GreaterThanOrEqual(up),
		IsLimitDown: latest.Close.LessThanOrEqual(down),
		MA5:         movingAverage(bars, 5),
		MA10:        movingAverage(bars, 10),
		MA20:        movingAverage(bars, 20),
		MA30:        movingAverage(bars, 30),
		MA60:        movingAverage(bars, 60),
	}
	if row.IsLimitUp {
		row.ConsecutiveLimitUpDays = consecutiveLimitUpDays(bars, pct)
	}
	return row
}

// CalculateAll computes indicators for every security concurrently, gathers
// the rows, and persists them in one batched upsert at the end. Securities
// without daily bars are counted as empty; individual failures are isolated.
func (c *Calculator) CalculateAll(ctx context.Context) (worker.Summary, error) {
	stockCodes, err := c.codes.AllCodes(ctx)
	if err != nil {
		return worker.Summary{}, fmt.Errorf("failed to load security universe: %w", err)
	}
	if len(stockCodes) == 0 {
		log.Println("No securities in master, nothing to calculate")
		return worker.Summary{}, nil
	}
	tradeDate, err := c.calendar.LatestTradingDay(ctx, time.Now())
	if err != nil {
		// Documented degraded default: assume yesterday and flag it.
		tradeDate = time.Now().AddDate(0, 0, -1)
		log.Printf("WARNING: could not resolve latest trading day (%v), falling back to %s",
			err, tradeDate.Format("2006-01-02"))
	}
	log.Printf("Calculating indicators for %d securities, trade date %s",
		len(stockCodes), tradeDate.Format("2006-01-02"))

	var mu sync.Mutex
	rows := make([]models.StockIndicator, 0, len(stockCodes))

	summary := c.pool.Run(ctx, len(stockCodes), func(ctx context.Context, i int) (worker.Outcome, error) {
		code := stockCodes[i]
		bars, err := c.bars.RecentDailyBars(ctx, code, historyDepth)
		if err != nil {
			return worker.Failed, fmt.Errorf("stock %s: %w", code, err)
		}
		row := Compute(code, tradeDate, bars)
		if row == nil {
			log.Printf("Stock %s: no daily kline data, skipping indicators", code)
			return worker.Empty, nil
		}
		mu.Lock()
		rows = append(rows, *row)
		mu.Unlock()
		return worker.Success, nil
	})

	if len(rows) > 0 {
		result, err := c.store.UpsertIndicators(ctx, rows, c.batchSize)
		if err != nil {
			return summary, fmt.Errorf("failed to persist indicators: %w", err)
		}
		log.Printf("Indicators persisted: inserted=%d, updated=%d", result.Inserted, result.Updated)
	}

	log.Printf("Indicator calculation completed: success=%d, empty=%d, failed=%d, rate=%.1f%%",
		summary.SuccessCount, summary.EmptyCount, summary.FailCount, summary.SuccessRate())

	if summary.Total > 0 && summary.SuccessCount == 0 {
		return summary, ErrAllFailed
	}
	return summary, nil
}
