package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stock-strategy-backend/models"
	"stock-strategy-backend/services/marketdata"

	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// KlineRepository persists kline bars at the three granularities and answers
// the incremental-window and indicator-history queries.
type KlineRepository struct {
	db         *gorm.DB
	epochStart time.Time
}

// NewKlineRepository creates a kline repository. epochStart is the fetch
// start used for securities with no persisted history yet.
func NewKlineRepository(db *gorm.DB, epochStart time.Time) *KlineRepository {
	return &KlineRepository{db: db, epochStart: epochStart}
}

func tableFor(g marketdata.Granularity) string {
	switch g {
	case marketdata.Weekly:
		return models.WeeklyKline{}.TableName()
	case marketdata.Monthly:
		return models.MonthlyKline{}.TableName()
	default:
		return models.DailyKline{}.TableName()
	}
}

// LatestTradeDate returns the maximum persisted trade date for one
// (stock, granularity), or ok=false when no history exists.
func (r *KlineRepository) LatestTradeDate(ctx context.Context, g marketdata.Granularity, stockCode string) (time.Time, bool, error) {
	var latest sql.NullTime
	row := r.db.WithContext(ctx).
		Table(tableFor(g)).
		Where("stock_code = ?", stockCode).
		Select("MAX(trade_date)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest %s trade date for %s: %w", g, stockCode, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

// NextStartDate resolves the incremental fetch window start: the day after
// the latest persisted date, or the epoch start when no history exists.
// Re-running the pipeline never re-requests an already persisted range.
func (r *KlineRepository) NextStartDate(ctx context.Context, g marketdata.Granularity, stockCode string) (time.Time, error) {
	latest, ok, err := r.LatestTradeDate(ctx, g, stockCode)
	if err != nil {
		return time.Time{}, err
	}
	return nextStart(latest, ok, r.epochStart), nil
}

func nextStart(latest time.Time, ok bool, epoch time.Time) time.Time {
	if !ok {
		return epoch
	}
	return latest.AddDate(0, 0, 1)
}

// InsertBars appends fetched bars in batches, one transaction per batch.
// Kline tables are append-only; the window resolver guarantees no date
// overlap, so no existence check is needed.
func (r *KlineRepository) InsertBars(ctx context.Context, g marketdata.Granularity, stockCode string, bars []marketdata.Bar, batchSize int) (int, error) {
	rows := make([]models.KlineBar, 0, len(bars))
	for _, bar := range bars {
		row, err := barToRow(stockCode, bar)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	inserted := 0
	table := tableFor(g)
	for _, rng := range batchRanges(len(rows), batchSize) {
		batch := rows[rng[0]:rng[1]]
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Table(table).Create(&batch).Error
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to insert %s bars for %s: %w", g, stockCode, err)
		}
		inserted += len(batch)
	}
	return inserted, nil
}

// RecentDailyBars returns the most recent n daily bars for one stock in
// ascending date order, the shape the indicator engine consumes.
func (r *KlineRepository) RecentDailyBars(ctx context.Context, stockCode string, n int) ([]models.KlineBar, error) {
	var rows []models.KlineBar
	if err := r.db.WithContext(ctx).
		Table(tableFor(marketdata.Daily)).
		Where("stock_code = ?", stockCode).
		Order("trade_date DESC").
		Limit(n).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load daily history for %s: %w", stockCode, err)
	}

	// Reverse into ascending order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func barToRow(stockCode string, bar marketdata.Bar) (models.KlineBar, error) {
	tradeDate, err := time.Parse(dateLayout, bar.TradeDate)
	if err != nil {
		return models.KlineBar{}, fmt.Errorf("invalid trade date %q for %s: %w", bar.TradeDate, stockCode, err)
	}
	return models.KlineBar{
		StockCode:     stockCode,
		TradeDate:     tradeDate,
		Open:          bar.Open,
		Close:         bar.Close,
		High:          bar.High,
		Low:           bar.Low,
		Volume:        bar.Volume,
		Amount:        bar.Amount,
		ChangePct:     bar.ChangePct,
		Change:        bar.Change,
		TurnoverRatio: bar.TurnoverRatio,
		PreClose:      bar.PreClose,
	}, nil
}
