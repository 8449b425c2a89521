package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock-strategy-backend/models"

	"gorm.io/gorm"
)

// IndicatorRepository persists derived indicator rows keyed by
// (stock_code, trade_date); recomputation overwrites prior values.
type IndicatorRepository struct {
	db *gorm.DB
}

// NewIndicatorRepository creates an indicator repository
func NewIndicatorRepository(db *gorm.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

func indicatorKey(stockCode string, tradeDate time.Time) string {
	return stockCode + "|" + tradeDate.Format(dateLayout)
}

// UpsertIndicators writes indicator rows in batches with the same
// existence-check-then-split pattern as the security master: each batch
// queries which (stock_code, trade_date) keys exist, updates those rows with
// a fresh updated_at marker and inserts the rest, one transaction per batch.
func (r *IndicatorRepository) UpsertIndicators(ctx context.Context, rows []models.StockIndicator, batchSize int) (UpsertResult, error) {
	var result UpsertResult

	for _, rng := range batchRanges(len(rows), batchSize) {
		batch := rows[rng[0]:rng[1]]

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			pairs := make([][]interface{}, len(batch))
			for i, row := range batch {
				pairs[i] = []interface{}{row.StockCode, row.TradeDate.Format(dateLayout)}
			}

			var existingRows []models.StockIndicator
			if err := tx.Select("stock_code", "trade_date").
				Where("(stock_code, trade_date) IN ?", pairs).
				Find(&existingRows).Error; err != nil {
				return fmt.Errorf("existence check failed: %w", err)
			}
			existing := make(map[string]struct{}, len(existingRows))
			for _, row := range existingRows {
				existing[indicatorKey(row.StockCode, row.TradeDate)] = struct{}{}
			}

			inserts, updates := partitionByKey(len(batch), func(i int) string {
				return indicatorKey(batch[i].StockCode, batch[i].TradeDate)
			}, existing)

			now := time.Now()
			for _, i := range updates {
				row := batch[i]
				if err := tx.Model(&models.StockIndicator{}).
					Where("stock_code = ? AND trade_date = ?", row.StockCode, row.TradeDate).
					Updates(map[string]interface{}{
						"is_limit_up":               row.IsLimitUp,
						"is_limit_down":             row.IsLimitDown,
						"consecutive_limit_up_days": row.ConsecutiveLimitUpDays,
						"ma5":                       row.MA5,
						"ma10":                      row.MA10,
						"ma20":                      row.MA20,
						"ma30":                      row.MA30,
						"ma60":                      row.MA60,
						"updated_at":                now,
					}).Error; err != nil {
					return fmt.Errorf("failed to update indicators for %s: %w", row.StockCode, err)
				}
			}

			if len(inserts) > 0 {
				insertRows := make([]models.StockIndicator, 0, len(inserts))
				for _, i := range inserts {
					insertRows = append(insertRows, batch[i])
				}
				if err := tx.Create(&insertRows).Error; err != nil {
					return fmt.Errorf("failed to insert indicators: %w", err)
				}
			}

			result.Updated += len(updates)
			result.Inserted += len(inserts)
			return nil
		})
		if err != nil {
			return result, err
		}
	}

	log.Printf("Indicator upsert completed: inserted=%d, updated=%d", result.Inserted, result.Updated)
	return result, nil
}
