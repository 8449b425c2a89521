package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock-strategy-backend/models"

	"gorm.io/gorm"
)

// StockRepository persists the security master table.
type StockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a security master repository
func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// AllCodes returns every stock code in the security master
func (r *StockRepository) AllCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&models.StockBasicInfo{}).
		Order("stock_code").
		Pluck("stock_code", &codes).Error; err != nil {
		return nil, fmt.Errorf("failed to load stock codes: %w", err)
	}
	return codes, nil
}

// UpsertBasicInfo writes security master rows in batches. Each batch checks
// which codes already exist, updates those in place and inserts the rest,
// all inside one transaction per batch.
func (r *StockRepository) UpsertBasicInfo(ctx context.Context, rows []models.StockBasicInfo, batchSize int) (UpsertResult, error) {
	var result UpsertResult
	start := time.Now()

	for _, rng := range batchRanges(len(rows), batchSize) {
		batch := rows[rng[0]:rng[1]]

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			codes := make([]string, len(batch))
			for i, row := range batch {
				codes[i] = row.StockCode
			}

			var existingCodes []string
			if err := tx.Model(&models.StockBasicInfo{}).
				Where("stock_code IN ?", codes).
				Pluck("stock_code", &existingCodes).Error; err != nil {
				return fmt.Errorf("existence check failed: %w", err)
			}
			existing := make(map[string]struct{}, len(existingCodes))
			for _, code := range existingCodes {
				existing[code] = struct{}{}
			}

			inserts, updates := partitionByKey(len(batch), func(i int) string {
				return batch[i].StockCode
			}, existing)

			now := time.Now()
			for _, i := range updates {
				row := batch[i]
				if err := tx.Model(&models.StockBasicInfo{}).
					Where("stock_code = ?", row.StockCode).
					Updates(map[string]interface{}{
						"short_name": row.ShortName,
						"exchange":   row.Exchange,
						"list_date":  row.ListDate,
						"updated_at": now,
					}).Error; err != nil {
					return fmt.Errorf("failed to update stock %s: %w", row.StockCode, err)
				}
			}

			if len(inserts) > 0 {
				insertRows := make([]models.StockBasicInfo, 0, len(inserts))
				for _, i := range inserts {
					insertRows = append(insertRows, batch[i])
				}
				if err := tx.Create(&insertRows).Error; err != nil {
					return fmt.Errorf("failed to insert stocks: %w", err)
				}
			}

			result.Updated += len(updates)
			result.Inserted += len(inserts)
			return nil
		})
		if err != nil {
			// Prior batches are already committed and stay durable.
			return result, err
		}
	}

	log.Printf("Stock basic info upsert completed: inserted=%d, updated=%d, took=%s",
		result.Inserted, result.Updated, time.Since(start).Round(time.Millisecond))
	return result, nil
}
