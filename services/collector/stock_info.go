package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"stock-strategy-backend/models"
	"stock-strategy-backend/repository"
	"stock-strategy-backend/services/marketdata"
)

// MasterStore is the subset of the security master repository the collector
// needs.
type MasterStore interface {
	UpsertBasicInfo(ctx context.Context, rows []models.StockBasicInfo, batchSize int) (repository.UpsertResult, error)
}

// StockInfoCollector performs the periodic full sync of the security master.
type StockInfoCollector struct {
	store     MasterStore
	source    marketdata.Source
	batchSize int
}

// NewStockInfoCollector creates a security master collector
func NewStockInfoCollector(store MasterStore, source marketdata.Source, batchSize int) *StockInfoCollector {
	return &StockInfoCollector{
		store:     store,
		source:    source,
		batchSize: batchSize,
	}
}

// SyncStockInfo fetches the full code listing and upserts it into the
// security master. Rows without a list date are dropped before persisting.
func (c *StockInfoCollector) SyncStockInfo(ctx context.Context) (repository.UpsertResult, error) {
	log.Println("Fetching security master listing...")

	infos, err := c.source.AllCodes(ctx)
	if err != nil {
		return repository.UpsertResult{}, fmt.Errorf("failed to fetch security master: %w", err)
	}
	log.Printf("Fetched %d security master records", len(infos))

	rows := make([]models.StockBasicInfo, 0, len(infos))
	for _, info := range infos {
		if info.ListDate == "" {
			continue
		}
		listDate, err := time.Parse(dateLayout, info.ListDate)
		if err != nil {
			log.Printf("Skipping stock %s: invalid list date %q", info.StockCode, info.ListDate)
			continue
		}
		rows = append(rows, models.StockBasicInfo{
			StockCode: info.StockCode,
			ShortName: info.ShortName,
			Exchange:  info.Exchange,
			ListDate:  &listDate,
		})
	}
	log.Printf("Keeping %d records after dropping rows without list date", len(rows))

	if len(rows) == 0 {
		log.Println("No security master records to persist")
		return repository.UpsertResult{}, nil
	}

	result, err := c.store.UpsertBasicInfo(ctx, rows, c.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to persist security master: %w", err)
	}
	return result, nil
}
