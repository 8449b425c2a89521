package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"stock-strategy-backend/services/collector"
	"stock-strategy-backend/services/indicators"
)

// Scheduler manages the recurring collection and calculation jobs.
type Scheduler struct {
	cron       *gocron.Scheduler
	stockInfo  *collector.StockInfoCollector
	marketData *collector.MarketDataCollector
	indicators *indicators.Calculator
}

// NewScheduler creates a new scheduler instance
func NewScheduler(stockInfo *collector.StockInfoCollector, marketData *collector.MarketDataCollector, calc *indicators.Calculator) *Scheduler {
	return &Scheduler{
		cron:       gocron.NewScheduler(time.Local),
		stockInfo:  stockInfo,
		marketData: marketData,
		indicators: calc,
	}
}

// Start registers all jobs and runs the scheduler in the background. Job
// errors are logged and never stop the loop.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Refresh the security master on the first Monday of each month at 09:00.
	s.cron.Every(1).Week().Monday().At("09:00").Do(func() {
		if time.Now().Day() > 7 {
			return
		}
		s.syncStockInfo()
	})

	// Collect klines daily at 17:00, after market close.
	s.cron.Every(1).Day().At("17:00").Do(func() {
		s.collectMarketData()
	})

	// Calculate indicators daily at 18:00, once collection has had time to
	// finish.
	s.cron.Every(1).Day().At("18:00").Do(func() {
		s.calculateIndicators()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) syncStockInfo() {
	log.Println("Scheduled job: security master sync")
	result, err := s.stockInfo.SyncStockInfo(context.Background())
	if err != nil {
		log.Printf("Security master sync failed: %v", err)
		return
	}
	log.Printf("Security master sync done: inserted=%d, updated=%d", result.Inserted, result.Updated)
}

func (s *Scheduler) collectMarketData() {
	log.Println("Scheduled job: market data collection")
	if _, err := s.marketData.CollectAll(context.Background(), ""); err != nil {
		log.Printf("Market data collection failed: %v", err)
	}
}

func (s *Scheduler) calculateIndicators() {
	log.Println("Scheduled job: indicator calculation")
	if _, err := s.indicators.CalculateAll(context.Background()); err != nil {
		log.Printf("Indicator calculation failed: %v", err)
	}
}
