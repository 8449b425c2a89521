package controllers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock-strategy-backend/models"
	"stock-strategy-backend/services/collector"
	"stock-strategy-backend/services/indicators"
	"stock-strategy-backend/services/marketdata"
)

// StockController handles stock-related requests
type StockController struct {
	db *gorm.DB
}

// NewStockController creates a new stock controller
func NewStockController(db *gorm.DB) *StockController {
	return &StockController{db: db}
}

// GetStocks returns the security master listing
// GET /api/v1/stocks
func (sc *StockController) GetStocks(c *gin.Context) {
	exchange := c.Query("exchange")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := (page - 1) * limit

	query := sc.db.Model(&models.StockBasicInfo{})
	if exchange != "" {
		query = query.Where("exchange = ?", exchange)
	}

	var total int64
	query.Count(&total)

	var stocks []models.StockBasicInfo
	if err := query.Order("stock_code").Limit(limit).Offset(offset).Find(&stocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stocks,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetStock returns a single security master record
// GET /api/v1/stocks/:code
func (sc *StockController) GetStock(c *gin.Context) {
	code := c.Param("code")

	var stock models.StockBasicInfo
	if err := sc.db.Where("stock_code = ?", code).First(&stock).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stock})
}

// GetKlines returns persisted kline bars for one security
// GET /api/v1/stocks/:code/klines?granularity=daily&limit=120
func (sc *StockController) GetKlines(c *gin.Context) {
	code := c.Param("code")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "120"))
	if limit < 1 || limit > 1000 {
		limit = 120
	}

	table := ""
	switch marketdata.Granularity(c.DefaultQuery("granularity", "daily")) {
	case marketdata.Daily:
		table = "daily_kline_data"
	case marketdata.Weekly:
		table = "weekly_kline_data"
	case marketdata.Monthly:
		table = "monthly_kline_data"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid granularity, use daily, weekly or monthly"})
		return
	}

	var bars []models.KlineBar
	err := sc.db.Table(table).
		Where("stock_code = ?", code).
		Order("trade_date DESC").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch klines"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bars, "count": len(bars)})
}

// GetIndicators returns computed indicator rows for one security
// GET /api/v1/stocks/:code/indicators?limit=30
func (sc *StockController) GetIndicators(c *gin.Context) {
	code := c.Param("code")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if limit < 1 || limit > 1000 {
		limit = 30
	}

	var rows []models.StockIndicator
	err := sc.db.Where("stock_code = ?", code).
		Order("trade_date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch indicators"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

// GetLimitUpStocks returns securities that closed limit-up on their latest
// indicator row, sorted by streak length
// GET /api/v1/market/limit-up?min_days=1
func (sc *StockController) GetLimitUpStocks(c *gin.Context) {
	minDays, _ := strconv.Atoi(c.DefaultQuery("min_days", "1"))
	if minDays < 1 {
		minDays = 1
	}

	var rows []models.StockIndicator
	err := sc.db.Where("is_limit_up = ? AND consecutive_limit_up_days >= ?", true, minDays).
		Where("trade_date = (SELECT MAX(trade_date) FROM stock_indicators)").
		Order("consecutive_limit_up_days DESC").
		Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch limit-up stocks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

// SyncController handles on-demand pipeline triggers
type SyncController struct {
	stockInfo  *collector.StockInfoCollector
	marketData *collector.MarketDataCollector
	indicators *indicators.Calculator
}

// NewSyncController creates a new sync controller
func NewSyncController(stockInfo *collector.StockInfoCollector, marketData *collector.MarketDataCollector, calc *indicators.Calculator) *SyncController {
	return &SyncController{
		stockInfo:  stockInfo,
		marketData: marketData,
		indicators: calc,
	}
}

// TriggerStockInfoSync runs the security master sync in the background
// POST /api/v1/sync/stock-info
func (sc *SyncController) TriggerStockInfoSync(c *gin.Context) {
	go func() {
		result, err := sc.stockInfo.SyncStockInfo(context.Background())
		if err != nil {
			log.Printf("Security master sync failed: %v", err)
			return
		}
		log.Printf("Security master sync done: inserted=%d, updated=%d", result.Inserted, result.Updated)
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "Security master sync started"})
}

// TriggerMarketDataSync runs kline collection in the background
// POST /api/v1/sync/market-data?start_date=2024-01-01
func (sc *SyncController) TriggerMarketDataSync(c *gin.Context) {
	startDate := c.Query("start_date")
	go func() {
		if _, err := sc.marketData.CollectAll(context.Background(), startDate); err != nil {
			log.Printf("Market data collection failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "Market data collection started"})
}

// TriggerIndicatorCalculation runs indicator calculation in the background
// POST /api/v1/sync/indicators
func (sc *SyncController) TriggerIndicatorCalculation(c *gin.Context) {
	go func() {
		if _, err := sc.indicators.CalculateAll(context.Background()); err != nil {
			log.Printf("Indicator calculation failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "Indicator calculation started"})
}
