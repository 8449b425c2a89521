package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock-strategy-backend/controllers"
	"stock-strategy-backend/services/collector"
	"stock-strategy-backend/services/indicators"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, stockInfo *collector.StockInfoCollector, marketData *collector.MarketDataCollector, calc *indicators.Calculator) {
	stockController := controllers.NewStockController(db)
	syncController := controllers.NewSyncController(stockInfo, marketData, calc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocks)
			stocks.GET("/:code", stockController.GetStock)
			stocks.GET("/:code/klines", stockController.GetKlines)
			stocks.GET("/:code/indicators", stockController.GetIndicators)
		}

		market := api.Group("/market")
		{
			market.GET("/limit-up", stockController.GetLimitUpStocks)
		}

		sync := api.Group("/sync")
		{
			sync.POST("/stock-info", syncController.TriggerStockInfoSync)
			sync.POST("/market-data", syncController.TriggerMarketDataSync)
			sync.POST("/indicators", syncController.TriggerIndicatorCalculation)
		}
	}
}
