package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock-strategy-backend/config"
	"stock-strategy-backend/models"
	"stock-strategy-backend/repository"
	"stock-strategy-backend/routes"
	"stock-strategy-backend/scheduler"
	"stock-strategy-backend/services/calendar"
	"stock-strategy-backend/services/collector"
	"stock-strategy-backend/services/indicators"
	"stock-strategy-backend/services/marketdata"
)

type app struct {
	cfg        *config.Config
	db         *gorm.DB
	stockInfo  *collector.StockInfoCollector
	marketData *collector.MarketDataCollector
	indicators *indicators.Calculator
}

func main() {
	initDB := flag.Bool("init-db", false, "create or migrate database tables and exit")
	updateStockInfo := flag.Bool("update-stock-info", false, "sync the security master and exit")
	updateMarketData := flag.Bool("update-market-data", false, "collect kline data and exit")
	startDate := flag.String("start-date", "", "override the incremental start date (YYYY-MM-DD) for -update-market-data")
	calculateIndicators := flag.Bool("calculate-indicators", false, "calculate indicators and exit")
	devMode := flag.Bool("dev-mode", false, "run the full pipeline once: stock info, market data, indicators")
	runScheduler := flag.Bool("run-scheduler", false, "run the job scheduler in the foreground")
	serve := flag.Bool("serve", false, "run the HTTP API server")
	flag.Parse()

	log.Println("==============================================")
	log.Println("  Stock Strategy Backend - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	a := buildApp(cfg, db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *initDB:
		log.Println("Running database migrations...")
		if err := models.MigrateModels(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database migrations completed successfully")

	case *updateStockInfo:
		result, err := a.stockInfo.SyncStockInfo(ctx)
		if err != nil {
			log.Fatalf("Security master sync failed: %v", err)
		}
		log.Printf("Security master sync done: inserted=%d, updated=%d", result.Inserted, result.Updated)

	case *updateMarketData:
		if _, err := a.marketData.CollectAll(ctx, *startDate); err != nil {
			log.Fatalf("Market data collection failed: %v", err)
		}

	case *calculateIndicators:
		if _, err := a.indicators.CalculateAll(ctx); err != nil {
			log.Fatalf("Indicator calculation failed: %v", err)
		}

	case *devMode:
		runDevMode(ctx, a)

	case *runScheduler:
		jobScheduler := scheduler.NewScheduler(a.stockInfo, a.marketData, a.indicators)
		jobScheduler.Start()
		<-ctx.Done()
		jobScheduler.Stop()

	case *serve:
		runServer(ctx, a)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func buildApp(cfg *config.Config, db *gorm.DB) *app {
	client := marketdata.NewClient(cfg.MarketAPIBaseURL)
	stockRepo := repository.NewStockRepository(db)

	epochStart, err := time.Parse("2006-01-02", cfg.KlineStartDate)
	if err != nil {
		log.Fatalf("Invalid KLINE_START_DATE %q: %v", cfg.KlineStartDate, err)
	}
	klineRepo := repository.NewKlineRepository(db, epochStart)
	indicatorRepo := repository.NewIndicatorRepository(db)
	calendarResolver := calendar.NewResolver(client)

	return &app{
		cfg:       cfg,
		db:        db,
		stockInfo: collector.NewStockInfoCollector(stockRepo, client, cfg.InfoBatchSize),
		marketData: collector.NewMarketDataCollector(
			stockRepo, klineRepo, client, calendarResolver,
			cfg.FetchConcurrency, cfg.BatchSize, cfg.AdjustType,
		),
		indicators: indicators.NewCalculator(
			stockRepo, klineRepo, indicatorRepo, calendarResolver,
			cfg.IndicatorConcurrency, cfg.BatchSize,
		),
	}
}

// runDevMode runs every pipeline stage once, in order, and keeps going past
// per-stage failures so a development run always exercises the whole chain.
func runDevMode(ctx context.Context, a *app) {
	log.Println("Dev mode: running full pipeline once")

	if err := models.MigrateModels(a.db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if _, err := a.stockInfo.SyncStockInfo(ctx); err != nil {
		log.Printf("Security master sync failed: %v", err)
	}
	if _, err := a.marketData.CollectAll(ctx, ""); err != nil {
		log.Printf("Market data collection failed: %v", err)
	}
	if _, err := a.indicators.CalculateAll(ctx); err != nil {
		log.Printf("Indicator calculation failed: %v", err)
	}

	log.Println("Dev mode: pipeline finished")
}

func runServer(ctx context.Context, a *app) {
	if a.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	routes.SetupRoutes(router, a.db, a.stockInfo, a.marketData, a.indicators)

	server := &http.Server{
		Addr:              "0.0.0.0:" + a.cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobScheduler := scheduler.NewScheduler(a.stockInfo, a.marketData, a.indicators)
	jobScheduler.Start()

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", a.cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	jobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
		log.Println("Database connection closed")
	}

	log.Println("Server shutdown completed")
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}
