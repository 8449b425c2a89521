package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockBasicInfo is the security master record. StockCode is the stable join
// key used by every time-series table; the other fields are refreshed in
// place by the periodic full sync.
type StockBasicInfo struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	StockCode string     `gorm:"uniqueIndex;size:20;not null" json:"stock_code"`
	ShortName string     `gorm:"size:100;not null" json:"short_name"`
	Exchange  string     `gorm:"size:10;not null" json:"exchange"`
	ListDate  *time.Time `gorm:"type:date" json:"list_date"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (StockBasicInfo) TableName() string { return "stock_basic_info" }

// KlineBar holds one OHLCV record. The same shape is persisted at three
// granularities, one table each.
type KlineBar struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	StockCode     string          `gorm:"index;size:20;not null" json:"stock_code"`
	TradeDate     time.Time       `gorm:"index;type:date;not null" json:"trade_date"`
	Open          decimal.Decimal `gorm:"type:decimal(10,4)" json:"open"`
	Close         decimal.Decimal `gorm:"type:decimal(10,4)" json:"close"`
	High          decimal.Decimal `gorm:"type:decimal(10,4)" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(10,4)" json:"low"`
	Volume        int64           `json:"volume"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,0)" json:"amount"`
	ChangePct     decimal.Decimal `gorm:"type:decimal(10,2)" json:"change_pct"`
	Change        decimal.Decimal `gorm:"type:decimal(10,4)" json:"change"`
	TurnoverRatio decimal.Decimal `gorm:"type:decimal(10,2)" json:"turnover_ratio"`
	PreClose      decimal.Decimal `gorm:"type:decimal(10,4)" json:"pre_close"`
	CreatedAt     time.Time       `json:"created_at"`
}

type DailyKline struct {
	KlineBar `gorm:"embedded"`
}

func (DailyKline) TableName() string { return "daily_kline_data" }

type WeeklyKline struct {
	KlineBar `gorm:"embedded"`
}

func (WeeklyKline) TableName() string { return "weekly_kline_data" }

type MonthlyKline struct {
	KlineBar `gorm:"embedded"`
}

func (MonthlyKline) TableName() string { return "monthly_kline_data" }

// StockIndicator stores derived daily trading indicators, one row per
// (stock_code, trade_date), recomputed and upserted once per trading day.
// Moving averages are NULL when fewer bars exist than the window needs.
type StockIndicator struct {
	ID                     uint                `gorm:"primaryKey" json:"id"`
	StockCode              string              `gorm:"index;size:20;not null" json:"stock_code"`
	TradeDate              time.Time           `gorm:"index;type:date;not null" json:"trade_date"`
	IsLimitUp              bool                `json:"is_limit_up"`
	IsLimitDown            bool                `json:"is_limit_down"`
	ConsecutiveLimitUpDays int                 `gorm:"default:0" json:"consecutive_limit_up_days"`
	MA5                    decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"ma5"`
	MA10                   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"ma10"`
	MA20                   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"ma20"`
	MA30                   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"ma30"`
	MA60                   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"ma60"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func (StockIndicator) TableName() string { return "stock_indicators" }

// MigrateModels runs database migrations for all persisted tables
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&StockBasicInfo{},
		&DailyKline{},
		&WeeklyKline{},
		&MonthlyKline{},
		&StockIndicator{},
	)
}
