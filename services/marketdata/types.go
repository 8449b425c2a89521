package marketdata

import "github.com/shopspring/decimal"

// Granularity is the bar aggregation period.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Granularities returns all granularities in the fixed order the collector
// fetches and persists them.
func Granularities() []Granularity {
	return []Granularity{Daily, Weekly, Monthly}
}

// KType returns the upstream API kline type selector.
func (g Granularity) KType() int {
	switch g {
	case Weekly:
		return 2
	case Monthly:
		return 3
	default:
		return 1
	}
}

// Bar is one OHLCV record as returned by the market data API.
type Bar struct {
	StockCode     string          `json:"stock_code"`
	TradeDate     string          `json:"trade_date"`
	Open          decimal.Decimal `json:"open"`
	Close         decimal.Decimal `json:"close"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        int64           `json:"volume"`
	Amount        decimal.Decimal `json:"amount"`
	ChangePct     decimal.Decimal `json:"change_pct"`
	Change        decimal.Decimal `json:"change"`
	TurnoverRatio decimal.Decimal `json:"turnover_ratio"`
	PreClose      decimal.Decimal `json:"pre_close"`
}

// SecurityInfo is one security master record from the code listing endpoint.
type SecurityInfo struct {
	StockCode string `json:"stock_code"`
	ShortName string `json:"short_name"`
	Exchange  string `json:"exchange"`
	ListDate  string `json:"list_date"`
}

// CalendarDay is one row of the yearly trading calendar.
type CalendarDay struct {
	TradeDate   string `json:"trade_date"`
	TradeStatus int    `json:"trade_status"` // 1 = trading day
}
