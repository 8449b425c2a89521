package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Source supplies security master records and kline bars. An empty result is
// a valid non-error outcome meaning no data exists in the requested range.
type Source interface {
	AllCodes(ctx context.Context) ([]SecurityInfo, error)
	GetKline(ctx context.Context, stockCode, startDate, endDate string, granularity Granularity, adjustType int) ([]Bar, error)
}

// CalendarSource supplies the per-year trading calendar.
type CalendarSource interface {
	TradeCalendar(ctx context.Context, year int) ([]CalendarDay, error)
}

// Client talks to the upstream market data HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a market data API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// AllCodes fetches the full security master listing
func (c *Client) AllCodes(ctx context.Context) ([]SecurityInfo, error) {
	var codes []SecurityInfo
	if err := c.get(ctx, "/api/v1/stock/codes", nil, &codes); err != nil {
		return nil, fmt.Errorf("failed to fetch stock codes: %w", err)
	}
	return codes, nil
}

// GetKline fetches kline bars for one stock. endDate may be empty, meaning
// "through the latest available date".
func (c *Client) GetKline(ctx context.Context, stockCode, startDate, endDate string, granularity Granularity, adjustType int) ([]Bar, error) {
	params := url.Values{}
	params.Set("stock_code", stockCode)
	params.Set("start_date", startDate)
	if endDate != "" {
		params.Set("end_date", endDate)
	}
	params.Set("k_type", strconv.Itoa(granularity.KType()))
	params.Set("adjust_type", strconv.Itoa(adjustType))

	var bars []Bar
	if err := c.get(ctx, "/api/v1/stock/kline", params, &bars); err != nil {
		return nil, fmt.Errorf("failed to fetch %s kline for %s: %w", granularity, stockCode, err)
	}
	return bars, nil
}

// TradeCalendar fetches the trading calendar for one year
func (c *Client) TradeCalendar(ctx context.Context, year int) ([]CalendarDay, error) {
	params := url.Values{}
	params.Set("year", strconv.Itoa(year))

	var days []CalendarDay
	if err := c.get(ctx, "/api/v1/stock/calendar", params, &days); err != nil {
		return nil, fmt.Errorf("failed to fetch trade calendar for %d: %w", year, err)
	}
	return days, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("API error (code %d): %s", envelope.Code, envelope.Msg)
	}

	// A missing or null data field means an empty result set, not an error.
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}
