package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stock-strategy-backend/services/marketdata"
)

const dateLayout = "2006-01-02"

// ErrNoTradingDay is returned when neither the current nor the prior year's
// calendar contains a resolvable trading day. Callers apply their own
// fallback policy; the resolver does not guess.
var ErrNoTradingDay = errors.New("no trading day found in calendar")

// Resolver answers "what is the most recent completed trading day" from the
// yearly trading calendar feed.
type Resolver struct {
	source marketdata.CalendarSource
}

// NewResolver creates a trading calendar resolver
func NewResolver(source marketdata.CalendarSource) *Resolver {
	return &Resolver{source: source}
}

// LatestTradingDay returns the most recent trading day strictly before asOf.
// If the current year holds no such day (e.g. early January before the new
// calendar is published), the prior year's last trading day is used.
func (r *Resolver) LatestTradingDay(ctx context.Context, asOf time.Time) (time.Time, error) {
	year := asOf.Year()
	days, err := r.source.TradeCalendar(ctx, year)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch calendar for %d: %w", year, err)
	}

	asOfDate := asOf.Format(dateLayout)
	if latest, ok := maxTradingDay(days, asOfDate); ok {
		return parseDay(latest)
	}

	log.Printf("No trading day before %s in %d calendar, trying prior year", asOfDate, year)
	prevDays, err := r.source.TradeCalendar(ctx, year-1)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch calendar for %d: %w", year-1, err)
	}

	// The prior year is entirely in the past, so no asOf cutoff applies.
	if latest, ok := maxTradingDay(prevDays, ""); ok {
		return parseDay(latest)
	}

	return time.Time{}, ErrNoTradingDay
}

// maxTradingDay returns the latest trading date, optionally bounded to dates
// strictly before the cutoff. ISO dates compare correctly as strings.
func maxTradingDay(days []marketdata.CalendarDay, before string) (string, bool) {
	latest := ""
	for _, d := range days {
		if d.TradeStatus != 1 {
			continue
		}
		if before != "" && d.TradeDate >= before {
			continue
		}
		if d.TradeDate > latest {
			latest = d.TradeDate
		}
	}
	return latest, latest != ""
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q: %w", s, err)
	}
	return t, nil
}
