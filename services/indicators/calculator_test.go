package indicators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-strategy-backend/models"
	"stock-strategy-backend/repository"
	"stock-strategy-backend/services/worker"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var asOf = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

// bar builds a daily bar where Close-Change recovers the prior close.
func bar(day int, close, change string) models.KlineBar {
	return models.KlineBar{
		TradeDate: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Close:     d(close),
		Change:    d(change),
	}
}

func TestLimitPercent(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"300750", "0.2"}, // ChiNext
		{"688001", "0.2"}, // STAR Market
		{"830001", "0.3"}, // Beijing
		{"870001", "0.3"}, // Beijing
		{"000001", "0.1"}, // main board
		{"600519", "0.1"}, // main board
	}
	for _, tt := range tests {
		if got := LimitPercent(tt.code); !got.Equal(d(tt.want)) {
			t.Errorf("LimitPercent(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestComputeLimitFlags(t *testing.T) {
	// Prior close 10.00 at 10%: limit-up 11.00, limit-down 9.00. The close
	// can land past the rounded threshold, so the comparison is >= / <=.
	tests := []struct {
		name          string
		close, change string
		wantUp        bool
		wantDown      bool
	}{
		{"exact limit up", "11.00", "1.00", true, false},
		{"above limit up", "11.05", "1.05", true, false},
		{"one cent short", "10.99", "0.99", false, false},
		{"exact limit down", "9.00", "-1.00", false, true},
		{"below limit down", "8.95", "-1.05", false, true},
		{"one cent above limit down", "9.01", "-0.99", false, false},
		{"flat", "10.00", "0.00", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Compute("000001", asOf, []models.KlineBar{bar(1, tt.close, tt.change)})
			if row == nil {
				t.Fatal("Compute returned nil for non-empty bars")
			}
			if row.IsLimitUp != tt.wantUp {
				t.Errorf("IsLimitUp = %v, want %v", row.IsLimitUp, tt.wantUp)
			}
			if row.IsLimitDown != tt.wantDown {
				t.Errorf("IsLimitDown = %v, want %v", row.IsLimitDown, tt.wantDown)
			}
		})
	}
}

func TestComputeLimitFlagsByBoard(t *testing.T) {
	// Same prior close 10.00, but the threshold depends on the code prefix.
	tests := []struct {
		code   string
		close  string
		change string
		wantUp bool
	}{
		{"300750", "12.00", "2.00", true},  // 20% board at exactly +20%
		{"300750", "11.00", "1.00", false}, // +10% is not a limit on a 20% board
		{"830001", "13.00", "3.00", true},  // 30% board at exactly +30%
		{"000001", "11.00", "1.00", true},  // 10% board at exactly +10%
	}
	for _, tt := range tests {
		row := Compute(tt.code, asOf, []models.KlineBar{bar(1, tt.close, tt.change)})
		if row.IsLimitUp != tt.wantUp {
			t.Errorf("Compute(%s, close=%s): IsLimitUp = %v, want %v", tt.code, tt.close, row.IsLimitUp, tt.wantUp)
		}
	}
}

func TestComputeStampsAsOfDate(t *testing.T) {
	// The row is keyed to the resolved trading day, not the latest bar's own
	// date, so a run over stale bars still supersedes today's row.
	bars := []models.KlineBar{bar(1, "10.00", "0.00")}
	row := Compute("000001", asOf, bars)
	if !row.TradeDate.Equal(asOf) {
		t.Errorf("TradeDate = %s, want %s", row.TradeDate, asOf)
	}
}

func TestComputeMovingAverageAbsence(t *testing.T) {
	bars := []models.KlineBar{
		bar(1, "10.00", "0.00"),
		bar(2, "10.10", "0.10"),
		bar(3, "10.20", "0.10"),
		bar(4, "10.30", "0.10"),
	}

	row := Compute("000001", asOf, bars)
	if row.MA5.Valid {
		t.Errorf("MA5 with 4 bars should be absent, got %s", row.MA5.Decimal)
	}

	bars = append(bars, bar(5, "10.40", "0.10"))
	row = Compute("000001", asOf, bars)
	if !row.MA5.Valid {
		t.Fatal("MA5 with 5 bars should be present")
	}
	// (10.00+10.10+10.20+10.30+10.40)/5 = 10.20
	if want := d("10.20"); !row.MA5.Decimal.Equal(want) {
		t.Errorf("MA5 = %s, want %s", row.MA5.Decimal, want)
	}
	if row.MA10.Valid {
		t.Errorf("MA10 with 5 bars should be absent, got %s", row.MA10.Decimal)
	}
}

func TestComputeMovingAverageRounding(t *testing.T) {
	bars := []models.KlineBar{
		bar(1, "10.01", "0.00"),
		bar(2, "10.01", "0.00"),
		bar(3, "10.02", "0.00"),
		bar(4, "10.02", "0.00"),
		bar(5, "10.02", "0.00"),
	}
	row := Compute("000001", asOf, bars)
	// 50.08/5 = 10.016, rounds half up to 10.02.
	if want := d("10.02"); !row.MA5.Decimal.Equal(want) {
		t.Errorf("MA5 = %s, want %s", row.MA5.Decimal, want)
	}
}

func TestConsecutiveLimitUpDays(t *testing.T) {
	// Three limit-up days in a row on a 10% board; each day's threshold is
	// recomputed from that day's own prior close.
	// 10.00 -> 11.00 -> 12.10 -> 13.31
	streak := []models.KlineBar{
		bar(1, "10.00", "0.20"), // not a limit day
		bar(2, "11.00", "1.00"),
		bar(3, "12.10", "1.10"),
		bar(4, "13.31", "1.21"),
	}

	row := Compute("000001", asOf, streak)
	if !row.IsLimitUp {
		t.Fatal("latest bar should be limit-up")
	}
	if row.ConsecutiveLimitUpDays != 3 {
		t.Errorf("ConsecutiveLimitUpDays = %d, want 3", row.ConsecutiveLimitUpDays)
	}
}

func TestConsecutiveLimitUpDaysAboveThreshold(t *testing.T) {
	// A close past the rounded threshold still extends the streak.
	streak := []models.KlineBar{
		bar(1, "11.02", "1.02"), // prior 10.00, threshold 11.00
		bar(2, "12.13", "1.11"), // prior 11.02, threshold 12.12
	}
	row := Compute("000001", asOf, streak)
	if row.ConsecutiveLimitUpDays != 2 {
		t.Errorf("ConsecutiveLimitUpDays = %d, want 2", row.ConsecutiveLimitUpDays)
	}
}

func TestConsecutiveLimitUpDaysZeroWhenNotLimitUp(t *testing.T) {
	bars := []models.KlineBar{
		bar(1, "11.00", "1.00"), // limit-up, but not the latest day
		bar(2, "11.50", "0.50"),
	}
	row := Compute("000001", asOf, bars)
	if row.IsLimitUp {
		t.Fatal("latest bar should not be limit-up")
	}
	if row.ConsecutiveLimitUpDays != 0 {
		t.Errorf("ConsecutiveLimitUpDays = %d, want 0", row.ConsecutiveLimitUpDays)
	}
}

func TestComputeEmptyBars(t *testing.T) {
	if row := Compute("000001", asOf, nil); row != nil {
		t.Errorf("Compute with no bars = %+v, want nil", row)
	}
}

type stubCodeLister struct {
	codes []string
	err   error
}

func (s *stubCodeLister) AllCodes(_ context.Context) ([]string, error) { return s.codes, s.err }

type stubBarReader struct {
	bars map[string][]models.KlineBar
	errs map[string]error
}

func (s *stubBarReader) RecentDailyBars(_ context.Context, code string, _ int) ([]models.KlineBar, error) {
	if err, ok := s.errs[code]; ok {
		return nil, err
	}
	return s.bars[code], nil
}

type stubIndicatorStore struct {
	rows []models.StockIndicator
	err  error
}

func (s *stubIndicatorStore) UpsertIndicators(_ context.Context, rows []models.StockIndicator, _ int) (repository.UpsertResult, error) {
	s.rows = append(s.rows, rows...)
	return repository.UpsertResult{Inserted: len(rows)}, s.err
}

type stubCalendar struct {
	day time.Time
	err error
}

func (s *stubCalendar) LatestTradingDay(_ context.Context, _ time.Time) (time.Time, error) {
	return s.day, s.err
}

func newTestCalculator(lister *stubCodeLister, reader *stubBarReader, store *stubIndicatorStore) *Calculator {
	return NewCalculator(lister, reader, store, &stubCalendar{day: asOf}, 4, 100)
}

func TestCalculateAllGathersAndPersists(t *testing.T) {
	lister := &stubCodeLister{codes: []string{"000001", "000002", "000003"}}
	reader := &stubBarReader{
		bars: map[string][]models.KlineBar{
			"000001": {bar(1, "11.00", "1.00")},
			"000002": {bar(1, "9.50", "-0.50")},
			// 000003 has no bars: empty, skipped.
		},
	}
	store := &stubIndicatorStore{}

	calc := newTestCalculator(lister, reader, store)
	summary, err := calc.CalculateAll(context.Background())
	if err != nil {
		t.Fatalf("CalculateAll returned error: %v", err)
	}

	want := worker.Summary{Total: 3, SuccessCount: 2, EmptyCount: 1, FailCount: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
	if len(store.rows) != 2 {
		t.Fatalf("persisted %d rows, want 2", len(store.rows))
	}
}

func TestCalculateAllStampsResolvedTradeDate(t *testing.T) {
	// The latest bar is days behind the calendar; rows are still keyed to
	// the resolved trading day.
	lister := &stubCodeLister{codes: []string{"000001"}}
	reader := &stubBarReader{bars: map[string][]models.KlineBar{
		"000001": {bar(1, "10.00", "0.00")},
	}}
	store := &stubIndicatorStore{}

	calc := newTestCalculator(lister, reader, store)
	if _, err := calc.CalculateAll(context.Background()); err != nil {
		t.Fatalf("CalculateAll returned error: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("persisted %d rows, want 1", len(store.rows))
	}
	if got := store.rows[0].TradeDate; !got.Equal(asOf) {
		t.Errorf("TradeDate = %s, want resolved trading day %s", got, asOf)
	}
}

func TestCalculateAllCalendarFallback(t *testing.T) {
	// A calendar failure degrades to yesterday instead of aborting the run.
	lister := &stubCodeLister{codes: []string{"000001"}}
	reader := &stubBarReader{bars: map[string][]models.KlineBar{
		"000001": {bar(1, "10.00", "0.00")},
	}}
	store := &stubIndicatorStore{}

	calc := NewCalculator(lister, reader, store, &stubCalendar{err: errors.New("calendar feed down")}, 4, 100)
	summary, err := calc.CalculateAll(context.Background())
	if err != nil {
		t.Fatalf("CalculateAll returned error: %v", err)
	}
	if summary.SuccessCount != 1 || len(store.rows) != 1 {
		t.Fatalf("summary = %+v, rows = %d, want one success persisted", summary, len(store.rows))
	}
	yesterday := time.Now().AddDate(0, 0, -1)
	if got := store.rows[0].TradeDate; got.Sub(yesterday) > time.Minute || yesterday.Sub(got) > time.Minute {
		t.Errorf("TradeDate = %s, want roughly yesterday %s", got, yesterday)
	}
}

func TestCalculateAllIsolatesFailures(t *testing.T) {
	lister := &stubCodeLister{codes: []string{"000001", "000002"}}
	reader := &stubBarReader{
		bars: map[string][]models.KlineBar{"000002": {bar(1, "10.00", "0.00")}},
		errs: map[string]error{"000001": errors.New("db down")},
	}
	store := &stubIndicatorStore{}

	calc := newTestCalculator(lister, reader, store)
	summary, err := calc.CalculateAll(context.Background())
	if err != nil {
		t.Fatalf("CalculateAll returned error: %v", err)
	}
	if summary.SuccessCount != 1 || summary.FailCount != 1 {
		t.Errorf("summary = %+v, want 1 success and 1 failure", summary)
	}
	if len(store.rows) != 1 {
		t.Errorf("persisted %d rows, want 1", len(store.rows))
	}
}

func TestCalculateAllZeroSuccessesIsError(t *testing.T) {
	lister := &stubCodeLister{codes: []string{"000001"}}
	reader := &stubBarReader{errs: map[string]error{"000001": errors.New("db down")}}
	store := &stubIndicatorStore{}

	calc := newTestCalculator(lister, reader, store)
	_, err := calc.CalculateAll(context.Background())
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("CalculateAll error = %v, want ErrAllFailed", err)
	}
}
