package hedging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
	"delta-hedger/internal/testutil"
	"delta-hedger/pkg/utils"
)

func testParams() Params {
	p := DefaultParams()
	// Wide enough that single-strike entries on a 50 point grid always pass
	// the call/put symmetry check.
	p.DeltaThresholdPct = 0.05
	return p
}

func seededRunner(t *testing.T, day testutil.Day, p Params) (*DayRunner, *testutil.MemoryStore) {
	t.Helper()
	mem := testutil.NewMemoryStore()
	if err := day.Seed(context.Background(), mem); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r, err := NewDayRunner(mem, testutil.Nifty, p, pricing.BlackScholes{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDayRunner: %v", err)
	}
	return r, mem
}

// segmentsOf groups rows by segment index in order.
func segmentsOf(rows []models.DayRow) [][]models.DayRow {
	var out [][]models.DayRow
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1][0].Segment != r.Segment {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], r)
	}
	return out
}

func checkSegments(t *testing.T, res *models.DayResult) [][]models.DayRow {
	t.Helper()
	segs := segmentsOf(res.Rows)
	if len(segs) != res.Segments || len(segs) == 0 {
		t.Fatalf("got %d row groups for %d segments", len(segs), res.Segments)
	}
	for i, seg := range segs {
		for j, row := range seg {
			last := j == len(seg)-1
			if row.MTM.Valid != last {
				t.Fatalf("segment %d row %d mtm valid=%v", i, j, row.MTM.Valid)
			}
			if row.Status.Terminal() != last {
				t.Fatalf("segment %d row %d status %s", i, j, row.Status)
			}
			if j > 0 && !row.Timestamp.After(seg[j-1].Timestamp) {
				t.Fatalf("segment %d timestamps not increasing", i)
			}
			if !row.Expiry.Equal(res.Expiry) {
				t.Fatalf("row expiry %v, want %v", row.Expiry, res.Expiry)
			}
		}
		if i > 0 {
			prevEnd := segs[i-1][len(segs[i-1])-1].Timestamp
			if seg[0].Timestamp.Before(prevEnd) {
				t.Fatalf("segment %d starts at %s before previous end %s", i, seg[0].Timestamp, prevEnd)
			}
		}
	}
	return segs
}

func TestRunDayFlatMarketRunsToExit(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	runner, _ := seededRunner(t, day, testParams())

	res, err := runner.RunDate(context.Background(), day.Date)
	if err != nil {
		t.Fatalf("RunDate: %v", err)
	}
	segs := checkSegments(t, res)

	final := segs[len(segs)-1]
	exit := final[len(final)-1]
	if exit.Status != models.StatusExitTimeReached || utils.ClockOf(exit.Timestamp) != utils.MustParseClock("15:29") {
		t.Fatalf("last row %s at %s", exit.Status, exit.Timestamp)
	}
	first := segs[0][0]
	if utils.ClockOf(first.Timestamp) != utils.MustParseClock("09:16") {
		t.Fatalf("first segment should start after 09:15, got %s", first.Timestamp)
	}
	if first.CallLegs == "" || first.PutLegs == "" || first.Premium >= 0 {
		t.Fatalf("entry row %+v", first)
	}
}

func TestRunDayTrendingMarketBreachesCap(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 3), 2, testutil.TrendSpot(21900, -2))
	runner, _ := seededRunner(t, day, testParams())

	res, err := runner.RunDate(context.Background(), day.Date)
	if err != nil {
		t.Fatalf("RunDate: %v", err)
	}
	segs := checkSegments(t, res)
	if len(segs) < 2 {
		t.Fatalf("expected the cap to end at least one segment, got %d segments", len(segs))
	}
	breached := false
	for _, seg := range segs {
		last := seg[len(seg)-1]
		if last.Status == models.StatusHedgeCapBreached {
			breached = true
			if last.Hedges == "" {
				t.Fatalf("breach without hedges at %s", last.Timestamp)
			}
		}
	}
	if !breached {
		t.Fatalf("no segment breached the hedge cap")
	}
}

func TestRunDaySkipsShortDay(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	day.Minutes = 200
	runner, mem := seededRunner(t, day, testParams())

	res, err := runner.RunDate(context.Background(), day.Date)
	if err != nil {
		t.Fatalf("RunDate: %v", err)
	}
	if !res.Empty() || res.Segments != 0 {
		t.Fatalf("expected empty result, got %d rows", len(res.Rows))
	}
	if mem.OptionCalls != 0 {
		t.Fatalf("short day fetched option prices %d times", mem.OptionCalls)
	}
}

func TestRunDayTightensExitOnExpiryDay(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 4), 0, testutil.FlatSpot(21710))
	runner, _ := seededRunner(t, day, testParams())

	res, err := runner.RunDate(context.Background(), day.Date)
	if err != nil {
		t.Fatalf("RunDate: %v", err)
	}
	cutoff := utils.MustParseClock("14:40")
	for _, row := range res.Rows {
		if utils.ClockOf(row.Timestamp).After(cutoff) {
			t.Fatalf("row at %s after expiry day exit", row.Timestamp)
		}
		if row.Status == models.StatusExitTimeReached && utils.ClockOf(row.Timestamp) != cutoff {
			t.Fatalf("exit at %s, want 14:40", row.Timestamp)
		}
	}
}

func TestRunDayWithoutExpiryFails(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	mem := testutil.NewMemoryStore()
	if err := mem.SaveIndexPrices(context.Background(), testutil.Nifty.Name, day.Bars()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	runner, err := NewDayRunner(mem, testutil.Nifty, testParams(), pricing.BlackScholes{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDayRunner: %v", err)
	}

	_, err = runner.RunDate(context.Background(), day.Date)
	var dayErr *apperrors.DayError
	if !apperrors.As(err, &dayErr) || dayErr.Stage != apperrors.StageExpiry || !apperrors.Is(err, apperrors.ErrNoExpiry) {
		t.Fatalf("expected expiry stage DayError, got %v", err)
	}
}

func TestRunnerReusesCacheWithinExpiry(t *testing.T) {
	d1 := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	d2 := testutil.WeeklyDay(testutil.Date(2024, 1, 3), 1, testutil.FlatSpot(21720))
	runner, mem := seededRunner(t, d1, testParams())
	if err := d2.Seed(context.Background(), mem); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := runner.RunDate(context.Background(), d1.Date); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	cache := runner.Cache()
	if _, err := runner.RunDate(context.Background(), d2.Date); err != nil {
		t.Fatalf("day 2: %v", err)
	}
	if runner.Cache() != cache {
		t.Fatalf("cache replaced although expiry is unchanged")
	}
}

func TestRunDayRejectsNonPositiveOpen(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	runner, mem := seededRunner(t, day, testParams())

	bars := day.Bars()
	for i := range bars {
		bars[i].Open = 0
	}
	_, err := runner.RunDay(context.Background(), bars)
	var dayErr *apperrors.DayError
	if !apperrors.As(err, &dayErr) || dayErr.Stage != apperrors.StageEntry {
		t.Fatalf("expected entry stage DayError, got %v", err)
	}
	var ve *apperrors.ValidationError
	if !apperrors.As(err, &ve) || ve.Field != "open" {
		t.Fatalf("expected open ValidationError, got %v", err)
	}
	if mem.OptionCalls != 0 {
		t.Fatalf("rejected day fetched option prices %d times", mem.OptionCalls)
	}
}

func TestRunDateLogsThroughContextLogger(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	runner, _ := seededRunner(t, day, testParams())

	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("operation", "backtest").Logger()
	ctx := logging.WithLogger(context.Background(), logger)
	if _, err := runner.RunDate(ctx, day.Date); err != nil {
		t.Fatalf("RunDate: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"message":"Day simulated"`) {
		t.Fatalf("day summary not written to context logger: %s", out)
	}
	if !strings.Contains(out, `"operation":"backtest"`) || !strings.Contains(out, `"day":"2024-01-02"`) {
		t.Fatalf("context fields missing: %s", out)
	}
}
