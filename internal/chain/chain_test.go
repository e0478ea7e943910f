package chain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
	"delta-hedger/internal/testutil"
	"delta-hedger/pkg/utils"
)

func TestNextExpiry(t *testing.T) {
	e1 := utils.ExpiryInstant(testutil.Date(2024, 1, 4))
	e2 := utils.ExpiryInstant(testutil.Date(2024, 1, 11))
	expiries := []time.Time{e1, e2}

	got, err := NextExpiry(expiries, testutil.Date(2024, 1, 2).Add(10*time.Hour))
	if err != nil || !got.Equal(e1) {
		t.Fatalf("NextExpiry(Jan 2) = %v, %v", got, err)
	}
	got, _ = NextExpiry(expiries, testutil.Date(2024, 1, 4).Add(15*time.Hour))
	if !got.Equal(e1) {
		t.Fatalf("expiry day should resolve to itself, got %v", got)
	}
	got, _ = NextExpiry(expiries, testutil.Date(2024, 1, 5))
	if !got.Equal(e2) {
		t.Fatalf("NextExpiry(Jan 5) = %v", got)
	}
	if _, err := NextExpiry(expiries, testutil.Date(2024, 1, 12)); !apperrors.Is(err, apperrors.ErrNoExpiry) {
		t.Fatalf("expected ErrNoExpiry, got %v", err)
	}
	if !IsExpiryDay(expiries, testutil.Date(2024, 1, 11)) || IsExpiryDay(expiries, testutil.Date(2024, 1, 10)) {
		t.Fatalf("IsExpiryDay mismatch")
	}
}

func TestTimeToExpiry(t *testing.T) {
	expiry := utils.ExpiryInstant(testutil.Date(2024, 1, 4))
	ts := expiry.Add(-24 * time.Hour)
	if got := TimeToExpiry(expiry, ts); math.Abs(got-1.0/365) > 1e-12 {
		t.Fatalf("TimeToExpiry = %v", got)
	}
}

func TestMovingRate(t *testing.T) {
	// K + C - P = 22010 on spot 22000 with a tenth of a year left.
	r := MovingRate(22000, 110, 100, 22000, 0.1)
	if math.Abs(r-(10.0/22000)/0.1) > 1e-12 {
		t.Fatalf("MovingRate = %v", r)
	}
	if MovingRate(22000, 110, 100, 22000, 0) != 50 {
		t.Fatalf("positive infinity should cap at 50")
	}
	if MovingRate(22000, 90, 100, 22000, 0) != -50 {
		t.Fatalf("negative infinity should cap at -50")
	}
}

func TestFillMissingParityAndInterpolation(t *testing.T) {
	quotes := []StrikeQuote{
		{Strike: 21900, Call: 150, Put: 45, HasCall: true, HasPut: true},
		{Strike: 21950, Put: 62, HasPut: true},
		{Strike: 22000, Call: 90, Put: 85, HasCall: true, HasPut: true},
		{Strike: 22050},
		{Strike: 22100, Call: 40, Put: 135, HasCall: true, HasPut: true},
		{Strike: 22150},
	}
	if !FillMissing(quotes, 22010) {
		t.Fatalf("FillMissing reported failure")
	}

	future, _ := SyntheticFuture([]StrikeQuote{
		{Strike: 21900, Call: 150, Put: 45, HasCall: true, HasPut: true},
		{Strike: 22000, Call: 90, Put: 85, HasCall: true, HasPut: true},
		{Strike: 22100, Call: 40, Put: 135, HasCall: true, HasPut: true},
	}, 22010)

	if want := 62 + future - 21950; math.Abs(quotes[1].Call-want) > 1e-9 {
		t.Errorf("parity call = %v, want %v", quotes[1].Call, want)
	}
	if want := (90.0 + 40.0) / 2; math.Abs(quotes[3].Call-want) > 1e-9 {
		t.Errorf("interpolated call = %v, want %v", quotes[3].Call, want)
	}
	if quotes[5].Call != 40 || quotes[5].Put != 135 {
		t.Errorf("trailing edge should copy nearest strike, got %+v", quotes[5])
	}
	for _, q := range quotes {
		if !q.Complete() || q.Call < MinOptionPrice || q.Put < MinOptionPrice {
			t.Fatalf("incomplete or unfloored strike %+v", q)
		}
	}
}

func TestFillMissingFloorsAndFails(t *testing.T) {
	quotes := []StrikeQuote{
		{Strike: 22000, Call: 0.01, Put: 80, HasCall: true, HasPut: true},
	}
	FillMissing(quotes, 22000)
	if quotes[0].Call != MinOptionPrice {
		t.Fatalf("price not floored: %v", quotes[0].Call)
	}

	if FillMissing([]StrikeQuote{{Strike: 22000}, {Strike: 22050}}, 22000) {
		t.Fatalf("expected failure with no prices at all")
	}
}

func TestInterpolateLinear(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{0, 0, 0, 6, 0}
	known := []bool{false, true, false, true, false}
	ys[1] = 2
	if !Interpolate(xs, ys, known) {
		t.Fatalf("Interpolate failed")
	}
	want := []float64{2, 2, 4, 6, 6}
	for i := range want {
		if ys[i] != want[i] {
			t.Fatalf("ys = %v, want %v", ys, want)
		}
	}
}

func seededCache(t *testing.T, day testutil.Day) (*PriceCache, *testutil.MemoryStore) {
	t.Helper()
	mem := testutil.NewMemoryStore()
	if err := day.Seed(context.Background(), mem); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewPriceCache(mem, testutil.Nifty, day.Expiry, zerolog.Nop()), mem
}

func TestPriceCacheLoadsOnce(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21710))
	day.Minutes = 30
	cache, mem := seededCache(t, day)
	bars := day.Bars()
	strikes := CacheStrikes(testutil.Nifty, bars, 5)

	ctx := context.Background()
	if err := cache.Load(ctx, bars, strikes); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cache.Load(ctx, bars, strikes); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if mem.OptionCalls != 1 || cache.Fetches() != 1 {
		t.Fatalf("expected a single fetch, store saw %d", mem.OptionCalls)
	}

	px, err := cache.Price(bars[3].Timestamp, models.Put, 21700)
	if err != nil || px <= 0 {
		t.Fatalf("Price = %v, %v", px, err)
	}
	if _, err := cache.Price(bars[3].Timestamp, models.Put, 25000); !apperrors.Is(err, apperrors.ErrPriceMissing) {
		t.Fatalf("expected ErrPriceMissing, got %v", err)
	}
	if missing := cache.Missing(bars[3].Timestamp, []float64{21700, 25000}); len(missing) != 1 || missing[0] != 25000 {
		t.Fatalf("Missing = %v", missing)
	}
}

func TestBuildAtmRollingInterpolatesGaps(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21700))
	day.Minutes = 10
	gap := utils.MarketOpen.On(day.Date).Add(4 * time.Minute)
	// The whole chain is absent at minute 4.
	day.Skip = func(ts time.Time, _ float64, _ models.OptionType) bool { return ts.Equal(gap) }

	cache, _ := seededCache(t, day)
	bars := day.Bars()
	if err := cache.Load(context.Background(), bars, CacheStrikes(testutil.Nifty, bars, 3)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := BuildAtmRolling(testutil.Nifty, bars, day.Expiry, cache, pricing.BlackScholes{})
	if err != nil {
		t.Fatalf("BuildAtmRolling: %v", err)
	}
	if len(info) != len(bars) {
		t.Fatalf("got %d rows", len(info))
	}
	mid := (info[3].CallPrice + info[5].CallPrice) / 2
	if math.Abs(info[4].CallPrice-mid) > 1e-9 {
		t.Errorf("gap call price = %v, want %v", info[4].CallPrice, mid)
	}
	for _, a := range info {
		if a.Strike != 21700 || a.CallDelta < 0.3 || a.CallDelta > 0.7 || a.PutDelta > -0.3 || a.PutDelta < -0.7 {
			t.Fatalf("unexpected ATM row %+v", a)
		}
		if math.Abs(a.Rate-day.Rate) > 0.5 {
			t.Fatalf("implied rate %v far from %v", a.Rate, day.Rate)
		}
	}
}

func TestBuildSnapshotDeltas(t *testing.T) {
	day := testutil.WeeklyDay(testutil.Date(2024, 1, 2), 2, testutil.FlatSpot(21700))
	day.Minutes = 2
	cache, _ := seededCache(t, day)
	bars := day.Bars()
	if err := cache.Load(context.Background(), bars, CacheStrikes(testutil.Nifty, bars, 10)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, err := BuildAtmRolling(testutil.Nifty, bars, day.Expiry, cache, pricing.BlackScholes{})
	if err != nil {
		t.Fatalf("BuildAtmRolling: %v", err)
	}

	snap, err := BuildSnapshot(info[0], day.Expiry, testutil.Nifty.StrikesAround(21700, 5), cache, pricing.BlackScholes{})
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	for i := 1; i < len(snap.Rows); i++ {
		if snap.Rows[i].CallDelta > snap.Rows[i-1].CallDelta || snap.Rows[i].PutDelta > snap.Rows[i-1].PutDelta {
			t.Fatalf("deltas should fall with strike: %+v", snap.Rows)
		}
	}

	if _, err := BuildSnapshot(info[0], day.Expiry, []float64{30000}, cache, pricing.BlackScholes{}); !apperrors.Is(err, apperrors.ErrPriceMissing) {
		t.Fatalf("expected ErrPriceMissing for unloaded strike, got %v", err)
	}
}
