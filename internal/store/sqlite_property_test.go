package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testExpiry() time.Time {
	return utils.ExpiryInstant(time.Date(2024, 1, 4, 0, 0, 0, 0, utils.IndiaLocation))
}

// seedChain stores call and put closes for strikes around 21700 on every minute of a short window.
func seedChain(t *testing.T, store *SQLiteStore, minutes int) []models.OptionQuote {
	t.Helper()
	start := time.Date(2024, 1, 2, 9, 16, 0, 0, utils.IndiaLocation)
	var quotes []models.OptionQuote
	for m := 0; m < minutes; m++ {
		ts := start.Add(time.Duration(m) * time.Minute)
		for k := 21500.0; k <= 21900; k += 50 {
			quotes = append(quotes,
				models.OptionQuote{Timestamp: ts, Expiry: testExpiry(), Strike: k, Type: models.Call, Close: math.Max(21700-k, 0) + 40 + float64(m)},
				models.OptionQuote{Timestamp: ts, Expiry: testExpiry(), Strike: k, Type: models.Put, Close: math.Max(k-21700, 0) + 35 - float64(m)/10},
			)
		}
	}
	if err := store.SaveOptionPrices(context.Background(), "NIFTY", quotes); err != nil {
		t.Fatalf("SaveOptionPrices: %v", err)
	}
	return quotes
}

// Feature: delta-hedger, Property 7: Exact-join option lookup
//
// Property: For any subset of stored keys mixed with keys that were never
// stored, OptionPrices returns exactly the stored subset and nothing else.
func TestProperty_OptionPricesExactJoin(t *testing.T) {
	store := newTestStore(t)
	stored := seedChain(t, store, 10)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only requested stored keys come back", prop.ForAll(
		func(picks []int, missingStrikes int) bool {
			want := make(map[models.OptionKey]float64)
			var keys []models.OptionKey
			for _, p := range picks {
				q := stored[p%len(stored)]
				want[q.Key()] = q.Close
				keys = append(keys, q.Key())
			}
			for i := 0; i < missingStrikes; i++ {
				keys = append(keys, models.OptionKey{
					Timestamp: stored[0].Timestamp,
					Expiry:    testExpiry(),
					Strike:    30000 + float64(i)*50,
					Type:      models.Call,
				})
			}

			got, err := store.OptionPrices(context.Background(), "NIFTY", keys)
			if err != nil {
				t.Logf("OptionPrices: %v", err)
				return false
			}
			if len(got) != len(want) {
				t.Logf("got %d quotes, want %d", len(got), len(want))
				return false
			}
			for _, q := range got {
				px, ok := want[q.Key()]
				if !ok || px != q.Close {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestOptionPricesBatchesLargeRequests(t *testing.T) {
	store := newTestStore(t)
	stored := seedChain(t, store, 30) // 540 quotes, more than two batches

	keys := make([]models.OptionKey, len(stored))
	for i, q := range stored {
		keys[i] = q.Key()
	}
	got, err := store.OptionPrices(context.Background(), "NIFTY", keys)
	if err != nil {
		t.Fatalf("OptionPrices: %v", err)
	}
	if len(got) != len(stored) {
		t.Fatalf("got %d quotes, want %d", len(got), len(stored))
	}

	other, err := store.OptionPrices(context.Background(), "BANKNIFTY", keys[:10])
	if err != nil || len(other) != 0 {
		t.Fatalf("other underlying leaked rows: %d %v", len(other), err)
	}
}

func TestIndexPricesAndExpiries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, utils.IndiaLocation)
	var bars []models.IndexBar
	for i := 0; i < 5; i++ {
		px := 21700 + float64(i)
		bars = append(bars, models.IndexBar{Timestamp: start.Add(time.Duration(i) * time.Minute), Open: px, High: px + 2, Low: px - 2, Close: px + 1})
	}
	if err := store.SaveIndexPrices(ctx, "NIFTY", bars); err != nil {
		t.Fatalf("SaveIndexPrices: %v", err)
	}

	got, err := store.IndexPrices(ctx, "NIFTY", start.Add(time.Minute), start.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("IndexPrices: %v", err)
	}
	if len(got) != 3 || !got[0].Timestamp.Equal(bars[1].Timestamp) || got[2].Open != bars[3].Open {
		t.Fatalf("unexpected bars: %+v", got)
	}

	day := time.Date(2024, 1, 4, 0, 0, 0, 0, utils.IndiaLocation)
	if err := store.SaveExpiries(ctx, "NIFTY", []time.Time{day.AddDate(0, 0, 7), day}); err != nil {
		t.Fatalf("SaveExpiries: %v", err)
	}
	expiries, err := store.Expiries(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("Expiries: %v", err)
	}
	if len(expiries) != 2 || !expiries[0].Equal(utils.ExpiryInstant(day)) {
		t.Fatalf("unexpected expiries: %v", expiries)
	}

	coverage, err := store.Coverage(ctx)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if len(coverage) != 1 || coverage[0].IndexBars != 5 || coverage[0].Expiries != 2 {
		t.Fatalf("unexpected coverage: %+v", coverage)
	}
}

func TestClosedStoreReportsDatabaseError(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.Close()

	ctx := context.Background()
	if _, err := store.Expiries(ctx, "NIFTY"); !apperrors.Is(err, apperrors.ErrDatabaseError) {
		t.Fatalf("Expiries on closed store: %v", err)
	}
	if _, err := store.IndexPrices(ctx, "NIFTY", testExpiry().AddDate(0, 0, -1), testExpiry()); !apperrors.Is(err, apperrors.ErrDatabaseError) {
		t.Fatalf("IndexPrices on closed store: %v", err)
	}
	if err := store.SaveExpiries(ctx, "NIFTY", []time.Time{testExpiry()}); !apperrors.Is(err, apperrors.ErrDatabaseError) {
		t.Fatalf("SaveExpiries on closed store: %v", err)
	}
}
