package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestImportCSVFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	index := writeFile(t, dir, "index.csv", "timestamp,open,high,low,close\n"+
		"2024-01-02 09:15:00,21700,21710,21690,21705\n"+
		"2024-01-02 09:16:00,21705,21712,21700,21708\n")
	options := writeFile(t, dir, "options.csv", "timestamp,expiry,strike,option_type,close\n"+
		"2024-01-02 09:16:00,2024-01-04,21700,CE,88.5\n"+
		"2024-01-02 09:16:00,2024-01-04,21700,PE,81.25\n")
	expiries := writeFile(t, dir, "expiries.csv", "expiry\n2024-01-04\n2024-01-11\n")

	if n, err := ImportIndexCSV(ctx, store, "NIFTY", index); err != nil || n != 2 {
		t.Fatalf("ImportIndexCSV = %d, %v", n, err)
	}
	if n, err := ImportOptionCSV(ctx, store, "NIFTY", options); err != nil || n != 2 {
		t.Fatalf("ImportOptionCSV = %d, %v", n, err)
	}
	if n, err := ImportExpiryCSV(ctx, store, "NIFTY", expiries); err != nil || n != 2 {
		t.Fatalf("ImportExpiryCSV = %d, %v", n, err)
	}

	ts := time.Date(2024, 1, 2, 9, 16, 0, 0, utils.IndiaLocation)
	expiry := utils.ExpiryInstant(time.Date(2024, 1, 4, 0, 0, 0, 0, utils.IndiaLocation))
	quotes, err := store.OptionPrices(ctx, "NIFTY", []models.OptionKey{
		{Timestamp: ts, Expiry: expiry, Strike: 21700, Type: models.Put},
	})
	if err != nil || len(quotes) != 1 || quotes[0].Close != 81.25 {
		t.Fatalf("imported put lookup = %+v, %v", quotes, err)
	}
}

func TestImportOptionCSVRejectsUnknownType(t *testing.T) {
	store := newTestStore(t)
	path := writeFile(t, t.TempDir(), "bad.csv", "timestamp,expiry,strike,option_type,close\n"+
		"2024-01-02 09:16:00,2024-01-04,21700,FUT,88.5\n")

	if _, err := ImportOptionCSV(context.Background(), store, "NIFTY", path); err == nil {
		t.Fatalf("expected error for unknown option type")
	}
}

// batchRecorder is a PriceWriter that only records option batch sizes.
type batchRecorder struct {
	batches []int
}

func (b *batchRecorder) SaveIndexPrices(context.Context, string, []models.IndexBar) error { return nil }

func (b *batchRecorder) SaveExpiries(context.Context, string, []time.Time) error { return nil }

func (b *batchRecorder) SaveOptionPrices(_ context.Context, _ string, quotes []models.OptionQuote) error {
	b.batches = append(b.batches, len(quotes))
	return nil
}

func TestImportOptionCSVWritesInBatches(t *testing.T) {
	var body strings.Builder
	body.WriteString("timestamp,expiry,strike,option_type,close\n")
	rows := OptionBatchSize + 3
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&body, "2024-01-02 09:16:00,2024-01-04,%d,CE,10\n", 20000+i*50)
	}
	path := writeFile(t, t.TempDir(), "options.csv", body.String())

	rec := &batchRecorder{}
	n, err := ImportOptionCSV(context.Background(), rec, "NIFTY", path)
	if err != nil || n != rows {
		t.Fatalf("ImportOptionCSV = %d, %v", n, err)
	}
	if len(rec.batches) != 2 || rec.batches[0] != OptionBatchSize || rec.batches[1] != 3 {
		t.Fatalf("batches = %v", rec.batches)
	}
}
