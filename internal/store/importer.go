package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"delta-hedger/internal/models"
	"delta-hedger/internal/performance"
	"delta-hedger/pkg/utils"
)

// csvTime parses the timestamp layouts found in exchange minute dumps as IST.
type csvTime struct {
	time.Time
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006 15:04",
	"02-Jan-2006",
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *csvTime) UnmarshalCSV(s string) error {
	for _, layout := range csvTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, utils.IndiaLocation); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (t csvTime) MarshalCSV() (string, error) {
	return t.In(utils.IndiaLocation).Format("2006-01-02 15:04:05"), nil
}

type indexRecord struct {
	Timestamp csvTime `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
}

type optionRecord struct {
	Timestamp  csvTime `csv:"timestamp"`
	Expiry     csvTime `csv:"expiry"`
	Strike     float64 `csv:"strike"`
	OptionType string  `csv:"option_type"`
	Close      float64 `csv:"close"`
}

type expiryRecord struct {
	Expiry csvTime `csv:"expiry"`
}

func readCSV[T any](path string) ([]*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []*T
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// ImportIndexCSV loads index minute bars (timestamp,open,high,low,close).
func ImportIndexCSV(ctx context.Context, w PriceWriter, underlying, path string) (int, error) {
	records, err := readCSV[indexRecord](path)
	if err != nil {
		return 0, err
	}
	bars := make([]models.IndexBar, len(records))
	for i, r := range records {
		bars[i] = models.IndexBar{Timestamp: r.Timestamp.Time, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
	}
	return len(bars), w.SaveIndexPrices(ctx, underlying, bars)
}

// OptionBatchSize is the number of option rows written per transaction.
const OptionBatchSize = 5000

// ImportOptionCSV loads option closes (timestamp,expiry,strike,option_type,close)
// in batches of OptionBatchSize. Expiry dates are normalised to their
// settlement instant. The count covers rows written before any error.
func ImportOptionCSV(ctx context.Context, w PriceWriter, underlying, path string) (int, error) {
	records, err := readCSV[optionRecord](path)
	if err != nil {
		return 0, err
	}
	batch := performance.NewBatchProcessor(OptionBatchSize, func(quotes []models.OptionQuote) error {
		return w.SaveOptionPrices(ctx, underlying, quotes)
	})
	for i, r := range records {
		typ, ok := models.ParseOptionType(r.OptionType)
		if !ok {
			return batch.Processed(), fmt.Errorf("line %d: invalid option type %q", i+2, r.OptionType)
		}
		if err := batch.Add(models.OptionQuote{
			Timestamp: r.Timestamp.Time,
			Expiry:    utils.ExpiryInstant(r.Expiry.Time),
			Strike:    r.Strike,
			Type:      typ,
			Close:     r.Close,
		}); err != nil {
			return batch.Processed(), err
		}
	}
	if err := batch.Flush(); err != nil {
		return batch.Processed(), err
	}
	return batch.Processed(), nil
}

// ImportExpiryCSV loads listed expiry dates (expiry).
func ImportExpiryCSV(ctx context.Context, w PriceWriter, underlying, path string) (int, error) {
	records, err := readCSV[expiryRecord](path)
	if err != nil {
		return 0, err
	}
	expiries := make([]time.Time, len(records))
	for i, r := range records {
		expiries[i] = r.Expiry.Time
	}
	return len(expiries), w.SaveExpiries(ctx, underlying, expiries)
}
