// Package store provides historical price persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"delta-hedger/internal/models"
)

// PriceStore is the historical price source consumed by the backtest engine.
type PriceStore interface {
	// IndexPrices returns minute bars of the underlying index in [from, to], ordered by time.
	IndexPrices(ctx context.Context, underlying string, from, to time.Time) ([]models.IndexBar, error)

	// OptionPrices returns quotes matching exactly the supplied keys. Keys
	// without a stored price are absent from the result.
	OptionPrices(ctx context.Context, underlying string, keys []models.OptionKey) ([]models.OptionQuote, error)

	// Expiries returns the listed expiry dates of the underlying, ascending.
	Expiries(ctx context.Context, underlying string) ([]time.Time, error)
}

// PriceWriter persists historical prices.
type PriceWriter interface {
	SaveIndexPrices(ctx context.Context, underlying string, bars []models.IndexBar) error
	SaveOptionPrices(ctx context.Context, underlying string, quotes []models.OptionQuote) error
	SaveExpiries(ctx context.Context, underlying string, expiries []time.Time) error
}

// Coverage describes the stored data of one underlying.
type Coverage struct {
	Underlying   string
	IndexBars    int64
	OptionQuotes int64
	Expiries     int64
	From         time.Time
	To           time.Time
}
