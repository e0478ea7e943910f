// Package testutil generates synthetic Black-Scholes markets for tests.
package testutil

import (
	"context"
	"math"
	"time"

	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

// Nifty is the NIFTY strike grid.
var Nifty = models.Underlying{Name: "NIFTY", Base: 50}

// Day describes one synthetic trading day.
type Day struct {
	Date   time.Time // IST midnight
	Expiry time.Time // settlement instant
	// Spot returns the index open at minute i after 09:15.
	Spot    func(i int) float64
	Vol     float64
	Rate    float64
	Minutes int // bars from 09:15 inclusive; 375 runs to 15:29
	Strikes int // priced strikes each side of the opening ATM
	// Skip drops option quotes for which it returns true.
	Skip func(ts time.Time, strike float64, t models.OptionType) bool
}

// Date returns IST midnight of y-m-d.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, utils.IndiaLocation)
}

// FlatSpot keeps the index at level.
func FlatSpot(level float64) func(int) float64 {
	return func(int) float64 { return level }
}

// TrendSpot moves the index by step points per minute.
func TrendSpot(level, step float64) func(int) float64 {
	return func(i int) float64 { return level + step*float64(i) }
}

// Bars returns the index bars of the day.
func (d Day) Bars() []models.IndexBar {
	open := utils.MarketOpen.On(d.Date)
	bars := make([]models.IndexBar, d.Minutes)
	for i := range bars {
		s := d.Spot(i)
		bars[i] = models.IndexBar{Timestamp: open.Add(time.Duration(i) * time.Minute), Open: s, High: s + 1, Low: s - 1, Close: s}
	}
	return bars
}

// Quotes prices the strike grid on every bar.
func (d Day) Quotes() []models.OptionQuote {
	bs := pricing.BlackScholes{}
	bars := d.Bars()
	atm := Nifty.RoundStrike(d.Spot(0))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		lo = math.Min(lo, b.Open)
		hi = math.Max(hi, b.Open)
	}
	pad := float64(d.Strikes) * Nifty.Base
	strikes := Nifty.StrikeRange(math.Min(lo, atm)-pad, math.Max(hi, atm)+pad)

	var quotes []models.OptionQuote
	for _, b := range bars {
		tte := d.Expiry.Sub(b.Timestamp).Seconds() / (365 * 24 * 3600)
		for _, k := range strikes {
			for _, t := range models.OptionTypes {
				if d.Skip != nil && d.Skip(b.Timestamp, k, t) {
					continue
				}
				px := bs.Price(b.Open, k, tte, d.Rate, d.Vol, t)
				quotes = append(quotes, models.OptionQuote{
					Timestamp: b.Timestamp,
					Expiry:    d.Expiry,
					Strike:    k,
					Type:      t,
					Close:     math.Max(math.Round(px*100)/100, 0.05),
				})
			}
		}
	}
	return quotes
}

// Seed writes the day's bars, quotes and expiry into w.
func (d Day) Seed(ctx context.Context, w store.PriceWriter) error {
	if err := w.SaveIndexPrices(ctx, Nifty.Name, d.Bars()); err != nil {
		return err
	}
	if err := w.SaveOptionPrices(ctx, Nifty.Name, d.Quotes()); err != nil {
		return err
	}
	return w.SaveExpiries(ctx, Nifty.Name, []time.Time{d.Expiry})
}

// WeeklyDay returns a full 09:15–15:29 day expiring n calendar days later.
func WeeklyDay(date time.Time, daysToExpiry int, spot func(int) float64) Day {
	return Day{
		Date:    date,
		Expiry:  utils.ExpiryInstant(date.AddDate(0, 0, daysToExpiry)),
		Spot:    spot,
		Vol:     0.14,
		Rate:    0.07,
		Minutes: 375,
		Strikes: 40,
	}
}
