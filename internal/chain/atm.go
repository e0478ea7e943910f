package chain

import (
	"math"
	"time"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
)

// Quotes is the price lookup the chain builders read from.
type Quotes interface {
	Price(ts time.Time, t models.OptionType, strike float64) (float64, error)
}

// AtmStrikes returns the ATM strike of every bar.
func AtmStrikes(u models.Underlying, bars []models.IndexBar) []float64 {
	strikes := make([]float64, len(bars))
	for i, b := range bars {
		strikes[i] = u.RoundStrike(b.Open)
	}
	return strikes
}

// CacheStrikes returns the strike grid covering every ATM strike of the day
// widened by n steps on each side.
func CacheStrikes(u models.Underlying, bars []models.IndexBar, n int) []float64 {
	if len(bars) == 0 {
		return nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, k := range AtmStrikes(u, bars) {
		lo = math.Min(lo, k)
		hi = math.Max(hi, k)
	}
	pad := float64(n) * u.Base
	return u.StrikeRange(lo-pad, hi+pad)
}

// BuildAtmRolling computes the ATM reference for every bar: spot, time to
// expiry, ATM strike and prices, the parity-implied moving rate and the ATM
// implied vols and deltas. Minutes whose ATM prices are unavailable are
// interpolated in time from the neighbouring minutes.
func BuildAtmRolling(u models.Underlying, bars []models.IndexBar, expiry time.Time, quotes Quotes, oracle pricing.Oracle) ([]models.AtmInfo, error) {
	n := len(bars)
	if n == 0 {
		return nil, nil
	}

	xs := make([]float64, n)
	calls := make([]float64, n)
	puts := make([]float64, n)
	hasCall := make([]bool, n)
	hasPut := make([]bool, n)
	info := make([]models.AtmInfo, n)

	for i, bar := range bars {
		xs[i] = float64(bar.Timestamp.Unix())
		strike := u.RoundStrike(bar.Open)
		info[i] = models.AtmInfo{
			Timestamp:    bar.Timestamp,
			Spot:         bar.Open,
			TimeToExpiry: TimeToExpiry(expiry, bar.Timestamp),
			Strike:       strike,
		}
		if p, err := quotes.Price(bar.Timestamp, models.Call, strike); err == nil {
			calls[i], hasCall[i] = p, true
		}
		if p, err := quotes.Price(bar.Timestamp, models.Put, strike); err == nil {
			puts[i], hasPut[i] = p, true
		}
	}

	if !Interpolate(xs, calls, hasCall) || !Interpolate(xs, puts, hasPut) {
		return nil, apperrors.Wrapf(apperrors.ErrPriceMissing, "no ATM prices for %s on %s",
			u.Name, bars[0].Timestamp.Format("2006-01-02"))
	}

	for i := range info {
		a := &info[i]
		a.CallPrice, a.PutPrice = calls[i], puts[i]
		a.Rate = MovingRate(a.Strike, a.CallPrice, a.PutPrice, a.Spot, a.TimeToExpiry)
		a.CallDelta, a.CallIV = pricing.OptionDelta(oracle, a.CallPrice, a.Spot, a.Strike, a.TimeToExpiry, a.Rate, models.Call)
		a.PutDelta, a.PutIV = pricing.OptionDelta(oracle, a.PutPrice, a.Spot, a.Strike, a.TimeToExpiry, a.Rate, models.Put)
	}
	return info, nil
}

// BuildSnapshot prices and greeks the given strikes at one minute using the
// minute's ATM reference for spot, time to expiry and rate.
func BuildSnapshot(atm models.AtmInfo, expiry time.Time, strikes []float64, quotes Quotes, oracle pricing.Oracle) (models.ChainSnapshot, error) {
	snap := models.ChainSnapshot{
		Timestamp:    atm.Timestamp,
		Expiry:       expiry,
		Spot:         atm.Spot,
		TimeToExpiry: atm.TimeToExpiry,
		Rate:         atm.Rate,
		Rows:         make([]models.StrikeGreeks, 0, len(strikes)),
	}
	for _, k := range strikes {
		call, err := quotes.Price(atm.Timestamp, models.Call, k)
		if err != nil {
			return snap, err
		}
		put, err := quotes.Price(atm.Timestamp, models.Put, k)
		if err != nil {
			return snap, err
		}
		callDelta, _ := pricing.OptionDelta(oracle, call, atm.Spot, k, atm.TimeToExpiry, atm.Rate, models.Call)
		putDelta, _ := pricing.OptionDelta(oracle, put, atm.Spot, k, atm.TimeToExpiry, atm.Rate, models.Put)
		snap.Rows = append(snap.Rows, models.StrikeGreeks{
			Strike:    k,
			CallPrice: call,
			PutPrice:  put,
			CallDelta: callDelta,
			PutDelta:  putDelta,
		})
	}
	return snap, nil
}
