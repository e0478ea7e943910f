package chain

import (
	"math"
	"sort"
	"time"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/pkg/utils"
)

const yearSeconds = 365 * 24 * 60 * 60

// NextExpiry returns the nearest listed expiry whose date is on or after day.
// expiries must be ascending.
func NextExpiry(expiries []time.Time, day time.Time) (time.Time, error) {
	date := utils.TradingDate(day)
	i := sort.Search(len(expiries), func(i int) bool {
		return !utils.TradingDate(expiries[i]).Before(date)
	})
	if i == len(expiries) {
		return time.Time{}, apperrors.Wrapf(apperrors.ErrNoExpiry, "%s", date.Format("2006-01-02"))
	}
	return expiries[i], nil
}

// IsExpiryDay reports whether day is a listed expiry date.
func IsExpiryDay(expiries []time.Time, day time.Time) bool {
	e, err := NextExpiry(expiries, day)
	return err == nil && utils.TradingDate(e).Equal(utils.TradingDate(day))
}

// TimeToExpiry returns the year fraction between ts and expiry.
func TimeToExpiry(expiry, ts time.Time) float64 {
	return expiry.Sub(ts).Seconds() / yearSeconds
}

// MovingRate is the rate implied by put-call parity at the ATM strike:
// ((K + C - P) / S - 1) / T. Infinite values are capped at ±50.
func MovingRate(strike, call, put, spot, tte float64) float64 {
	r := ((strike+call-put)/spot - 1) / tte
	switch {
	case math.IsInf(r, 1):
		return 50
	case math.IsInf(r, -1):
		return -50
	case math.IsNaN(r):
		return 0
	}
	return r
}
