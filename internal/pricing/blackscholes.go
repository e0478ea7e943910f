// Package pricing provides Black-Scholes prices, deltas and implied volatility.
package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
)

const (
	ivLower     = 1e-6
	ivUpper     = 10.0
	ivTolerance = 1e-10
	ivMaxIter   = 200
)

// Oracle prices European options and inverts prices to volatility.
type Oracle interface {
	Price(spot, strike, tte, rate, vol float64, t models.OptionType) float64
	Delta(spot, strike, tte, rate, vol float64, t models.OptionType) float64
	ImpliedVol(price, spot, strike, tte, rate float64, t models.OptionType) (float64, error)
}

// BlackScholes is the closed-form Black-Scholes oracle.
type BlackScholes struct{}

var norm = distuv.UnitNormal

func d1d2(spot, strike, tte, rate, vol float64) (float64, float64) {
	sqrtT := math.Sqrt(tte)
	d1 := (math.Log(spot/strike) + (rate+0.5*vol*vol)*tte) / (vol * sqrtT)
	return d1, d1 - vol*sqrtT
}

// Price returns the option premium.
func (BlackScholes) Price(spot, strike, tte, rate, vol float64, t models.OptionType) float64 {
	if tte <= 0 || vol <= 0 {
		return intrinsic(spot, strike*math.Exp(-rate*math.Max(tte, 0)), t)
	}
	d1, d2 := d1d2(spot, strike, tte, rate, vol)
	df := math.Exp(-rate * tte)
	if t == models.Call {
		return spot*norm.CDF(d1) - strike*df*norm.CDF(d2)
	}
	return strike*df*norm.CDF(-d2) - spot*norm.CDF(-d1)
}

// Delta returns N(d1) for calls and N(d1)-1 for puts.
func (BlackScholes) Delta(spot, strike, tte, rate, vol float64, t models.OptionType) float64 {
	if tte <= 0 || vol <= 0 {
		return IntrinsicDelta(spot, strike, t)
	}
	d1, _ := d1d2(spot, strike, tte, rate, vol)
	if t == models.Call {
		return norm.CDF(d1)
	}
	return norm.CDF(d1) - 1
}

// Vega returns the sensitivity of price to volatility.
func (BlackScholes) Vega(spot, strike, tte, rate, vol float64) float64 {
	if tte <= 0 || vol <= 0 {
		return 0
	}
	d1, _ := d1d2(spot, strike, tte, rate, vol)
	return spot * norm.Prob(d1) * math.Sqrt(tte)
}

// ImpliedVol solves Price(vol) = price with Brent's method on [1e-6, 10].
func (bs BlackScholes) ImpliedVol(price, spot, strike, tte, rate float64, t models.OptionType) (float64, error) {
	if tte <= 0 || price <= 0 || math.IsNaN(price) {
		return 0, apperrors.ErrIVNotFound
	}
	f := func(vol float64) float64 {
		return bs.Price(spot, strike, tte, rate, vol, t) - price
	}
	lo, hi := f(ivLower), f(ivUpper)
	if lo > 0 || hi < 0 {
		// price below the zero-vol floor or above the 1000% vol ceiling
		return 0, apperrors.ErrIVNotFound
	}
	return brent(f, ivLower, ivUpper, lo, hi)
}

// brent finds a root of f in [a, b] given f(a) and f(b) of opposite sign.
func brent(f func(float64) float64, a, b, fa, fb float64) (float64, error) {
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if math.Abs(fa) < math.Abs(fb) {
		a, b, fa, fb = b, a, fb, fa
	}
	c, fc := a, fa
	d := b - a
	mflag := true

	for i := 0; i < ivMaxIter; i++ {
		if fb == 0 || math.Abs(b-a) < ivTolerance {
			return b, nil
		}
		var s float64
		if fa != fc && fb != fc {
			// inverse quadratic interpolation
			s = a*fb*fc/((fa-fb)*(fa-fc)) + b*fa*fc/((fb-fa)*(fb-fc)) + c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			s = b - fb*(b-a)/(fb-fa)
		}

		lo, hi := (3*a+b)/4, b
		if lo > hi {
			lo, hi = hi, lo
		}
		bisect := s < lo || s > hi ||
			(mflag && math.Abs(s-b) >= math.Abs(b-c)/2) ||
			(!mflag && math.Abs(s-b) >= math.Abs(c-d)/2) ||
			(mflag && math.Abs(b-c) < ivTolerance) ||
			(!mflag && math.Abs(c-d) < ivTolerance)
		if bisect {
			s = (a + b) / 2
		}
		mflag = bisect

		fs := f(s)
		d, c, fc = c, b, fb
		if fa*fs < 0 {
			b, fb = s, fs
		} else {
			a, fa = s, fs
		}
		if math.Abs(fa) < math.Abs(fb) {
			a, b, fa, fb = b, a, fb, fa
		}
	}
	return 0, apperrors.ErrIVNotFound
}

func intrinsic(spot, discountedStrike float64, t models.OptionType) float64 {
	if t == models.Call {
		return math.Max(spot-discountedStrike, 0)
	}
	return math.Max(discountedStrike-spot, 0)
}

// IntrinsicDelta is the delta at expiry: ±1 in the money, 0 otherwise.
func IntrinsicDelta(spot, strike float64, t models.OptionType) float64 {
	switch {
	case t == models.Call && spot > strike:
		return 1
	case t == models.Put && spot < strike:
		return -1
	default:
		return 0
	}
}

// OptionDelta backs out implied volatility from an observed price and returns
// the delta at that volatility. When no volatility reproduces the price the
// intrinsic delta is returned.
func OptionDelta(o Oracle, price, spot, strike, tte, rate float64, t models.OptionType) (delta, iv float64) {
	iv, err := o.ImpliedVol(price, spot, strike, tte, rate, t)
	if err != nil {
		return IntrinsicDelta(spot, strike, t), 0
	}
	return o.Delta(spot, strike, tte, rate, iv, t), iv
}
