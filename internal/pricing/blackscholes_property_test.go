package pricing

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"delta-hedger/internal/models"
)

// Feature: delta-hedger, Property 1: Put-call parity
//
// Property: For any spot, strike, expiry, rate and volatility,
// C - P = S - K·exp(-rT) and delta(C) - delta(P) = 1.
func TestProperty_PutCallParity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	bs := BlackScholes{}

	properties.Property("call minus put equals forward minus discounted strike", prop.ForAll(
		func(spot, moneyness, tte, rate, vol float64) bool {
			strike := spot * moneyness
			c := bs.Price(spot, strike, tte, rate, vol, models.Call)
			p := bs.Price(spot, strike, tte, rate, vol, models.Put)
			parity := spot - strike*math.Exp(-rate*tte)
			if math.Abs((c-p)-parity) > 1e-6*spot {
				return false
			}
			dc := bs.Delta(spot, strike, tte, rate, vol, models.Call)
			dp := bs.Delta(spot, strike, tte, rate, vol, models.Put)
			return math.Abs(dc-dp-1) < 1e-12 && dc >= 0 && dc <= 1 && dp <= 0 && dp >= -1
		},
		gen.Float64Range(5000, 60000),
		gen.Float64Range(0.85, 1.15),
		gen.Float64Range(0.0005, 0.1),
		gen.Float64Range(-0.05, 0.15),
		gen.Float64Range(0.05, 0.8),
	))

	properties.TestingRun(t)
}

// Feature: delta-hedger, Property 2: Implied volatility round trip
//
// Property: Pricing at a volatility and inverting the price recovers that
// volatility whenever the option carries meaningful time value.
func TestProperty_ImpliedVolRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	bs := BlackScholes{}

	properties.Property("ImpliedVol inverts Price", prop.ForAll(
		func(spot, moneyness, tte, vol float64, isCall bool) bool {
			typ := models.Put
			if isCall {
				typ = models.Call
			}
			strike := math.Round(spot*moneyness/50) * 50
			rate := 0.07
			price := bs.Price(spot, strike, tte, rate, vol, typ)
			if bs.Vega(spot, strike, tte, rate, vol) < 1 {
				return true
			}
			iv, err := bs.ImpliedVol(price, spot, strike, tte, rate, typ)
			if err != nil {
				return false
			}
			return math.Abs(iv-vol) < 1e-5
		},
		gen.Float64Range(15000, 25000),
		gen.Float64Range(0.95, 1.05),
		gen.Float64Range(0.002, 0.08),
		gen.Float64Range(0.08, 0.6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestImpliedVolRejectsBelowIntrinsic(t *testing.T) {
	bs := BlackScholes{}
	// Call 1000 points in the money quoted at 500.
	if _, err := bs.ImpliedVol(500, 23000, 22000, 0.01, 0.07, models.Call); err == nil {
		t.Fatalf("expected error for price below intrinsic value")
	}
	if _, err := bs.ImpliedVol(10, 22000, 22000, 0, 0.07, models.Call); err == nil {
		t.Fatalf("expected error at expiry")
	}
}

func TestOptionDeltaFallsBackToIntrinsic(t *testing.T) {
	bs := BlackScholes{}
	delta, iv := OptionDelta(bs, 500, 23000, 22000, 0.01, 0.07, models.Call)
	if delta != 1 || iv != 0 {
		t.Fatalf("delta = %v iv = %v, want intrinsic 1", delta, iv)
	}
	// At expiry no volatility applies.
	delta, iv = OptionDelta(bs, 1000, 21000, 22000, 0, 0.07, models.Put)
	if delta != -1 || iv != 0 {
		t.Fatalf("expiring ITM put delta = %v iv = %v, want -1", delta, iv)
	}
	delta, _ = OptionDelta(bs, 5, 23000, 22000, 0, 0.07, models.Put)
	if delta != 0 {
		t.Fatalf("expiring OTM put delta = %v, want 0", delta)
	}
}

func TestOptionDeltaMatchesClosedForm(t *testing.T) {
	bs := BlackScholes{}
	spot, strike, tte, rate, vol := 22000.0, 22300.0, 5.0/365, 0.065, 0.14
	price := bs.Price(spot, strike, tte, rate, vol, models.Call)

	delta, iv := OptionDelta(bs, price, spot, strike, tte, rate, models.Call)
	want := bs.Delta(spot, strike, tte, rate, vol, models.Call)
	if math.Abs(delta-want) > 1e-6 || math.Abs(iv-vol) > 1e-6 {
		t.Fatalf("delta = %v (want %v), iv = %v (want %v)", delta, want, iv, vol)
	}
	if delta <= 0 || delta >= 0.5 {
		t.Fatalf("OTM call delta out of range: %v", delta)
	}
}
