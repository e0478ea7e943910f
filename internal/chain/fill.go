package chain

import (
	"math"
	"sort"
)

// MinOptionPrice is the floor applied to repaired prices.
const MinOptionPrice = 0.05

// syntheticStrikes is how many near-ATM strikes average into the synthetic future.
const syntheticStrikes = 3

// StrikeQuote holds the call and put closes of one strike at one minute.
type StrikeQuote struct {
	Strike  float64
	Call    float64
	Put     float64
	HasCall bool
	HasPut  bool
}

// Complete reports whether both legs are priced.
func (q StrikeQuote) Complete() bool {
	return q.HasCall && q.HasPut
}

// SyntheticFuture averages K + C - P over the complete strikes nearest spot.
func SyntheticFuture(quotes []StrikeQuote, spot float64) (float64, bool) {
	var complete []StrikeQuote
	for _, q := range quotes {
		if q.Complete() {
			complete = append(complete, q)
		}
	}
	if len(complete) == 0 {
		return 0, false
	}
	sort.SliceStable(complete, func(i, j int) bool {
		return math.Abs(complete[i].Strike-spot) < math.Abs(complete[j].Strike-spot)
	})
	n := syntheticStrikes
	if len(complete) < n {
		n = len(complete)
	}
	sum := 0.0
	for _, q := range complete[:n] {
		sum += q.Strike + q.Call - q.Put
	}
	return sum / float64(n), true
}

// FillMissing repairs one minute of a chain so that every strike carries both
// legs. One-sided gaps are closed by put-call parity against the synthetic
// future, remaining gaps are interpolated across strikes with the edges
// copied from the nearest priced strike, and every price is floored at
// MinOptionPrice. quotes must be ascending by strike. It reports false when
// one leg has no price at any strike.
func FillMissing(quotes []StrikeQuote, spot float64) bool {
	if len(quotes) == 0 {
		return false
	}

	if future, ok := SyntheticFuture(quotes, spot); ok {
		for i := range quotes {
			q := &quotes[i]
			switch {
			case q.HasPut && !q.HasCall:
				q.Call, q.HasCall = q.Put+future-q.Strike, true
			case q.HasCall && !q.HasPut:
				q.Put, q.HasPut = q.Call-future+q.Strike, true
			}
		}
	}

	n := len(quotes)
	xs := make([]float64, n)
	calls := make([]float64, n)
	puts := make([]float64, n)
	hasCall := make([]bool, n)
	hasPut := make([]bool, n)
	for i, q := range quotes {
		xs[i] = q.Strike
		calls[i], hasCall[i] = q.Call, q.HasCall
		puts[i], hasPut[i] = q.Put, q.HasPut
	}
	if !Interpolate(xs, calls, hasCall) || !Interpolate(xs, puts, hasPut) {
		return false
	}

	for i := range quotes {
		quotes[i].Call = math.Max(calls[i], MinOptionPrice)
		quotes[i].Put = math.Max(puts[i], MinOptionPrice)
		quotes[i].HasCall, quotes[i].HasPut = true, true
	}
	return true
}
