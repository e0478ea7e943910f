package hedging

import (
	"errors"
	"math"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
)

// ErrUnbalancedEntry is returned when the achieved call and put deltas differ
// by more than the asymmetry limit.
var ErrUnbalancedEntry = errors.New("call and put deltas too far apart")

// ExactMatchTolerance is how close a strike's delta must be to the target to
// be taken alone.
const ExactMatchTolerance = 0.01

// asymmetryFactor scales delta_threshold_pct into the largest accepted gap
// between the call and put deltas achieved at entry.
const asymmetryFactor = 0.8

// Selection is the strike choice for one entry.
type Selection struct {
	Calls     []models.Leg
	Puts      []models.Leg
	CallDelta float64 // achieved absolute delta of the call legs
	PutDelta  float64 // achieved absolute delta of the put legs
}

// StrikeSelector picks short strikes whose delta matches a target.
type StrikeSelector struct {
	target       float64
	deltaRange   DeltaRange
	thresholdPct float64
}

// NewStrikeSelector validates the target against the range.
func NewStrikeSelector(target float64, r DeltaRange, thresholdPct float64) (*StrikeSelector, error) {
	if err := checkTarget(target, r); err != nil {
		return nil, err
	}
	return &StrikeSelector{target: target, deltaRange: r, thresholdPct: thresholdPct}, nil
}

type candidate struct {
	strike float64
	delta  float64 // absolute
}

// Select chooses call and put legs from the snapshot. It fails with
// ErrNoStrikesInRange when a side has no strike in the delta range and with
// ErrUnbalancedEntry when the two sides end up too far apart.
func (s *StrikeSelector) Select(snap models.ChainSnapshot) (Selection, error) {
	calls := s.candidates(snap, models.Call)
	puts := s.candidates(snap, models.Put)
	if len(calls) == 0 || len(puts) == 0 {
		return Selection{}, apperrors.ErrNoStrikesInRange
	}

	sel := Selection{}
	sel.Calls, sel.CallDelta = s.legs(calls)
	sel.Puts, sel.PutDelta = s.legs(puts)

	if math.Abs(sel.CallDelta-sel.PutDelta) > s.thresholdPct*asymmetryFactor {
		return Selection{}, ErrUnbalancedEntry
	}
	return sel, nil
}

func (s *StrikeSelector) candidates(snap models.ChainSnapshot, t models.OptionType) []candidate {
	var out []candidate
	for _, row := range snap.Rows {
		d := math.Abs(row.Delta(t))
		if d == 0 || math.IsNaN(d) || !s.deltaRange.Contains(d) {
			continue
		}
		out = append(out, candidate{strike: row.Strike, delta: d})
	}
	return out
}

// legs returns the legs for one side and the delta they achieve together.
func (s *StrikeSelector) legs(cands []candidate) ([]models.Leg, float64) {
	closest := cands[0]
	for _, c := range cands[1:] {
		if math.Abs(c.delta-s.target) < math.Abs(closest.delta-s.target) {
			closest = c
		}
	}
	if math.Abs(closest.delta-s.target) <= ExactMatchTolerance {
		return []models.Leg{{Strike: closest.strike, Ratio: 1}}, closest.delta
	}

	lower, upper, hasLower, hasUpper := candidate{}, candidate{}, false, false
	for _, c := range cands {
		if c.delta <= s.target && (!hasLower || c.delta > lower.delta) {
			lower, hasLower = c, true
		}
		if c.delta >= s.target && (!hasUpper || c.delta < upper.delta) {
			upper, hasUpper = c, true
		}
	}
	if !hasLower {
		lower = upper
	}
	if !hasUpper {
		upper = lower
	}

	if lower.strike == upper.strike || upper.delta == lower.delta {
		legs := []models.Leg{{Strike: lower.strike, Ratio: 0.5}, {Strike: upper.strike, Ratio: 0.5}}
		return legs, (lower.delta + upper.delta) / 2
	}

	ratioLower := (upper.delta - s.target) / (upper.delta - lower.delta)
	ratioUpper := (s.target - lower.delta) / (upper.delta - lower.delta)
	legs := []models.Leg{{Strike: lower.strike, Ratio: ratioLower}, {Strike: upper.strike, Ratio: ratioUpper}}
	return legs, ratioLower*lower.delta + ratioUpper*upper.delta
}
