// Package hedging simulates a delta-hedged short strangle minute by minute.
package hedging

import (
	"fmt"
	"math"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/pkg/utils"
)

// DeltaRange bounds the absolute delta of strikes eligible for entry.
type DeltaRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether d lies inside the range, bounds included.
func (r DeltaRange) Contains(d float64) bool {
	return d >= r.Low && d <= r.High
}

// Params are the engine parameters of one backtest run.
type Params struct {
	StartAfter        utils.Clock `json:"start_after"`
	ScanExitTime      utils.Clock `json:"scan_exit_time"`
	ExpiryDayExitTime utils.Clock `json:"expiry_day_exit_time"`
	ExpiryDayTTE      float64     `json:"expiry_day_tte"`

	StartingExposure  float64    `json:"starting_exposure"`
	MaxHedgeRatio     float64    `json:"max_hedge_ratio"`
	DeltaRange        DeltaRange `json:"delta_range"`
	TargetDelta       float64    `json:"target_delta"`
	DeltaThresholdPct float64    `json:"delta_threshold_pct"`

	EntryStrikes        int `json:"entry_strikes"`
	CacheStrikes        int `json:"cache_strikes"`
	MissedStrikePadding int `json:"missed_strike_padding"`
}

// DefaultParams returns the parameters the strategy was researched with.
func DefaultParams() Params {
	return Params{
		StartAfter:          utils.MustParseClock("09:15"),
		ScanExitTime:        utils.MustParseClock("15:29"),
		ExpiryDayExitTime:   utils.MustParseClock("14:40"),
		ExpiryDayTTE:        0.0008,
		StartingExposure:    10_000_000,
		MaxHedgeRatio:       0.2,
		DeltaRange:          DeltaRange{Low: 0.01, High: 0.25},
		TargetDelta:         0.15,
		DeltaThresholdPct:   0.02,
		EntryStrikes:        30,
		CacheStrikes:        30,
		MissedStrikePadding: 10,
	}
}

// Validate checks the parameters before any day is simulated.
func (p Params) Validate() error {
	r := p.DeltaRange
	if !(r.Low > 0 && r.Low < r.High && r.High < 1) {
		return apperrors.NewValidationError("delta_range", r, "must satisfy 0 < low < high < 1")
	}
	if err := checkTarget(p.TargetDelta, r); err != nil {
		return err
	}
	if !(p.DeltaThresholdPct > 0) {
		return apperrors.NewValidationError("delta_threshold_pct", p.DeltaThresholdPct, "must be positive")
	}
	if !(p.MaxHedgeRatio > 0) {
		return apperrors.NewValidationError("max_hedge_ratio", p.MaxHedgeRatio, "must be positive")
	}
	if !(p.StartingExposure > 0) || math.IsInf(p.StartingExposure, 0) {
		return apperrors.NewValidationError("starting_exposure", p.StartingExposure, "must be a positive amount")
	}
	if p.EntryStrikes < 1 || p.CacheStrikes < p.EntryStrikes {
		return apperrors.NewValidationError("entry_strikes", p.EntryStrikes, "must be at least 1 and not exceed cache_strikes")
	}
	if p.MissedStrikePadding < 0 {
		return apperrors.NewValidationError("missed_strike_padding", p.MissedStrikePadding, "must not be negative")
	}
	if !p.StartAfter.Before(p.ScanExitTime) {
		return apperrors.NewValidationError("scan_exit_time", p.ScanExitTime.String(), "must be after start_after")
	}
	return nil
}

func checkTarget(target float64, r DeltaRange) error {
	if r.Contains(target) {
		return nil
	}
	ve := apperrors.NewValidationError("target_delta", target, fmt.Sprintf("outside delta range [%g, %g]", r.Low, r.High))
	return fmt.Errorf("%w: %w", apperrors.ErrInvalidDeltaRange, ve)
}

// Sizing is the position sizing derived from the first bar of a day.
type Sizing struct {
	StartingQty    int
	MaxHedgeQty    int
	DeltaThreshold float64
}

// SizeFor derives position size, hedge cap and rebalance threshold from the
// opening index level, which must be positive and finite.
func (p Params) SizeFor(open float64) (Sizing, error) {
	if !(open > 0) || math.IsInf(open, 1) {
		return Sizing{}, apperrors.NewValidationError("open", open, "index level must be positive and finite")
	}
	qty := int(p.StartingExposure / open)
	return Sizing{
		StartingQty:    qty,
		MaxHedgeQty:    int(float64(qty) * p.MaxHedgeRatio),
		DeltaThreshold: math.Abs(p.DeltaThresholdPct * float64(qty)),
	}, nil
}
