package hedging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"delta-hedger/internal/chain"
	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

// DayRunner simulates trading days one after another. It keeps the price
// cache of the current expiry across days and is not safe for concurrent use.
type DayRunner struct {
	store      store.PriceStore
	underlying models.Underlying
	params     Params
	oracle     pricing.Oracle
	selector   *StrikeSelector
	logger     zerolog.Logger

	expiries []time.Time
	cache    *chain.PriceCache
}

// NewDayRunner validates params and creates a runner.
func NewDayRunner(s store.PriceStore, u models.Underlying, params Params, oracle pricing.Oracle, logger zerolog.Logger) (*DayRunner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	selector, err := NewStrikeSelector(params.TargetDelta, params.DeltaRange, params.DeltaThresholdPct)
	if err != nil {
		return nil, err
	}
	return &DayRunner{
		store:      s,
		underlying: u,
		params:     params,
		oracle:     oracle,
		selector:   selector,
		logger:     logging.WithUnderlying(logger, u.Name),
	}, nil
}

// Cache returns the price cache of the last simulated expiry.
func (r *DayRunner) Cache() *chain.PriceCache {
	return r.cache
}

// RunDate loads the index bars of date and simulates the day.
func (r *DayRunner) RunDate(ctx context.Context, date time.Time) (*models.DayResult, error) {
	day := utils.TradingDate(date)
	bars, err := r.store.IndexPrices(ctx, r.underlying.Name, day, day.Add(24*time.Hour-time.Second))
	if err != nil {
		return nil, apperrors.NewDayError(day, apperrors.StageFetch, err)
	}
	if len(bars) == 0 {
		return &models.DayResult{Date: day}, nil
	}
	return r.RunDay(ctx, bars)
}

// RunDay simulates consecutive segments over one day of index bars. A day
// whose last bar is before the scan exit time yields an empty result.
func (r *DayRunner) RunDay(ctx context.Context, bars []models.IndexBar) (*models.DayResult, error) {
	bars = r.afterStart(bars)
	if len(bars) == 0 {
		return &models.DayResult{}, nil
	}
	day := utils.TradingDate(bars[0].Timestamp)
	logger := logging.WithDay(logging.FromContext(ctx, r.logger), day)
	result := &models.DayResult{Date: day}

	sizing, err := r.params.SizeFor(bars[0].Open)
	if err != nil {
		return nil, apperrors.NewDayError(day, apperrors.StageEntry, err)
	}
	if sizing.StartingQty <= 0 {
		return nil, apperrors.NewDayError(day, apperrors.StageEntry,
			apperrors.NewValidationError("starting_qty", sizing.StartingQty, "exposure too small for index level"))
	}

	expiry, err := r.expiryFor(ctx, day)
	if err != nil {
		return nil, apperrors.NewDayError(day, apperrors.StageExpiry, err)
	}
	result.Expiry = expiry
	if r.cache == nil || !r.cache.Expiry().Equal(expiry) {
		logger.Debug().Time("expiry", expiry).Msg("New expiry, resetting price cache")
		r.cache = chain.NewPriceCache(r.store, r.underlying, expiry, r.logger)
	}

	scanExit := r.params.ScanExitTime
	if chain.TimeToExpiry(expiry, bars[0].Timestamp) < r.params.ExpiryDayTTE {
		scanExit = scanExit.Min(r.params.ExpiryDayExitTime)
	}
	if last := bars[len(bars)-1].Timestamp; utils.ClockOf(last).Before(scanExit) {
		logger.Warn().Str("last_bar", utils.ClockOf(last).String()).Str("scan_exit", scanExit.String()).
			Msg("Day ends before scan exit, skipping")
		return result, nil
	}

	if err := r.cache.Load(ctx, bars, chain.CacheStrikes(r.underlying, bars, r.params.CacheStrikes)); err != nil {
		return nil, apperrors.NewDayError(day, apperrors.StageFetch, err)
	}
	atm, err := chain.BuildAtmRolling(r.underlying, bars, expiry, r.cache, r.oracle)
	if err != nil {
		return nil, apperrors.NewDayError(day, apperrors.StageAtm, err)
	}

	tracker := NewDeltaTracker(r.cache, r.oracle)
	sim := NewSegmentSimulator(tracker, SegmentConfig{Sizing: sizing, ExitTime: scanExit}, logger)

	for start := 0; start < len(bars) && utils.ClockOf(bars[start].Timestamp).Before(scanExit); {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewDayError(day, apperrors.StageSegment, err)
		}

		pos, ok, err := r.enter(ctx, bars[start:], atm[start], expiry, -sizing.StartingQty)
		if err != nil {
			return nil, apperrors.NewDayError(day, apperrors.StageEntry, err)
		}
		if !ok {
			start++
			continue
		}

		seg, err := sim.Run(result.Segments, pos, atm[start:])
		if err != nil {
			return nil, apperrors.NewDayError(day, apperrors.StageSegment, err)
		}
		result.Rows = append(result.Rows, dayRows(seg, atm[start:], expiry)...)
		result.Segments++

		next := start + len(seg.States) - 1
		if next <= start {
			next = start + 1
		}
		start = next
	}

	logger.Info().Int("segments", result.Segments).Int("rows", len(result.Rows)).Msg("Day simulated")
	return result, nil
}

func (r *DayRunner) afterStart(bars []models.IndexBar) []models.IndexBar {
	out := make([]models.IndexBar, 0, len(bars))
	for _, b := range bars {
		if utils.ClockOf(b.Timestamp).After(r.params.StartAfter) {
			out = append(out, b)
		}
	}
	return out
}

func (r *DayRunner) expiryFor(ctx context.Context, day time.Time) (time.Time, error) {
	if r.expiries == nil {
		expiries, err := r.store.Expiries(ctx, r.underlying.Name)
		if err != nil {
			return time.Time{}, err
		}
		r.expiries = expiries
	}
	return chain.NextExpiry(r.expiries, day)
}

// enter builds the entry snapshot at the first bar and selects strikes.
// Strikes not yet cached are fetched with padding for the rest of the day.
func (r *DayRunner) enter(ctx context.Context, bars []models.IndexBar, atm models.AtmInfo, expiry time.Time, qty int) (models.MainPosition, bool, error) {
	strikes := r.underlying.StrikesAround(atm.Strike, r.params.EntryStrikes)
	if missing := r.cache.Missing(atm.Timestamp, strikes); len(missing) > 0 {
		pad := float64(r.params.MissedStrikePadding) * r.underlying.Base
		wider := r.underlying.StrikeRange(strikes[0]-pad, strikes[len(strikes)-1]+pad)
		if err := r.cache.Load(ctx, bars, wider); err != nil {
			return models.MainPosition{}, false, err
		}
	}

	snap, err := chain.BuildSnapshot(atm, expiry, strikes, r.cache, r.oracle)
	if err != nil {
		return models.MainPosition{}, false, err
	}
	sel, err := r.selector.Select(snap)
	if err != nil {
		r.logger.Debug().Err(err).Time("ts", atm.Timestamp).Msg("No entry strikes, moving to next minute")
		return models.MainPosition{}, false, nil
	}
	return models.MainPosition{
		Calls:        sel.Calls,
		Puts:         sel.Puts,
		Quantity:     qty,
		EntryPremium: EntryPremium(sel, snap, qty),
	}, true, nil
}

func dayRows(seg *Segment, atm []models.AtmInfo, expiry time.Time) []models.DayRow {
	calls := models.FormatLegs(seg.Position.Calls)
	puts := models.FormatLegs(seg.Position.Puts)
	rows := make([]models.DayRow, len(seg.States))
	for i, st := range seg.States {
		a := atm[i]
		rows[i] = models.DayRow{
			Timestamp:        st.Timestamp,
			Segment:          seg.Index,
			Spot:             a.Spot,
			Expiry:           expiry,
			TimeToExpiry:     a.TimeToExpiry,
			Rate:             a.Rate,
			AtmStrike:        a.Strike,
			CallLegs:         calls,
			PutLegs:          puts,
			CallDelta:        st.CallDelta,
			PutDelta:         st.PutDelta,
			MainDelta:        st.MainDelta,
			HedgeDelta:       st.HedgeDelta,
			NetDelta:         st.NetDelta,
			NeutralizedDelta: st.NeutralizedDelta,
			Premium:          st.Premium,
			MTM:              st.MTM,
			Hedges:           st.Hedges,
			Status:           st.Status,
		}
	}
	return rows
}
