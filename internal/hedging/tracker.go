package hedging

import (
	"delta-hedger/internal/chain"
	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/internal/pricing"
)

// Exposure is the delta of the book at one minute.
type Exposure struct {
	CallDelta float64 // per-unit delta of the call legs
	PutDelta  float64 // per-unit delta of the put legs
	Main      float64
	Hedge     float64
	Net       float64
}

// DeltaTracker measures position deltas from observed prices. Every delta is
// re-derived from the minute's price through implied vol so main and hedge
// strikes are treated alike.
type DeltaTracker struct {
	quotes chain.Quotes
	oracle pricing.Oracle
}

// NewDeltaTracker creates a tracker reading prices from quotes.
func NewDeltaTracker(quotes chain.Quotes, oracle pricing.Oracle) *DeltaTracker {
	return &DeltaTracker{quotes: quotes, oracle: oracle}
}

func (d *DeltaTracker) quote(atm models.AtmInfo, t models.OptionType, strike float64) (price, delta float64, err error) {
	price, err = d.quotes.Price(atm.Timestamp, t, strike)
	if err != nil {
		return 0, 0, err
	}
	delta, _ = pricing.OptionDelta(d.oracle, price, atm.Spot, strike, atm.TimeToExpiry, atm.Rate, t)
	return price, delta, nil
}

func (d *DeltaTracker) weighted(legs []models.Leg, atm models.AtmInfo, t models.OptionType) (price, delta float64, err error) {
	for _, leg := range legs {
		p, dl, err := d.quote(atm, t, leg.Strike)
		if err != nil {
			return 0, 0, apperrors.Wrapf(err, "main %s leg %.0f", t, leg.Strike)
		}
		price += leg.Ratio * p
		delta += leg.Ratio * dl
	}
	return price, delta, nil
}

// MainDelta returns the per-unit call and put deltas and the position delta.
func (d *DeltaTracker) MainDelta(pos models.MainPosition, atm models.AtmInfo) (call, put, main float64, err error) {
	if _, call, err = d.weighted(pos.Calls, atm, models.Call); err != nil {
		return 0, 0, 0, err
	}
	if _, put, err = d.weighted(pos.Puts, atm, models.Put); err != nil {
		return 0, 0, 0, err
	}
	return call, put, (call + put) * float64(pos.Quantity), nil
}

// HedgeDelta returns Σ quantity × delta over the hedge book.
func (d *DeltaTracker) HedgeDelta(book models.HedgeBook, atm models.AtmInfo) (float64, error) {
	total := 0.0
	for _, h := range book.Positions() {
		if h.Quantity == 0 {
			continue
		}
		_, delta, err := d.quote(atm, h.Type, h.Strike)
		if err != nil {
			return 0, apperrors.Wrapf(err, "hedge %s %.0f", h.Type, h.Strike)
		}
		total += float64(h.Quantity) * delta
	}
	return total, nil
}

// NetDelta measures main, hedge and net delta.
func (d *DeltaTracker) NetDelta(pos models.MainPosition, book models.HedgeBook, atm models.AtmInfo) (Exposure, error) {
	call, put, main, err := d.MainDelta(pos, atm)
	if err != nil {
		return Exposure{}, err
	}
	hedge, err := d.HedgeDelta(book, atm)
	if err != nil {
		return Exposure{}, err
	}
	return Exposure{CallDelta: call, PutDelta: put, Main: main, Hedge: hedge, Net: main + hedge}, nil
}

// MarkToMarket values the position and hedge book at the minute's prices.
func (d *DeltaTracker) MarkToMarket(pos models.MainPosition, book models.HedgeBook, atm models.AtmInfo) (float64, error) {
	callPx, _, err := d.weighted(pos.Calls, atm, models.Call)
	if err != nil {
		return 0, err
	}
	putPx, _, err := d.weighted(pos.Puts, atm, models.Put)
	if err != nil {
		return 0, err
	}
	value := (callPx + putPx) * float64(pos.Quantity)
	for _, h := range book.Positions() {
		if h.Quantity == 0 {
			continue
		}
		px, err := d.quotes.Price(atm.Timestamp, h.Type, h.Strike)
		if err != nil {
			return 0, apperrors.Wrapf(err, "hedge %s %.0f", h.Type, h.Strike)
		}
		value += px * float64(h.Quantity)
	}
	return value, nil
}

// EntryPremium is the signed premium of opening pos at the snapshot prices.
func EntryPremium(sel Selection, snap models.ChainSnapshot, qty int) float64 {
	prices := make(map[float64]models.StrikeGreeks, len(snap.Rows))
	for _, r := range snap.Rows {
		prices[r.Strike] = r
	}
	total := 0.0
	for _, l := range sel.Calls {
		total += l.Ratio * prices[l.Strike].CallPrice
	}
	for _, l := range sel.Puts {
		total += l.Ratio * prices[l.Strike].PutPrice
	}
	return total * float64(qty)
}
