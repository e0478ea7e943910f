package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// StrikeGreeks is one strike of an option chain snapshot.
type StrikeGreeks struct {
	Strike    float64
	CallPrice float64
	PutPrice  float64
	CallDelta float64
	PutDelta  float64 // signed, negative for puts
}

// Delta returns the delta of the given leg.
func (s StrikeGreeks) Delta(t OptionType) float64 {
	if t == Call {
		return s.CallDelta
	}
	return s.PutDelta
}

// Price returns the price of the given leg.
func (s StrikeGreeks) Price(t OptionType) float64 {
	if t == Call {
		return s.CallPrice
	}
	return s.PutPrice
}

// ChainSnapshot is the option chain at one minute with deltas attached.
type ChainSnapshot struct {
	Timestamp    time.Time
	Expiry       time.Time
	Spot         float64
	TimeToExpiry float64
	Rate         float64
	Rows         []StrikeGreeks // ascending by strike
}

// AtmInfo is the per-minute at-the-money reference used for hedging.
type AtmInfo struct {
	Timestamp    time.Time
	Spot         float64
	TimeToExpiry float64
	Strike       float64
	CallPrice    float64
	PutPrice     float64
	Rate         float64
	CallIV       float64
	PutIV        float64
	CallDelta    float64
	PutDelta     float64
}

// Price returns the ATM price of the given leg.
func (a AtmInfo) Price(t OptionType) float64 {
	if t == Call {
		return a.CallPrice
	}
	return a.PutPrice
}

// Delta returns the ATM delta of the given leg.
func (a AtmInfo) Delta(t OptionType) float64 {
	if t == Call {
		return a.CallDelta
	}
	return a.PutDelta
}

// Leg is one strike of the main position with its share of the quantity.
type Leg struct {
	Strike float64
	Ratio  float64
}

// FormatLegs renders legs as "strike:ratio|strike:ratio".
func FormatLegs(legs []Leg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = strconv.FormatFloat(l.Strike, 'f', -1, 64) + ":" + strconv.FormatFloat(l.Ratio, 'f', -1, 64)
	}
	return strings.Join(parts, "|")
}

// MainPosition is the short strangle entered at the start of a segment.
type MainPosition struct {
	Calls        []Leg
	Puts         []Leg
	Quantity     int // negative for a short position
	EntryPremium float64
}

// Legs returns the legs of the given option type.
func (p MainPosition) Legs(t OptionType) []Leg {
	if t == Call {
		return p.Calls
	}
	return p.Puts
}

// HedgePosition is one entry of the hedge book.
type HedgePosition struct {
	Type     OptionType
	Strike   float64
	Quantity int
}

// HedgeBook maps option type to strike to signed quantity.
type HedgeBook map[OptionType]map[float64]int

// NewHedgeBook returns an empty hedge book.
func NewHedgeBook() HedgeBook {
	return HedgeBook{Call: {}, Put: {}}
}

// Add adjusts the quantity held at (t, strike) by qty.
func (b HedgeBook) Add(t OptionType, strike float64, qty int) {
	if b[t] == nil {
		b[t] = make(map[float64]int)
	}
	b[t][strike] += qty
}

// Total returns the summed quantity across strikes for one leg.
func (b HedgeBook) Total(t OptionType) int {
	total := 0
	for _, q := range b[t] {
		total += q
	}
	return total
}

// Positions returns all entries ordered by type then strike.
func (b HedgeBook) Positions() []HedgePosition {
	var out []HedgePosition
	for _, t := range OptionTypes {
		strikes := make([]float64, 0, len(b[t]))
		for k := range b[t] {
			strikes = append(strikes, k)
		}
		sort.Float64s(strikes)
		for _, k := range strikes {
			out = append(out, HedgePosition{Type: t, Strike: k, Quantity: b[t][k]})
		}
	}
	return out
}

// Clone returns a deep copy.
func (b HedgeBook) Clone() HedgeBook {
	c := NewHedgeBook()
	for t, strikes := range b {
		for k, q := range strikes {
			c.Add(t, k, q)
		}
	}
	return c
}

// String renders the book as "CE:22000=-120|PE:21900=-80".
func (b HedgeBook) String() string {
	positions := b.Positions()
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%s:%s=%d", p.Type, strconv.FormatFloat(p.Strike, 'f', -1, 64), p.Quantity)
	}
	return strings.Join(parts, "|")
}

// SegmentStatus is the per-minute state of the segment state machine.
type SegmentStatus string

const (
	StatusNoRebalance      SegmentStatus = "NO_REBALANCE"
	StatusRebalanced       SegmentStatus = "REBALANCED"
	StatusExitTimeReached  SegmentStatus = "EXIT_TIME_REACHED"
	StatusHedgeCapBreached SegmentStatus = "HEDGE_CAP_BREACHED"
	StatusDataExhausted    SegmentStatus = "DATA_EXHAUSTED"
)

// Terminal reports whether the status ends a segment.
func (s SegmentStatus) Terminal() bool {
	switch s {
	case StatusExitTimeReached, StatusHedgeCapBreached, StatusDataExhausted:
		return true
	default:
		return false
	}
}

// SegmentState is the record of one simulated minute.
type SegmentState struct {
	Timestamp        time.Time
	Status           SegmentStatus
	CallDelta        float64 // ratio-weighted delta of one unit of the call legs
	PutDelta         float64 // ratio-weighted delta of one unit of the put legs
	MainDelta        float64
	HedgeDelta       float64
	NetDelta         float64
	NeutralizedDelta NullFloat
	Premium          float64
	MTM              NullFloat
	Hedges           string
}

// DayRow is one line of a persisted day result file.
type DayRow struct {
	Timestamp        time.Time     `csv:"timestamp" json:"timestamp"`
	Segment          int           `csv:"segment" json:"segment"`
	Spot             float64       `csv:"spot" json:"spot"`
	Expiry           time.Time     `csv:"expiry" json:"expiry"`
	TimeToExpiry     float64       `csv:"time_to_expiry" json:"time_to_expiry"`
	Rate             float64       `csv:"rate" json:"rate"`
	AtmStrike        float64       `csv:"atm_strike" json:"atm_strike"`
	CallLegs         string        `csv:"call_legs" json:"call_legs"`
	PutLegs          string        `csv:"put_legs" json:"put_legs"`
	CallDelta        float64       `csv:"call_delta" json:"call_delta"`
	PutDelta         float64       `csv:"put_delta" json:"put_delta"`
	MainDelta        float64       `csv:"main_delta" json:"main_delta"`
	HedgeDelta       float64       `csv:"hedge_delta" json:"hedge_delta"`
	NetDelta         float64       `csv:"net_delta" json:"net_delta"`
	NeutralizedDelta NullFloat     `csv:"neutralized_delta" json:"neutralized_delta"`
	Premium          float64       `csv:"premium" json:"premium"`
	MTM              NullFloat     `csv:"mtm" json:"mtm"`
	Hedges           string        `csv:"hedges" json:"hedges"`
	Status           SegmentStatus `csv:"status" json:"status"`
}

// DayResult is every segment simulated on one trading day.
type DayResult struct {
	Date     time.Time
	Expiry   time.Time
	Segments int
	Rows     []DayRow
}

// Empty reports whether no segment was simulated.
func (d *DayResult) Empty() bool {
	return d == nil || len(d.Rows) == 0
}
