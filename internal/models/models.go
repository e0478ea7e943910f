// Package models defines the core data types of the hedging backtest.
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// OptionType represents an option leg (call or put).
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// OptionTypes lists both legs in a fixed order.
var OptionTypes = []OptionType{Call, Put}

// IsValid reports whether t is a known option type.
func (t OptionType) IsValid() bool {
	return t == Call || t == Put
}

// Name returns the long form used in logs.
func (t OptionType) Name() string {
	switch t {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	default:
		return string(t)
	}
}

// ParseOptionType accepts CE/PE as well as CALL/PUT in any case.
func ParseOptionType(s string) (OptionType, bool) {
	switch s {
	case "CE", "ce", "CALL", "call", "C", "c":
		return Call, true
	case "PE", "pe", "PUT", "put", "P", "p":
		return Put, true
	default:
		return "", false
	}
}

// Underlying is an index with a listed option strike grid.
type Underlying struct {
	Name string
	Base float64 // strike step
}

// RoundStrike rounds a spot price to the nearest listed strike.
func (u Underlying) RoundStrike(spot float64) float64 {
	return math.Round(spot/u.Base) * u.Base
}

// StrikesAround returns atm ± n strike steps in ascending order.
func (u Underlying) StrikesAround(atm float64, n int) []float64 {
	strikes := make([]float64, 0, 2*n+1)
	for i := -n; i <= n; i++ {
		strikes = append(strikes, atm+float64(i)*u.Base)
	}
	return strikes
}

// StrikeRange returns every strike step in [lo, hi].
func (u Underlying) StrikeRange(lo, hi float64) []float64 {
	var strikes []float64
	for k := u.RoundStrike(lo); k <= hi+u.Base/2; k += u.Base {
		strikes = append(strikes, k)
	}
	return strikes
}

// IndexBar is one minute of underlying index prices.
type IndexBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// OptionKey identifies one option price observation.
type OptionKey struct {
	Timestamp time.Time
	Expiry    time.Time
	Strike    float64
	Type      OptionType
}

// OptionQuote is a historical option close price.
type OptionQuote struct {
	Timestamp time.Time
	Expiry    time.Time
	Strike    float64
	Type      OptionType
	Close     float64
}

// Key returns the identifying key of the quote.
func (q OptionQuote) Key() OptionKey {
	return OptionKey{Timestamp: q.Timestamp, Expiry: q.Expiry, Strike: q.Strike, Type: q.Type}
}

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float returns a present NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Value: v, Valid: true}
}

// Ptr returns nil when absent.
func (n NullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// MarshalCSV implements gocsv.TypeMarshaller. Absent values are empty cells.
func (n NullFloat) MarshalCSV() (string, error) {
	if !n.Valid {
		return "", nil
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (n *NullFloat) UnmarshalCSV(s string) error {
	if s == "" || s == "NaN" || s == "nan" {
		*n = NullFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// MarshalJSON writes null when absent.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts null or a number.
func (n *NullFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}
