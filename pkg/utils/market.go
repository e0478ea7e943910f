package utils

import (
	"fmt"
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Clock is a wall-clock time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// Market session boundaries (IST).
var (
	MarketOpen  = Clock{Hour: 9, Minute: 15}
	MarketClose = Clock{Hour: 15, Minute: 30}
)

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParseClock is ParseClock for constants.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the IST time of day of t, ignoring seconds.
func ClockOf(t time.Time) Clock {
	t = t.In(IndiaLocation)
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is strictly earlier than o.
func (c Clock) Before(o Clock) bool {
	return c.minutes() < o.minutes()
}

// After reports whether c is strictly later than o.
func (c Clock) After(o Clock) bool {
	return c.minutes() > o.minutes()
}

// Min returns the earlier of two clocks.
func (c Clock) Min(o Clock) Clock {
	if o.Before(c) {
		return o
	}
	return c
}

// On returns the instant at clock c on t's IST date.
func (c Clock) On(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, IndiaLocation)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TradingDate truncates t to midnight of its IST date.
func TradingDate(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IndiaLocation)
}

// ExpiryInstant is the settlement instant of an expiry date (market close IST).
func ExpiryInstant(date time.Time) time.Time {
	return MarketClose.On(date)
}
