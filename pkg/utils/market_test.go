package utils

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("15:29")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if c.Hour != 15 || c.Minute != 29 {
		t.Fatalf("got %v", c)
	}
	if _, err := ParseClock("25:99"); err == nil {
		t.Fatalf("expected error for invalid clock")
	}
}

func TestClockOrdering(t *testing.T) {
	exit := MustParseClock("15:29")
	expiryDay := MustParseClock("14:40")

	if got := exit.Min(expiryDay); got != expiryDay {
		t.Errorf("Min = %v, want %v", got, expiryDay)
	}
	if !expiryDay.Before(exit) || exit.Before(expiryDay) {
		t.Errorf("Before ordering wrong")
	}
	if !exit.After(expiryDay) {
		t.Errorf("After ordering wrong")
	}
}

func TestClockOfUsesIST(t *testing.T) {
	// 04:00 UTC is 09:30 IST.
	ts := time.Date(2024, 2, 1, 4, 0, 0, 0, time.UTC)
	if got := ClockOf(ts); got != (Clock{Hour: 9, Minute: 30}) {
		t.Fatalf("ClockOf = %v, want 09:30", got)
	}
	if got := MarketOpen.On(ts); !got.Equal(time.Date(2024, 2, 1, 3, 45, 0, 0, time.UTC)) {
		t.Fatalf("On = %v", got)
	}
}

func TestExpiryInstant(t *testing.T) {
	d := time.Date(2024, 2, 1, 0, 0, 0, 0, IndiaLocation)
	got := ExpiryInstant(d)
	if ClockOf(got) != MarketClose || got.Day() != 1 {
		t.Fatalf("ExpiryInstant = %v", got)
	}
}
