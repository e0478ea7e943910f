package utils

import "testing"

func TestFormatIndianCurrency(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "₹0.00"},
		{999.5, "₹999.50"},
		{123456.789, "₹1,23,456.79"},
		{-10000000, "-₹1,00,00,000.00"},
	}
	for _, c := range cases {
		if got := FormatIndianCurrency(c.in); got != c.want {
			t.Errorf("FormatIndianCurrency(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	if got := FormatCompact(12000000); got != "1.20 Cr" {
		t.Errorf("got %q", got)
	}
	if got := FormatCompact(-250000); got != "-2.50 L" {
		t.Errorf("got %q", got)
	}
	if got := FormatQuantity(-45123); got != "-45,123" {
		t.Errorf("got %q", got)
	}
	if got := FormatPercent(1.234); got != "+1.23%" {
		t.Errorf("got %q", got)
	}
}
