package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestPriceBar_Validate(t *testing.T) {
	good := PriceBar{TS: day(0), Open: 100, High: 105, Low: 95, Close: 102, Volume: 10}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid bar, got %v", err)
	}

	cases := map[string]PriceBar{
		"no timestamp":     {Open: 1, High: 1, Low: 1, Close: 1},
		"high below low":   {TS: day(0), Open: 100, High: 90, Low: 95, Close: 92},
		"zero close":       {TS: day(0), Open: 100, High: 105, Low: 95, Close: 0},
		"nan open":         {TS: day(0), Open: math.NaN(), High: 105, Low: 95, Close: 100},
		"close above high": {TS: day(0), Open: 100, High: 105, Low: 95, Close: 106},
		"negative volume":  {TS: day(0), Open: 100, High: 105, Low: 95, Close: 100, Volume: -1},
	}
	for name, b := range cases {
		if err := b.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	if d := DaysBetween(day(0), day(45)); d != 45 {
		t.Errorf("expected 45 days, got %d", d)
	}
	if d := DaysBetween(day(3), day(3)); d != 0 {
		t.Errorf("expected 0 days, got %d", d)
	}
}

func TestTrade_CloseAndHolding(t *testing.T) {
	tr := Trade{Side: SideLong, EntryTime: day(0), EntryPrice: 100}
	if !tr.IsOpen() {
		t.Fatal("new trade should be open")
	}
	if tr.HoldingDays() != 0 {
		t.Errorf("open trade holding days should be 0, got %d", tr.HoldingDays())
	}

	tr.Close(day(30), 110)
	if tr.IsOpen() {
		t.Fatal("trade should be closed after Close")
	}
	if *tr.ExitPrice != 110 {
		t.Errorf("expected exit price 110, got %v", *tr.ExitPrice)
	}
	if tr.HoldingDays() != 30 {
		t.Errorf("expected 30 holding days, got %d", tr.HoldingDays())
	}
}

func TestRegime_String(t *testing.T) {
	if RegimeNone.String() != "None" {
		t.Errorf("expected None, got %q", RegimeNone.String())
	}
	if RegimeGolden.String() != "Golden" {
		t.Errorf("expected Golden, got %q", RegimeGolden.String())
	}
}
