package crossover

import (
	"errors"
	"math"
	"testing"
	"time"

	"trendlab/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func day(n int) time.Time {
	return time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(ts time.Time, close float64) model.PriceBar {
	return model.PriceBar{TS: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000}
}

func dailyBars(closes ...float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = bar(day(i), c)
	}
	return bars
}

func mustDetect(t *testing.T, bars []model.PriceBar, fast, slow int) []model.AnnotatedBar {
	t.Helper()
	out, err := Detect(bars, fast, slow)
	if err != nil {
		t.Fatalf("Detect: unexpected error: %v", err)
	}
	if len(out) != len(bars) {
		t.Fatalf("Detect: expected %d bars, got %d", len(bars), len(out))
	}
	return out
}

func intPtrEq(p *int, want int) bool { return p != nil && *p == want }

// ────────────────────────────────────────────────────────────
// Scenarios
// ────────────────────────────────────────────────────────────

func TestDetect_FlatSeries_NoEvents(t *testing.T) {
	out := mustDetect(t, dailyBars(100, 100, 100, 100), 2, 3)

	if ev := Events(out); len(ev) != 0 {
		t.Fatalf("expected no events on a flat series, got %v", ev)
	}
	for i, b := range out {
		if b.Regime != model.RegimeNone {
			t.Errorf("bar %d: expected regime None, got %s", i, b.Regime)
		}
		if b.PctFromLastCross != 0 {
			t.Errorf("bar %d: expected pct 0 before any cross, got %v", i, b.PctFromLastCross)
		}
		if b.DaysSinceCross != nil {
			t.Errorf("bar %d: expected nil days before any cross, got %d", i, *b.DaysSinceCross)
		}
	}
}

func TestDetect_ConstantSeries_AnySpans(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 437.35
	}
	for _, spans := range [][2]int{{2, 3}, {5, 20}, {11, 51}, {20, 5}} {
		out := mustDetect(t, dailyBars(closes...), spans[0], spans[1])
		if ev := Events(out); len(ev) != 0 {
			t.Errorf("spans %v: expected no events, got %d", spans, len(ev))
		}
	}
}

func TestDetect_SteadyRise_SingleGolden(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 100*float64(i)/59
	}
	out := mustDetect(t, dailyBars(closes...), 5, 20)

	ev := Events(out)
	if len(ev) != 1 {
		t.Fatalf("expected exactly one event, got %d: %v", len(ev), ev)
	}
	if ev[0].Type != model.RegimeGolden {
		t.Fatalf("expected Golden, got %s", ev[0].Type)
	}
	if ev[0].Index >= 20 {
		t.Errorf("expected the Golden cross within the first 20 bars, got index %d", ev[0].Index)
	}

	lastBar := out[len(out)-1]
	if lastBar.Regime != model.RegimeGolden {
		t.Errorf("expected final regime Golden, got %s", lastBar.Regime)
	}
	if !intPtrEq(lastBar.DaysSinceCross, 59-ev[0].Index) {
		t.Errorf("expected %d days since cross on last bar, got %v", 59-ev[0].Index, lastBar.DaysSinceCross)
	}
}

func TestDetect_HandCalculated(t *testing.T) {
	// fast = EMA(1) = close, slow = EMA(3) with alpha 0.5.
	//
	//  bar  ts      close  slow      event   regime  pct     days
	//  0    d0      100    100       -       None    0       nil
	//  1    d1      90     95        Death   Death   0       0
	//  2    d2      100    97.5      Golden  Golden  0       0
	//  3    d9      110    103.75    -       Golden  10.00   7
	//  4    d10     99     101.375   Death   Death   0       0
	//  5    d14     95     98.1875   -       Death   -4.04   4
	bars := []model.PriceBar{
		bar(day(0), 100),
		bar(day(1), 90),
		bar(day(2), 100),
		bar(day(9), 110),
		bar(day(10), 99),
		bar(day(14), 95),
	}
	out := mustDetect(t, bars, 1, 3)

	wantSlow := []float64{100, 95, 97.5, 103.75, 101.375, 98.1875}
	wantCross := []model.Regime{"", model.RegimeDeath, model.RegimeGolden, "", model.RegimeDeath, ""}
	wantRegime := []model.Regime{"", model.RegimeDeath, model.RegimeGolden, model.RegimeGolden, model.RegimeDeath, model.RegimeDeath}
	wantPct := []float64{0, 0, 0, 10, 0, -4.04}
	wantDays := []int{-1, 0, 0, 7, 0, 4} // -1 = nil

	for i := range out {
		if math.Abs(out[i].EMASlow-wantSlow[i]) > 1e-9 {
			t.Errorf("bar %d: slow EMA %v, want %v", i, out[i].EMASlow, wantSlow[i])
		}
		if out[i].EMAFast != bars[i].Close {
			t.Errorf("bar %d: fast EMA %v, want close %v", i, out[i].EMAFast, bars[i].Close)
		}
		if out[i].Cross != wantCross[i] {
			t.Errorf("bar %d: cross %s, want %s", i, out[i].Cross, wantCross[i])
		}
		if out[i].Regime != wantRegime[i] {
			t.Errorf("bar %d: regime %s, want %s", i, out[i].Regime, wantRegime[i])
		}
		if out[i].PctFromLastCross != wantPct[i] {
			t.Errorf("bar %d: pct %v, want %v", i, out[i].PctFromLastCross, wantPct[i])
		}
		if wantDays[i] < 0 {
			if out[i].DaysSinceCross != nil {
				t.Errorf("bar %d: expected nil days, got %d", i, *out[i].DaysSinceCross)
			}
		} else if !intPtrEq(out[i].DaysSinceCross, wantDays[i]) {
			t.Errorf("bar %d: days %v, want %d", i, out[i].DaysSinceCross, wantDays[i])
		}
	}

	ev := Events(out)
	if len(ev) != 3 || ev[0].Index != 1 || ev[1].Index != 2 || ev[2].Index != 4 {
		t.Fatalf("unexpected events: %+v", ev)
	}
	if ev[2].Close != 99 || !ev[2].TS.Equal(day(10)) {
		t.Errorf("unexpected last event: %+v", ev[2])
	}
}

// ────────────────────────────────────────────────────────────
// Properties
// ────────────────────────────────────────────────────────────

func oscillating(n int) []model.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200 + 40*math.Sin(float64(i)/7) + 10*math.Sin(float64(i)/2.3)
	}
	return dailyBars(closes...)
}

func TestDetect_EventsAlternate(t *testing.T) {
	out := mustDetect(t, oscillating(400), 5, 20)
	ev := Events(out)
	if len(ev) < 4 {
		t.Fatalf("expected several events on an oscillating series, got %d", len(ev))
	}
	for i := 1; i < len(ev); i++ {
		if ev[i].Type == ev[i-1].Type {
			t.Fatalf("events %d and %d are both %s", i-1, i, ev[i].Type)
		}
	}
}

func TestDetect_ZeroPctAndDaysAtCrossBars(t *testing.T) {
	out := mustDetect(t, oscillating(400), 11, 51)
	for _, e := range Events(out) {
		b := out[e.Index]
		if b.PctFromLastCross != 0 {
			t.Errorf("cross bar %d: pct %v, want 0", e.Index, b.PctFromLastCross)
		}
		if !intPtrEq(b.DaysSinceCross, 0) {
			t.Errorf("cross bar %d: days %v, want 0", e.Index, b.DaysSinceCross)
		}
		if b.Regime != e.Type {
			t.Errorf("cross bar %d: regime %s, want %s", e.Index, b.Regime, e.Type)
		}
	}
}

func TestDetect_RegimeForwardFilled(t *testing.T) {
	out := mustDetect(t, oscillating(300), 5, 20)
	var current model.Regime
	for i, b := range out {
		if b.IsCross() {
			current = b.Cross
		}
		if b.Regime != current {
			t.Fatalf("bar %d: regime %s, want forward-filled %s", i, b.Regime, current)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Edge cases and errors
// ────────────────────────────────────────────────────────────

func TestDetect_SingleBar(t *testing.T) {
	out := mustDetect(t, dailyBars(123), 2, 3)
	if out[0].IsCross() || out[0].Regime != model.RegimeNone || out[0].DaysSinceCross != nil {
		t.Errorf("single bar should carry defaults, got %+v", out[0])
	}
	if out[0].EMAFast != 123 || out[0].EMASlow != 123 {
		t.Errorf("single bar EMAs should equal the close, got %v/%v", out[0].EMAFast, out[0].EMASlow)
	}
}

func TestDetect_SortsCopyOfInput(t *testing.T) {
	bars := []model.PriceBar{bar(day(2), 102), bar(day(0), 100), bar(day(1), 101)}
	out := mustDetect(t, bars, 2, 3)

	for i := 1; i < len(out); i++ {
		if !out[i].TS.After(out[i-1].TS) {
			t.Fatalf("output not ascending at %d", i)
		}
	}
	if !bars[0].TS.Equal(day(2)) {
		t.Error("caller's slice was reordered")
	}
}

func TestDetect_Errors(t *testing.T) {
	good := dailyBars(1, 2, 3)

	if _, err := Detect(good, 0, 3); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("zero fast span: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := Detect(good, 2, -1); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("negative slow span: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := Detect(nil, 2, 3); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("empty input: expected ErrInvalidParameter, got %v", err)
	}

	dup := []model.PriceBar{bar(day(0), 1), bar(day(0), 2)}
	if out, err := Detect(dup, 2, 3); !errors.Is(err, model.ErrInvalidInput) || out != nil {
		t.Errorf("duplicate ts: expected ErrInvalidInput and nil output, got %v / %v", err, out)
	}

	bad := dailyBars(10, 11)
	bad[1].High = bad[1].Low - 1
	if _, err := Detect(bad, 2, 3); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("high < low: expected ErrInvalidInput, got %v", err)
	}
}

func TestDetect_OverflowingMoveIsRejected(t *testing.T) {
	flat := func(ts time.Time, px float64) model.PriceBar {
		return model.PriceBar{TS: ts, Open: px, High: px, Low: px, Close: px}
	}
	// Death on bar 1 at 1e-300; bar 2 is 1e600 percent away from it.
	bars := []model.PriceBar{flat(day(0), 2), flat(day(1), 1e-300), flat(day(2), 1e300)}
	out, err := Detect(bars, 2, 3)
	if !errors.Is(err, model.ErrInvalidInput) || out != nil {
		t.Errorf("expected ErrInvalidInput and nil output, got %v / %v", err, out)
	}
}

func TestPair(t *testing.T) {
	if got := Pair(11, 51); got != "11 x 51" {
		t.Errorf("expected '11 x 51', got %q", got)
	}
}
