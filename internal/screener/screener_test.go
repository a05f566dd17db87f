package screener

import (
	"math"
	"testing"
	"time"

	"trendlab/internal/model"
)

func latest(close, fast, slow float64, regime model.Regime, days int) model.AnnotatedBar {
	d := days
	return model.AnnotatedBar{
		PriceBar:       model.PriceBar{TS: time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), Open: close, High: close, Low: close, Close: close},
		EMAFast:        fast,
		EMASlow:        slow,
		Regime:         regime,
		DaysSinceCross: &d,
	}
}

func TestEvaluate_Passes(t *testing.T) {
	c, ok := Evaluate("NSE|A", latest(105, 100, 95, model.RegimeGolden, 20), 65, DefaultCriteria())
	if !ok {
		t.Fatal("expected candidate to pass")
	}
	if c.Instrument != "NSE|A" || c.DistanceFromFast != 5 || c.DistanceFromFastPct != 5 {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	crit := DefaultCriteria()
	cases := map[string]struct {
		bar model.AnnotatedBar
		rsi float64
	}{
		"close below slow": {latest(94, 100, 95, model.RegimeGolden, 5), 70},
		"fast below slow":  {latest(105, 94, 95, model.RegimeGolden, 5), 70},
		"death regime":     {latest(105, 100, 95, model.RegimeDeath, 5), 70},
		"stale cross":      {latest(105, 100, 95, model.RegimeGolden, 64), 70},
		"rsi at threshold": {latest(105, 100, 95, model.RegimeGolden, 5), 60},
		"rsi not ready":    {latest(105, 100, 95, model.RegimeGolden, 5), math.NaN()},
	}
	for name, tc := range cases {
		if _, ok := Evaluate("X", tc.bar, tc.rsi, crit); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}

	noCross := latest(105, 100, 95, model.RegimeGolden, 0)
	noCross.DaysSinceCross = nil
	if _, ok := Evaluate("X", noCross, 70, crit); ok {
		t.Error("bar without a cross should be rejected")
	}
}

func TestRank(t *testing.T) {
	in := []Candidate{
		{Instrument: "C", DistanceFromFastPct: 3.1},
		{Instrument: "A", DistanceFromFastPct: 0.4},
		{Instrument: "B", DistanceFromFastPct: 3.1},
	}
	out := Rank(in)
	want := []string{"A", "C", "B"}
	for i, w := range want {
		if out[i].Instrument != w {
			t.Fatalf("position %d: got %s, want %s", i, out[i].Instrument, w)
		}
	}
	if in[0].Instrument != "C" {
		t.Error("Rank reordered its input")
	}
}
