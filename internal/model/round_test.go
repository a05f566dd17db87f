package model

import (
	"math"
	"testing"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{1.234, 1.23},
		{1.236, 1.24},
		{0.125, 0.12}, // exact tie, even
		{0.375, 0.38}, // exact tie, even
		{-0.125, -0.12},
		{2.675, 2.67}, // stored below the tie
		{1.005, 1},    // stored below the tie
		{-4.0404, -4.04},
		{15000, 15000},
		{1e20 + 0.5, 1e20},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRound2_NonFinitePassThrough(t *testing.T) {
	if got := Round2(math.Inf(1)); !math.IsInf(got, 1) {
		t.Errorf("Round2(+Inf) = %v", got)
	}
	if got := Round2(math.Inf(-1)); !math.IsInf(got, -1) {
		t.Errorf("Round2(-Inf) = %v", got)
	}
	if got := Round2(math.NaN()); !math.IsNaN(got) {
		t.Errorf("Round2(NaN) = %v", got)
	}
	if Finite(math.Inf(1)) || Finite(math.NaN()) || !Finite(math.MaxFloat64) {
		t.Error("Finite misclassifies")
	}
}
