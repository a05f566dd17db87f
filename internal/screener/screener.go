// Package screener filters instruments on the state of their latest
// annotated bar and ranks the survivors by how close price sits to the fast
// average.
package screener

import (
	"math"
	"sort"

	"trendlab/internal/model"
)

// Criteria are the thresholds a latest bar must clear.
type Criteria struct {
	// MaxDaysSinceCross bounds how old the Golden cross may be.
	MaxDaysSinceCross int `json:"max_days_since_cross" yaml:"max_days_since_cross"`
	// MinRSI is exclusive.
	MinRSI float64 `json:"min_rsi" yaml:"min_rsi"`
}

// DefaultCriteria: a Golden cross from the last ~two months with RSI above 60.
func DefaultCriteria() Criteria {
	return Criteria{
		MaxDaysSinceCross: 63,
		MinRSI:            60,
	}
}

// Candidate is an instrument whose latest bar passed the screen.
type Candidate struct {
	Instrument          string             `json:"instrument"`
	Bar                 model.AnnotatedBar `json:"bar"`
	RSI                 float64            `json:"rsi"`
	DistanceFromFast    float64            `json:"distance_from_fast"`
	DistanceFromFastPct float64            `json:"distance_from_fast_pct"`
}

// Evaluate applies c to the latest bar of an instrument. An RSI of NaN (not
// enough history) never passes.
func Evaluate(instrument string, bar model.AnnotatedBar, rsi float64, c Criteria) (Candidate, bool) {
	switch {
	case bar.Close < bar.EMASlow,
		bar.EMAFast <= bar.EMASlow,
		bar.Regime != model.RegimeGolden,
		bar.DaysSinceCross == nil || *bar.DaysSinceCross > c.MaxDaysSinceCross,
		math.IsNaN(rsi) || rsi <= c.MinRSI:
		return Candidate{}, false
	}

	dist := math.Abs(bar.Close - bar.EMAFast)
	return Candidate{
		Instrument:          instrument,
		Bar:                 bar,
		RSI:                 rsi,
		DistanceFromFast:    dist,
		DistanceFromFastPct: model.Round2(dist / bar.EMAFast * 100),
	}, true
}

// Rank orders candidates nearest-to-fast-average first. Ties keep input order.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceFromFastPct < out[j].DistanceFromFastPct
	})
	return out
}
