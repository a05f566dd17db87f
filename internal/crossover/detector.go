// Package crossover detects golden and death crosses between a fast and a
// slow exponential moving average and annotates every bar with the regime in
// force and its distance from the last cross.
//
// By convention the fast span is shorter than the slow one (e.g. 11 x 51);
// the detector does not enforce it.
package crossover

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"trendlab/internal/indicator"
	"trendlab/internal/model"
)

// Detect annotates bars with the fast/slow EMAs, cross events, forward-filled
// regime, percentage drift since the last cross and days since the last cross.
//
// bars should already be in ascending timestamp order; Detect sorts a copy
// anyway (stable) and never modifies the caller's slice. Malformed bars and
// duplicate timestamps are rejected, never repaired.
func Detect(bars []model.PriceBar, spanFast, spanSlow int) ([]model.AnnotatedBar, error) {
	if spanFast <= 0 || spanSlow <= 0 {
		return nil, fmt.Errorf("crossover spans %d x %d: %w", spanFast, spanSlow, model.ErrInvalidParameter)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("crossover over empty series: %w", model.ErrInvalidParameter)
	}

	sorted, err := sortedCopy(bars)
	if err != nil {
		return nil, err
	}

	closes := model.Closes(sorted)
	fast, err := indicator.EMASeries(closes, spanFast)
	if err != nil {
		return nil, err
	}
	slow, err := indicator.EMASeries(closes, spanSlow)
	if err != nil {
		return nil, err
	}

	out := make([]model.AnnotatedBar, len(sorted))
	last := -1 // index of the most recent cross bar
	for i := range sorted {
		ab := &out[i]
		ab.PriceBar = sorted[i]
		ab.EMAFast = fast[i]
		ab.EMASlow = slow[i]

		if i > 0 {
			ab.Cross = classify(fast[i-1], slow[i-1], fast[i], slow[i])
		}
		if ab.IsCross() {
			last = i
		}
		if last < 0 {
			continue
		}

		ref := sorted[last]
		ab.Regime = out[last].Cross
		pct := 100 * (sorted[i].Close - ref.Close) / ref.Close
		if !model.Finite(pct) {
			return nil, fmt.Errorf("bar %s: move from last cross overflows float64: %w",
				sorted[i].TS.Format(time.DateOnly), model.ErrInvalidInput)
		}
		ab.PctFromLastCross = model.Round2(pct)
		days := model.DaysBetween(ref.TS, sorted[i].TS)
		ab.DaysSinceCross = &days
	}
	return out, nil
}

// classify applies the crossing predicate: strict inequality after, non-strict
// before. A bar where the averages are exactly equal is absorbed into the
// side it is approaching from.
func classify(prevFast, prevSlow, fast, slow float64) model.Regime {
	switch {
	case fast > slow && prevFast <= prevSlow:
		return model.RegimeGolden
	case fast < slow && prevFast >= prevSlow:
		return model.RegimeDeath
	default:
		return model.RegimeNone
	}
}

func sortedCopy(bars []model.PriceBar) ([]model.PriceBar, error) {
	sorted := make([]model.PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS.Before(sorted[j].TS)
	})

	for i := range sorted {
		if err := sorted[i].Validate(); err != nil {
			return nil, err
		}
		if i > 0 && !sorted[i].TS.After(sorted[i-1].TS) {
			return nil, fmt.Errorf("duplicate bar timestamp %s: %w",
				sorted[i].TS.Format("2006-01-02"), model.ErrInvalidInput)
		}
	}
	return sorted, nil
}

// Events extracts the cross events from an annotated sequence, in order.
func Events(bars []model.AnnotatedBar) []model.CrossEvent {
	var events []model.CrossEvent
	for i := range bars {
		if !bars[i].IsCross() {
			continue
		}
		events = append(events, model.CrossEvent{
			Index: i,
			Type:  bars[i].Cross,
			TS:    bars[i].TS,
			Close: bars[i].Close,
		})
	}
	return events
}

// Pair renders the span pair label written next to annotated rows, e.g. "11 x 51".
func Pair(spanFast, spanSlow int) string {
	return strconv.Itoa(spanFast) + " x " + strconv.Itoa(spanSlow)
}
