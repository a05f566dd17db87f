package pipeline

import (
	"sort"
	"time"

	"trendlab/internal/model"
	"trendlab/internal/screener"
)

// LatestTrade is one row of the cross-instrument latest trades table.
type LatestTrade struct {
	Instrument     string     `json:"instrument"`
	Side           model.Side `json:"side"`
	EntryTime      time.Time  `json:"entry_time"`
	EntryPrice     float64    `json:"entry_price"`
	Open           bool       `json:"open"`
	DaysSinceEntry int        `json:"days_since_entry"`
}

// LatestTrades lists the most recent trade of every successful instrument,
// freshest entry first. Ties keep report order.
func LatestTrades(reports []Report, asOf time.Time) []LatestTrade {
	var rows []LatestTrade
	for i := range reports {
		r := &reports[i]
		if r.Err != nil || r.Latest == nil {
			continue
		}
		rows = append(rows, LatestTrade{
			Instrument:     r.Instrument,
			Side:           r.Latest.Side,
			EntryTime:      r.Latest.EntryTime,
			EntryPrice:     r.Latest.EntryPrice,
			Open:           r.Latest.IsOpen(),
			DaysSinceEntry: model.DaysBetween(r.Latest.EntryTime, asOf),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DaysSinceEntry < rows[j].DaysSinceEntry
	})
	return rows
}

// Candidates collects the screener hits of a run, ranked.
func Candidates(reports []Report) []screener.Candidate {
	var out []screener.Candidate
	for i := range reports {
		if c := reports[i].Candidate; reports[i].Err == nil && c != nil {
			out = append(out, *c)
		}
	}
	return screener.Rank(out)
}

// Tally counts successful and failed reports.
func Tally(reports []Report) (ok, failed int) {
	for i := range reports {
		if reports[i].Err != nil {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}
