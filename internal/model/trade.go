package model

import (
	"encoding/json"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// Trade is one entry/exit pair in a trade ledger. ExitTime and ExitPrice are
// nil together while the trade is open.
type Trade struct {
	Side       Side       `json:"side"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitTime   *time.Time `json:"exit_time"`
	ExitPrice  *float64   `json:"exit_price"`
}

// IsOpen reports whether the trade has not been exited yet.
func (t *Trade) IsOpen() bool {
	return t.ExitTime == nil || t.ExitPrice == nil
}

// Close records the exit of the trade.
func (t *Trade) Close(ts time.Time, price float64) {
	t.ExitTime = &ts
	t.ExitPrice = &price
}

// HoldingDays returns whole days between entry and exit, 0 for open trades.
func (t *Trade) HoldingDays() int {
	if t.IsOpen() {
		return 0
	}
	return DaysBetween(t.EntryTime, *t.ExitTime)
}

// JSON returns the JSON-encoded trade.
func (t *Trade) JSON() []byte {
	out, _ := json.Marshal(t)
	return out
}
