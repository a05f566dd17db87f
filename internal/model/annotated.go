package model

import (
	"encoding/json"
	"time"
)

// Regime is the trend state carried by a bar.
type Regime string

const (
	RegimeNone   Regime = ""
	RegimeGolden Regime = "Golden"
	RegimeDeath  Regime = "Death"
)

// String returns "None" for the empty regime so logs and tables stay readable.
func (r Regime) String() string {
	if r == RegimeNone {
		return "None"
	}
	return string(r)
}

// AnnotatedBar is a PriceBar with the moving averages and cross state
// derived for it.
type AnnotatedBar struct {
	PriceBar

	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`

	// Cross is the event produced at this bar, RegimeNone for most bars.
	Cross Regime `json:"cross,omitempty"`

	// Regime is the most recent cross type at or before this bar.
	Regime Regime `json:"regime"`

	// PctFromLastCross is the close's move from the last cross bar's close,
	// in percent rounded to 2dp. 0 at the cross bar and before any cross.
	PctFromLastCross float64 `json:"pct_from_last_cross"`

	// DaysSinceCross is nil before the first cross.
	DaysSinceCross *int `json:"days_since_cross"`
}

// IsCross reports whether a cross event happened at this bar.
func (b *AnnotatedBar) IsCross() bool { return b.Cross != RegimeNone }

// JSON returns the JSON-encoded annotated bar.
func (b *AnnotatedBar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// CrossEvent is a bar where the fast average crossed the slow one.
type CrossEvent struct {
	Index int       `json:"index"` // position in the annotated sequence
	Type  Regime    `json:"type"`
	TS    time.Time `json:"ts"`
	Close float64   `json:"close"`
}
