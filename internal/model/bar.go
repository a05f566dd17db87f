package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// PriceBar is one daily-or-coarser OHLC observation for a single instrument.
// Bars are immutable once ingested.
type PriceBar struct {
	TS     time.Time `json:"ts"` // bucket date (UTC, day-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate checks that prices are positive and finite, that open and close
// sit inside the high/low range and that volume is non-negative.
func (b PriceBar) Validate() error {
	if b.TS.IsZero() {
		return fmt.Errorf("bar has no timestamp: %w", ErrInvalidInput)
	}
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("bar %s: non-positive or non-finite price %v: %w",
				b.TS.Format(time.DateOnly), p, ErrInvalidInput)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s: high %.4f < low %.4f: %w",
			b.TS.Format(time.DateOnly), b.High, b.Low, ErrInvalidInput)
	}
	if b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("bar %s: open/close outside [low, high]: %w",
			b.TS.Format(time.DateOnly), ErrInvalidInput)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %d: %w",
			b.TS.Format(time.DateOnly), b.Volume, ErrInvalidInput)
	}
	return nil
}

// JSON returns the JSON-encoded bar (ignoring errors, the struct has no
// unencodable fields).
func (b *PriceBar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Series is the unit of work for the pipeline: every bar of one instrument.
type Series struct {
	Instrument string     `json:"instrument"` // e.g. "NSE_EQ|INE158A01026"
	Bars       []PriceBar `json:"bars"`
}

// Closes returns the close prices of bars in order.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// DaysBetween returns the whole days elapsed from a to b, truncated toward
// zero.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
