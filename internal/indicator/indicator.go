// Package indicator provides technical indicator calculations over price
// series.
//
// Every indicator implements Indicator and is driven one price at a time;
// the *Series helpers run an indicator over a whole slice in one pass with
// no look-ahead.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_11", "RSI_14").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if price were fed next,
	// WITHOUT mutating internal state.
	Peek(price float64) float64
}
