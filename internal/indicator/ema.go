package indicator

import "strconv"

// EMA calculates an Exponential Moving Average seeded with the first price.
// O(1) per update; no window storage.
//
// Cross timing depends on the first-value seed; an SMA seed over the first
// period lands crosses on different bars. The update is written as
// prev + α·(price − prev), which equals α·price + (1−α)·prev but leaves a
// constant series exactly constant.
type EMA struct {
	period int
	alpha  float64
	curr   float64
	count  int
}

// NewEMA creates a new EMA with smoothing factor 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.curr = price
		return
	}
	e.curr += e.alpha * (price - e.curr)
}

func (e *EMA) Value() float64 { return e.curr }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Peek computes what Value() would be with an additional price without mutating state.
func (e *EMA) Peek(price float64) float64 {
	if e.count == 0 {
		return price
	}
	return e.curr + e.alpha*(price-e.curr)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.curr = 0
	e.count = 0
}
