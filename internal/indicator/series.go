package indicator

import (
	"fmt"
	"math"

	"trendlab/internal/model"
)

// EMASeries returns the exponential moving average of prices, one value per
// input price: ema[0] = prices[0], ema[i] = α·prices[i] + (1−α)·ema[i−1]
// with α = 2/(span+1).
func EMASeries(prices []float64, span int) ([]float64, error) {
	if span <= 0 {
		return nil, fmt.Errorf("ema span %d: %w", span, model.ErrInvalidParameter)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("ema over empty series: %w", model.ErrInvalidParameter)
	}
	return run(NewEMA(span), prices), nil
}

// RSISeries returns the Wilder RSI of prices. Entries before the indicator is
// ready (the first period prices) are NaN.
func RSISeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi period %d: %w", period, model.ErrInvalidParameter)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("rsi over empty series: %w", model.ErrInvalidParameter)
	}
	return run(NewRSI(period), prices), nil
}

func run(ind Indicator, prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		ind.Update(p)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
