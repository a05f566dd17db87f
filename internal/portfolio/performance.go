// Package portfolio computes per-trade and portfolio-level performance for a
// closed trade ledger.
//
// Every trade is sized with the full capital (quantity = capital / entry
// price); profits are not compounded into later trades. Amounts and
// percentages are rounded to 2 decimal places so aggregating the same ledger
// twice gives identical results.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trendlab/internal/model"
)

const daysPerYear = 365

// TradePnL is a closed trade with its profit and loss.
type TradePnL struct {
	model.Trade

	PnLPoints     float64 `json:"pnl_points"`
	Quantity      float64 `json:"quantity"`
	PnLAmount     float64 `json:"pnl_amount"`
	PnLPercentage float64 `json:"pnl_percentage"`
	HoldingDays   int     `json:"holding_days"`
}

// Summary is the portfolio view of a closed ledger. Yearly and CAGR returns
// are nil when the ledger spans less than a year.
type Summary struct {
	TotalTrades          int      `json:"total_trades"`
	AbsoluteReturnPoints float64  `json:"absolute_return_points"`
	AbsoluteReturnAmount float64  `json:"absolute_return_amount"`
	AbsoluteReturnPct    float64  `json:"absolute_return_pct"`
	YearlyReturnPct      *float64 `json:"yearly_return_pct"`
	CAGRPct              *float64 `json:"cagr_pct"`

	TradedDays   int    `json:"traded_days"`
	TradedPeriod Period `json:"traded_period"`

	MaxDrawdownAmount float64 `json:"max_drawdown_amount"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`

	AverageHoldingDays   float64 `json:"average_holding_days"`
	AverageHoldingPeriod Period  `json:"average_holding_period"`
	MaxHoldingDays       int     `json:"max_holding_days"`
	MaxHoldingPeriod     Period  `json:"max_holding_period"`
}

// Result is the PnL table in ledger order plus its summary.
type Result struct {
	Trades  []TradePnL `json:"trades"`
	Summary Summary    `json:"summary"`
}

// Aggregate computes PnL for every trade and the portfolio summary. It fails
// with ErrInvalidParameter for a non-positive capital and ErrInvalidInput for
// open or malformed trades; callers drop the trailing open trade first
// (strategy.Closed). An empty ledger yields a zero summary.
func Aggregate(trades []model.Trade, capital float64) (*Result, error) {
	if math.IsNaN(capital) || math.IsInf(capital, 0) || capital <= 0 {
		return nil, fmt.Errorf("capital %v: %w", capital, model.ErrInvalidParameter)
	}
	for i := range trades {
		if err := validateTrade(i, &trades[i]); err != nil {
			return nil, err
		}
	}

	res := &Result{Trades: make([]TradePnL, len(trades))}
	if len(trades) == 0 {
		return res, nil
	}

	points := make([]float64, len(trades))
	amounts := make([]float64, len(trades))
	holding := make([]float64, len(trades))
	firstEntry, lastExit := trades[0].EntryTime, *trades[0].ExitTime

	for i := range trades {
		tp := pnlFor(trades[i], capital)
		if !model.Finite(tp.PnLAmount) || !model.Finite(tp.PnLPercentage) {
			return nil, fmt.Errorf("trade %d: pnl overflows float64: %w", i, model.ErrInvalidInput)
		}
		res.Trades[i] = tp

		points[i] = tp.PnLPoints
		amounts[i] = tp.PnLAmount
		holding[i] = float64(tp.HoldingDays)
		if tp.EntryTime.Before(firstEntry) {
			firstEntry = tp.EntryTime
		}
		if tp.ExitTime.After(lastExit) {
			lastExit = *tp.ExitTime
		}
	}

	s := &res.Summary
	s.TotalTrades = len(trades)
	s.AbsoluteReturnPoints = model.Round2(floats.Sum(points))
	s.AbsoluteReturnAmount = model.Round2(floats.Sum(amounts))
	s.AbsoluteReturnPct = model.Round2(100 * s.AbsoluteReturnAmount / capital)
	if !model.Finite(s.AbsoluteReturnAmount) || !model.Finite(s.AbsoluteReturnPct) {
		return nil, fmt.Errorf("total pnl overflows float64: %w", model.ErrInvalidInput)
	}

	s.TradedDays = model.DaysBetween(firstEntry, lastExit)
	s.TradedPeriod = PeriodOf(float64(s.TradedDays))
	if s.TradedDays >= daysPerYear {
		yearly := model.Round2(s.AbsoluteReturnPct / (float64(s.TradedDays) / daysPerYear))
		s.YearlyReturnPct = &yearly
	}
	if years := s.TradedDays / daysPerYear; years > 0 {
		cagr := cagrPct(capital, capital+s.AbsoluteReturnAmount, years)
		s.CAGRPct = &cagr
	}

	cum := floats.CumSum(make([]float64, len(trades)), byExitTime(trades, amounts))
	s.MaxDrawdownAmount, s.MaxDrawdownPct = drawdown(cum)
	if !model.Finite(s.MaxDrawdownAmount) || !model.Finite(s.MaxDrawdownPct) ||
		(s.CAGRPct != nil && !model.Finite(*s.CAGRPct)) ||
		(s.YearlyReturnPct != nil && !model.Finite(*s.YearlyReturnPct)) {
		return nil, fmt.Errorf("summary overflows float64: %w", model.ErrInvalidInput)
	}

	s.AverageHoldingDays = model.Round2(stat.Mean(holding, nil))
	s.AverageHoldingPeriod = PeriodOf(s.AverageHoldingDays)
	s.MaxHoldingDays = int(floats.Max(holding))
	s.MaxHoldingPeriod = PeriodOf(float64(s.MaxHoldingDays))

	return res, nil
}

func validateTrade(i int, t *model.Trade) error {
	if t.IsOpen() {
		return fmt.Errorf("trade %d entered %s is still open: %w",
			i, t.EntryTime.Format(time.DateOnly), model.ErrInvalidInput)
	}
	if t.Side != model.SideLong && t.Side != model.SideShort {
		return fmt.Errorf("trade %d: unknown side %q: %w", i, t.Side, model.ErrInvalidInput)
	}
	for _, p := range [...]float64{t.EntryPrice, *t.ExitPrice} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("trade %d: price %v: %w", i, p, model.ErrInvalidInput)
		}
	}
	if t.ExitTime.Before(t.EntryTime) {
		return fmt.Errorf("trade %d exits before it enters: %w", i, model.ErrInvalidInput)
	}
	return nil
}

func pnlFor(t model.Trade, capital float64) TradePnL {
	points := *t.ExitPrice - t.EntryPrice
	if t.Side == model.SideShort {
		points = t.EntryPrice - *t.ExitPrice
	}
	qty := capital / t.EntryPrice
	amount := model.Round2(points * qty)
	return TradePnL{
		Trade:         t,
		PnLPoints:     points,
		Quantity:      qty,
		PnLAmount:     amount,
		PnLPercentage: model.Round2(100 * amount / capital),
		HoldingDays:   t.HoldingDays(),
	}
}

// byExitTime returns amounts reordered by ascending exit time. Ties keep
// ledger order.
func byExitTime(trades []model.Trade, amounts []float64) []float64 {
	idx := make([]int, len(trades))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return trades[idx[a]].ExitTime.Before(*trades[idx[b]].ExitTime)
	})
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = amounts[j]
	}
	return out
}

// drawdown walks a cumulative PnL curve and returns the largest fall from the
// running peak, as an amount and as a percentage of that peak. Points where
// the peak is not positive contribute 0 to the percentage.
func drawdown(cum []float64) (maxAmount, maxPct float64) {
	if len(cum) == 0 {
		return 0, 0
	}
	peak := cum[0]
	for _, v := range cum {
		peak = math.Max(peak, v)
		dd := peak - v
		maxAmount = math.Max(maxAmount, dd)
		if peak > 0 {
			maxPct = math.Max(maxPct, dd/peak*100)
		}
	}
	return model.Round2(maxAmount), model.Round2(maxPct)
}

// cagrPct is the compound annual growth over whole years. A ledger that loses
// all of the capital reports -100.
func cagrPct(capital, endValue float64, years int) float64 {
	ratio := endValue / capital
	if ratio <= 0 {
		return -100
	}
	return model.Round2((math.Pow(ratio, 1/float64(years)) - 1) * 100)
}
