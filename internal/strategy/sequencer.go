// Package strategy turns cross events into a trade ledger.
//
// The Sequencer is a three-state machine (Flat, Long, Short) driven by the
// annotated bars of one series: a Golden cross closes any Short and opens a
// Long, a Death cross closes any Long and opens a Short. Entries and exits
// fill at the close of the cross bar.
package strategy

import (
	"trendlab/internal/model"
)

// State is the position held by the sequencer.
type State int

const (
	StateFlat State = iota
	StateLong
	StateShort
)

func (s State) String() string {
	switch s {
	case StateFlat:
		return "flat"
	case StateLong:
		return "long"
	case StateShort:
		return "short"
	default:
		return "unknown"
	}
}

// Sequencer builds an append-only trade ledger from cross events.
// At most one trade is open at a time and it is always the last one.
type Sequencer struct {
	state  State
	ledger []model.Trade
}

// NewSequencer returns a sequencer in the Flat state with an empty ledger.
func NewSequencer() *Sequencer {
	return &Sequencer{state: StateFlat}
}

// State returns the current position state.
func (s *Sequencer) State() State { return s.state }

// OnBar feeds the next annotated bar. Bars without a cross are ignored.
func (s *Sequencer) OnBar(bar model.AnnotatedBar) {
	switch bar.Cross {
	case model.RegimeGolden:
		s.flip(StateShort, StateLong, model.SideLong, bar)
	case model.RegimeDeath:
		s.flip(StateLong, StateShort, model.SideShort, bar)
	}
}

// flip closes a position in the opposing state, then opens side when flat.
// An event that matches the side already held does nothing; single-pair
// events alternate so this only happens with hand-built input.
func (s *Sequencer) flip(opposing, target State, side model.Side, bar model.AnnotatedBar) {
	if s.state == opposing {
		s.ledger[len(s.ledger)-1].Close(bar.TS, bar.Close)
		s.state = StateFlat
	}
	if s.state == StateFlat {
		s.ledger = append(s.ledger, model.Trade{
			Side:       side,
			EntryTime:  bar.TS,
			EntryPrice: bar.Close,
		})
		s.state = target
	}
}

// Ledger returns a copy of the trades recorded so far.
func (s *Sequencer) Ledger() []model.Trade {
	cp := make([]model.Trade, len(s.ledger))
	copy(cp, s.ledger)
	return cp
}

// Sequence runs a fresh Sequencer over bars and returns the ledger. The
// result is a pure function of bars; a trailing trade may still be open.
func Sequence(bars []model.AnnotatedBar) []model.Trade {
	s := NewSequencer()
	for i := range bars {
		s.OnBar(bars[i])
	}
	return s.Ledger()
}

// Closed returns the ledger without its trailing open trade, ready for the
// performance aggregator.
func Closed(ledger []model.Trade) []model.Trade {
	n := len(ledger)
	if n > 0 && ledger[n-1].IsOpen() {
		n--
	}
	out := make([]model.Trade, n)
	copy(out, ledger[:n])
	return out
}

// Latest returns the most recent trade of the ledger, open or not.
func Latest(ledger []model.Trade) (model.Trade, bool) {
	if len(ledger) == 0 {
		return model.Trade{}, false
	}
	return ledger[len(ledger)-1], true
}
