// Package pipeline runs instruments through the cross detector, trade
// sequencer and performance aggregator, one independent task per series.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"trendlab/internal/crossover"
	"trendlab/internal/indicator"
	"trendlab/internal/logger"
	"trendlab/internal/metrics"
	"trendlab/internal/model"
	"trendlab/internal/portfolio"
	"trendlab/internal/screener"
	"trendlab/internal/strategy"
)

// Config parameterises a run.
type Config struct {
	SpanFast  int
	SpanSlow  int
	Capital   float64
	RSIPeriod int
	Workers   int
	Criteria  screener.Criteria
}

// Report is everything one instrument produced in a run. When Err is set the
// other result fields are empty.
type Report struct {
	Instrument string `json:"instrument"`
	Pair       string `json:"pair"`

	Bars   []model.AnnotatedBar `json:"-"`
	Events []model.CrossEvent   `json:"events"`
	Ledger []model.Trade        `json:"ledger"`
	Result *portfolio.Result    `json:"result"`

	// Latest is the most recent trade, open or closed.
	Latest *model.Trade `json:"latest,omitempty"`
	// RSI of the last bar; NaN with too little history.
	RSI       float64             `json:"-"`
	Candidate *screener.Candidate `json:"candidate,omitempty"`

	Err error `json:"-"`
}

// LastBar returns the most recent annotated bar.
func (r *Report) LastBar() (model.AnnotatedBar, bool) {
	if len(r.Bars) == 0 {
		return model.AnnotatedBar{}, false
	}
	return r.Bars[len(r.Bars)-1], true
}

// Sink receives every successful report of a run.
type Sink interface {
	Name() string
	WriteReport(ctx context.Context, runID string, r *Report) error
}

// Runner executes the per-instrument chain over a bounded worker pool.
type Runner struct {
	cfg     Config
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewRunner validates cfg. m may be nil.
func NewRunner(cfg Config, m *metrics.Metrics, log *slog.Logger) (*Runner, error) {
	if cfg.SpanFast <= 0 || cfg.SpanSlow <= 0 {
		return nil, fmt.Errorf("spans %d x %d: %w", cfg.SpanFast, cfg.SpanSlow, model.ErrInvalidParameter)
	}
	if math.IsNaN(cfg.Capital) || cfg.Capital <= 0 {
		return nil, fmt.Errorf("capital %v: %w", cfg.Capital, model.ErrInvalidParameter)
	}
	if cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("rsi period %d: %w", cfg.RSIPeriod, model.ErrInvalidParameter)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, metrics: m, log: log}, nil
}

// Run processes every series and returns one report per series in input
// order, plus the run ID. A failing instrument sets Report.Err and does not
// stop the others. Series not started before ctx is cancelled get ctx.Err().
func (r *Runner) Run(ctx context.Context, series []model.Series) ([]Report, string, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	start := time.Now()

	r.log.Info("run started", append(logger.Attrs(ctx),
		"instruments", len(series),
		"pair", crossover.Pair(r.cfg.SpanFast, r.cfg.SpanSlow),
		"workers", r.cfg.Workers,
	)...)

	reports := make([]Report, len(series))
	if len(series) > 0 {
		r.runPool(ctx, series, reports)
	}

	ok, failed := Tally(reports)
	if m := r.metrics; m != nil {
		m.RunDur.Observe(time.Since(start).Seconds())
		m.LastRunUnix.SetToCurrentTime()
		status := "ok"
		if failed > 0 {
			status = "failed"
		}
		m.RunsTotal.WithLabelValues(status).Inc()
		candidates := 0
		for i := range reports {
			if reports[i].Candidate != nil {
				candidates++
			}
		}
		m.Candidates.Set(float64(candidates))
	}

	r.log.Info("run finished", append(logger.Attrs(ctx),
		"ok", ok,
		"failed", failed,
		"took", time.Since(start).String(),
	)...)

	return reports, runID, ctx.Err()
}

type job struct {
	index  int
	series model.Series
}

func (r *Runner) runPool(ctx context.Context, series []model.Series, reports []Report) {
	jobs := make(chan job, len(series))
	for i, s := range series {
		jobs <- job{index: i, series: s}
	}
	close(jobs)

	workers := r.cfg.Workers
	if len(series) < workers {
		workers = len(series)
	}

	// each worker owns the indexes it pulls, so reports needs no lock
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					reports[j.index] = Report{Instrument: j.series.Instrument, Err: err}
					continue
				}
				reports[j.index] = r.Process(ctx, j.series)
			}
		}()
	}
	wg.Wait()
}

// Process runs the full chain for one instrument.
func (r *Runner) Process(ctx context.Context, s model.Series) Report {
	ctx = logger.WithInstrument(ctx, s.Instrument)
	rep, err := r.safeProcess(s)
	if err != nil {
		r.log.Warn("instrument failed", append(logger.Attrs(ctx), "error", err)...)
		if r.metrics != nil {
			r.metrics.InstrumentsTotal.WithLabelValues("failed").Inc()
		}
		return Report{Instrument: s.Instrument, Err: err}
	}

	if r.metrics != nil {
		r.metrics.InstrumentsTotal.WithLabelValues("ok").Inc()
		r.metrics.BarsTotal.Add(float64(len(rep.Bars)))
		for _, ev := range rep.Events {
			r.metrics.CrossEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		}
		for i := range rep.Ledger {
			state := "closed"
			if rep.Ledger[i].IsOpen() {
				state = "open"
			}
			r.metrics.TradesTotal.WithLabelValues(state).Inc()
		}
	}

	r.log.Debug("instrument done", append(logger.Attrs(ctx),
		"bars", len(rep.Bars),
		"events", len(rep.Events),
		"trades", len(rep.Ledger),
		"candidate", rep.Candidate != nil,
	)...)
	return rep
}

// safeProcess turns a panic in one instrument's chain into that instrument's
// error.
func (r *Runner) safeProcess(s model.Series) (rep Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			rep, err = Report{}, fmt.Errorf("%s: panic: %v", s.Instrument, p)
		}
	}()
	return r.process(s)
}

func (r *Runner) process(s model.Series) (Report, error) {
	if s.Instrument == "" {
		return Report{}, fmt.Errorf("series without instrument: %w", model.ErrInvalidInput)
	}
	if len(s.Bars) == 0 {
		return Report{}, fmt.Errorf("no bars: %w", model.ErrInvalidInput)
	}

	t := time.Now()
	bars, err := crossover.Detect(s.Bars, r.cfg.SpanFast, r.cfg.SpanSlow)
	if err != nil {
		return Report{}, fmt.Errorf("detect: %w", err)
	}
	r.metrics.ObserveStage("detect", t)

	t = time.Now()
	ledger := strategy.Sequence(bars)
	r.metrics.ObserveStage("sequence", t)

	t = time.Now()
	result, err := portfolio.Aggregate(strategy.Closed(ledger), r.cfg.Capital)
	if err != nil {
		return Report{}, fmt.Errorf("aggregate: %w", err)
	}
	r.metrics.ObserveStage("aggregate", t)

	rep := Report{
		Instrument: s.Instrument,
		Pair:       crossover.Pair(r.cfg.SpanFast, r.cfg.SpanSlow),
		Bars:       bars,
		Events:     crossover.Events(bars),
		Ledger:     ledger,
		Result:     result,
		RSI:        math.NaN(),
	}
	if latest, ok := strategy.Latest(ledger); ok {
		rep.Latest = &latest
	}

	t = time.Now()
	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].Close
	}
	rsi, err := indicator.RSISeries(closes, r.cfg.RSIPeriod)
	if err != nil {
		return Report{}, fmt.Errorf("rsi: %w", err)
	}
	rep.RSI = rsi[len(rsi)-1]
	last := bars[len(bars)-1]
	if c, ok := screener.Evaluate(s.Instrument, last, rep.RSI, r.cfg.Criteria); ok {
		rep.Candidate = &c
	}
	r.metrics.ObserveStage("screen", t)

	return rep, nil
}

// Publish hands every successful report to each sink. Sink failures are
// logged and counted; the first one is returned after all writes finish.
func Publish(ctx context.Context, runID string, reports []Report, m *metrics.Metrics, sinks ...Sink) error {
	ctx = logger.WithRunID(ctx, runID)
	var first error
	for i := range reports {
		rep := &reports[i]
		if rep.Err != nil {
			continue
		}
		for _, s := range sinks {
			start := time.Now()
			err := s.WriteReport(ctx, runID, rep)
			if m != nil {
				m.SinkWriteDur.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
			}
			if err == nil {
				continue
			}
			if m != nil {
				m.SinkErrors.WithLabelValues(s.Name()).Inc()
			}
			slog.Warn("sink write failed", append(logger.Attrs(logger.WithInstrument(ctx, rep.Instrument)),
				"sink", s.Name(), "error", err)...)
			if first == nil {
				first = fmt.Errorf("%s %s: %w", s.Name(), rep.Instrument, err)
			}
		}
	}
	return first
}
