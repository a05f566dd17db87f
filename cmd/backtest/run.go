package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"trendlab/config"
	"trendlab/internal/crossover"
	"trendlab/internal/markethours"
	"trendlab/internal/metrics"
	"trendlab/internal/notification"
	"trendlab/internal/pipeline"
	redisstore "trendlab/internal/store/redis"
	sqlitestore "trendlab/internal/store/sqlite"
)

type app struct {
	cfg     *config.Config
	runner  *pipeline.Runner
	reader  *sqlitestore.Reader
	writer  *sqlitestore.Writer
	redis   *redisstore.Writer // nil when disabled
	sinks   []pipeline.Sink
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	notify  notification.Notifier
	top     int
	log     *slog.Logger
}

// runOnce loads every series, runs the pipeline, stores results and prints
// the report.
func (a *app) runOnce(ctx context.Context) error {
	started := time.Now()

	series, err := a.reader.ReadAll(ctx, a.cfg.ParseInstruments())
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	if len(series) == 0 {
		a.log.Warn("no instruments in store; import some with cmd/seed")
		return nil
	}

	reports, runID, err := a.runner.Run(ctx, series)
	if err != nil {
		return err
	}

	if err := pipeline.Publish(ctx, runID, reports, a.metrics, a.sinks...); err != nil {
		a.log.Warn("some results were not stored", "run_id", runID, "error", err)
	}

	ok, failed := pipeline.Tally(reports)
	pair := crossover.Pair(a.cfg.SpanFast, a.cfg.SpanSlow)
	finished := time.Now()
	if err := a.writer.RecordRun(ctx, runID, pair, started, finished, ok, failed); err != nil {
		a.log.Warn("record run failed", "run_id", runID, "error", err)
	}
	a.health.RecordRun(runID, failed, finished)

	latest := pipeline.LatestTrades(reports, lastBarTime(reports))
	candidates := pipeline.Candidates(reports)

	if a.redis != nil {
		if err := a.redis.PublishLatestTrades(ctx, latest); err != nil {
			a.log.Warn("redis latest trades failed", "error", err)
		}
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Instrument
		}
		if err := a.redis.PublishRun(ctx, redisstore.RunNotice{
			RunID:      runID,
			Pair:       pair,
			OK:         ok,
			Failed:     failed,
			Candidates: names,
			FinishedAt: finished,
		}); err != nil {
			a.log.Warn("redis run notice failed", "error", err)
		}
	}

	if err := a.notify.Send(ctx, notification.RunAlert(runID, pair, reports, latest)); err != nil {
		a.log.Warn("notification failed", "run_id", runID, "error", err)
	}

	printReport(os.Stdout, runID, pair, reports, latest, a.top)
	return nil
}

// tradingDaysOnly skips scheduled runs on days the exchange is closed.
func tradingDaysOnly(cal *markethours.Calendar, job func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		now := time.Now()
		if !cal.IsTradingDay(now) {
			slog.Info("skipping run", "reason", cal.StatusString(now))
			return nil
		}
		return job(ctx)
	}
}

// lastBarTime is the newest bar across all successful reports; latest trade
// ages are measured against it rather than the wall clock.
func lastBarTime(reports []pipeline.Report) time.Time {
	var last time.Time
	for i := range reports {
		if reports[i].Err != nil {
			continue
		}
		if b, ok := reports[i].LastBar(); ok && b.TS.After(last) {
			last = b.TS
		}
	}
	if last.IsZero() {
		return time.Now()
	}
	return last
}

func printReport(w io.Writer, runID, pair string, reports []pipeline.Report, latest []pipeline.LatestTrade, top int) {
	ok, failed := pipeline.Tally(reports)
	candidates := pipeline.Candidates(reports)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║               EMA CROSSOVER BACKTEST             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Run:          %-33s ║\n", runID)
	fmt.Fprintf(w, "║  Pair:         %-33s ║\n", pair)
	fmt.Fprintf(w, "║  Instruments:  %-33s ║\n", fmt.Sprintf("%d ok, %d failed", ok, failed))
	fmt.Fprintf(w, "║  Candidates:   %-33d ║\n", len(candidates))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════╝")

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-14s %6s %12s %8s %8s %10s %9s %10s\n",
		"INSTRUMENT", "TRADES", "ABS_RETURN", "ABS_%", "CAGR_%", "MAX_DD", "AVG_HOLD", "MAX_HOLD")
	for i := range reports {
		r := &reports[i]
		if r.Err != nil {
			fmt.Fprintf(w, "%-14s error: %v\n", r.Instrument, r.Err)
			continue
		}
		s := r.Result.Summary
		cagr := "-"
		if s.CAGRPct != nil {
			cagr = fmt.Sprintf("%.2f", *s.CAGRPct)
		}
		fmt.Fprintf(w, "%-14s %6d %12.2f %8.2f %8s %10.2f %9s %10s\n",
			r.Instrument, s.TotalTrades, s.AbsoluteReturnAmount, s.AbsoluteReturnPct, cagr,
			s.MaxDrawdownAmount, s.AverageHoldingPeriod, s.MaxHoldingPeriod)
	}

	if len(candidates) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-14s %10s %10s %10s %6s %7s %8s\n",
			"CANDIDATE", "CLOSE", "EMA_FAST", "EMA_SLOW", "RSI", "DAYS", "DIST_%")
		for i, c := range candidates {
			if i == top {
				break
			}
			days := 0
			if c.Bar.DaysSinceCross != nil {
				days = *c.Bar.DaysSinceCross
			}
			fmt.Fprintf(w, "%-14s %10.2f %10.2f %10.2f %6.2f %7d %8.2f\n",
				c.Instrument, c.Bar.Close, c.Bar.EMAFast, c.Bar.EMASlow, c.RSI, days, c.DistanceFromFastPct)
		}
	}

	if len(latest) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-14s %-6s %-10s %10s %6s %5s\n",
			"LATEST", "SIDE", "ENTRY", "PRICE", "DAYS", "OPEN")
		for i, t := range latest {
			if i == top {
				break
			}
			fmt.Fprintf(w, "%-14s %-6s %-10s %10.2f %6d %5t\n",
				t.Instrument, t.Side, t.EntryTime.Format("2006-01-02"), t.EntryPrice, t.DaysSinceEntry, t.Open)
		}
	}
}

// ensureDir creates the parent directory of path if it has one.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
