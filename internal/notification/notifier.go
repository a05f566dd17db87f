// Package notification delivers run results (outcome, screener candidates,
// fresh trades) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"trendlab/internal/pipeline"
	"trendlab/internal/screener"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("notify", "level", string(alert.Level), "title", alert.Title, "message", alert.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// maxListed caps how many candidates and trades one alert names.
const maxListed = 10

// RunAlert summarises a finished run. Any failed instrument raises the
// level to warning; a run where nothing succeeded is critical.
func RunAlert(runID, pair string, reports []pipeline.Report, latest []pipeline.LatestTrade) Alert {
	ok, failed := pipeline.Tally(reports)
	candidates := pipeline.Candidates(reports)

	level := AlertInfo
	switch {
	case ok == 0 && failed > 0:
		level = AlertCritical
	case failed > 0:
		level = AlertWarning
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d instruments ok, %d failed\n", ok, failed)
	if len(candidates) == 0 {
		b.WriteString("No screener candidates\n")
	} else {
		fmt.Fprintf(&b, "Candidates (%d):\n", len(candidates))
		writeCandidates(&b, candidates)
	}

	fresh := 0
	for _, t := range latest {
		if t.DaysSinceEntry > 0 {
			break
		}
		if fresh == 0 {
			b.WriteString("Entered today:\n")
		}
		if fresh < maxListed {
			fmt.Fprintf(&b, "  %s %s @ %.2f\n", t.Instrument, t.Side, t.EntryPrice)
		}
		fresh++
	}

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("EMA %s run finished", pair),
		Message: strings.TrimRight(b.String(), "\n"),
		Fields: map[string]string{
			"run_id":     runID,
			"pair":       pair,
			"ok":         fmt.Sprint(ok),
			"failed":     fmt.Sprint(failed),
			"candidates": fmt.Sprint(len(candidates)),
		},
	}
}

func writeCandidates(b *strings.Builder, cands []screener.Candidate) {
	for i, c := range cands {
		if i == maxListed {
			fmt.Fprintf(b, "  ... and %d more\n", len(cands)-maxListed)
			return
		}
		fmt.Fprintf(b, "  %s close %.2f, %.2f%% from fast EMA, RSI %.1f\n",
			c.Instrument, c.Bar.Close, c.DistanceFromFastPct, c.RSI)
	}
}
