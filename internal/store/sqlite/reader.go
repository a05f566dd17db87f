package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trendlab/internal/model"
	"trendlab/internal/portfolio"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to price bars and stored results.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema must already
// exist (see New).
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// Instruments lists every instrument with at least one bar, sorted.
func (r *Reader) Instruments(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM price_bars ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var inst string
		if err := rows.Scan(&inst); err != nil {
			return nil, fmt.Errorf("sqlite scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// ReadSeries loads every bar of instrument ordered by timestamp ascending.
// An instrument with no bars is ErrInvalidInput.
func (r *Reader) ReadSeries(ctx context.Context, instrument string) (model.Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM price_bars
		WHERE instrument = ?
		ORDER BY ts ASC
	`, instrument)
	if err != nil {
		return model.Series{}, fmt.Errorf("sqlite query price_bars: %w", err)
	}
	defer rows.Close()

	s := model.Series{Instrument: instrument}
	for rows.Next() {
		var b model.PriceBar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return model.Series{}, fmt.Errorf("sqlite scan price_bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		s.Bars = append(s.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return model.Series{}, err
	}
	if len(s.Bars) == 0 {
		return model.Series{}, fmt.Errorf("no bars for %q: %w", instrument, model.ErrInvalidInput)
	}
	return s, nil
}

// ReadAll loads the named instruments, or every instrument when none are
// given. A named instrument with no stored bars comes back as an empty
// Series so the runner reports it as failed without dropping the others.
// Query errors abort.
func (r *Reader) ReadAll(ctx context.Context, instruments []string) ([]model.Series, error) {
	if len(instruments) == 0 {
		var err error
		if instruments, err = r.Instruments(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]model.Series, 0, len(instruments))
	for _, inst := range instruments {
		s, err := r.ReadSeries(ctx, inst)
		if errors.Is(err, model.ErrInvalidInput) {
			slog.Warn("instrument has no bars", "instrument", inst)
			s = model.Series{Instrument: inst}
		} else if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadSummary returns the stored summary of one instrument in a run.
func (r *Reader) ReadSummary(ctx context.Context, runID, instrument string) (portfolio.Summary, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT summary FROM performance WHERE run_id = ? AND instrument = ?`,
		runID, instrument,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return portfolio.Summary{}, fmt.Errorf("no summary for %s in run %s: %w", instrument, runID, model.ErrInvalidInput)
	}
	if err != nil {
		return portfolio.Summary{}, fmt.Errorf("sqlite query performance: %w", err)
	}

	var s portfolio.Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return portfolio.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, nil
}

// CountTrades returns how many ledger rows a run stored for instrument.
func (r *Reader) CountTrades(ctx context.Context, runID, instrument string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE run_id = ? AND instrument = ?`,
		runID, instrument,
	).Scan(&n)
	return n, err
}

// LastRun returns the most recently finished run ID, or "" if none.
func (r *Reader) LastRun(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY finished_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
