package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"trendlab/internal/model"
	"trendlab/internal/pipeline"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/trendlab.db"
}

// Writer owns the schema and all inserts. It is both the bar importer and the
// pipeline's result sink.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite opened", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_bars (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT    PRIMARY KEY,
			pair        TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			ok          INTEGER NOT NULL,
			failed      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS annotated_bars (
			run_id              TEXT    NOT NULL,
			instrument          TEXT    NOT NULL,
			ts                  INTEGER NOT NULL,
			close               REAL    NOT NULL,
			ema_fast            REAL    NOT NULL,
			ema_slow            REAL    NOT NULL,
			cross_type          TEXT    NOT NULL DEFAULT '',
			regime              TEXT    NOT NULL DEFAULT '',
			pct_from_last_cross REAL    NOT NULL DEFAULT 0,
			days_since_cross    INTEGER,
			PRIMARY KEY (run_id, instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS trades (
			run_id      TEXT    NOT NULL,
			instrument  TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			side        TEXT    NOT NULL,
			entry_ts    INTEGER NOT NULL,
			entry_price REAL    NOT NULL,
			exit_ts     INTEGER,
			exit_price  REAL,
			pnl_points  REAL,
			pnl_amount  REAL,
			pnl_pct     REAL,
			PRIMARY KEY (run_id, instrument, seq)
		);

		CREATE TABLE IF NOT EXISTS performance (
			run_id     TEXT    NOT NULL,
			instrument TEXT    NOT NULL,
			pair       TEXT    NOT NULL,
			summary    TEXT    NOT NULL,
			rsi        REAL,
			candidate  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, instrument)
		);
	`)
	return err
}

// WriteSeries upserts every bar of s in a single transaction.
func (w *Writer) WriteSeries(ctx context.Context, s model.Series) error {
	if s.Instrument == "" {
		return fmt.Errorf("sqlite write series: %w", model.ErrInvalidInput)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_bars (instrument, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range s.Bars {
		if _, err := stmt.ExecContext(ctx, s.Instrument, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s@%d: %w", s.Instrument, b.TS.Unix(), err)
		}
	}

	return tx.Commit()
}

// Name identifies the writer as a pipeline sink.
func (w *Writer) Name() string { return "sqlite" }

// WriteReport stores the annotated bars, ledger with PnL, and summary of one
// instrument in a single transaction. Rewriting the same run replaces it.
func (w *Writer) WriteReport(ctx context.Context, runID string, r *pipeline.Report) error {
	if r.Err != nil || r.Result == nil {
		return fmt.Errorf("sqlite write report %s: %w", r.Instrument, model.ErrInvalidInput)
	}

	summary, err := json.Marshal(r.Result.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := writeReportTx(ctx, tx, runID, r, summary); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite write report %s: %w", r.Instrument, err)
	}
	return tx.Commit()
}

func writeReportTx(ctx context.Context, tx *sql.Tx, runID string, r *pipeline.Report, summary []byte) error {
	for _, table := range []string{"annotated_bars", "trades", "performance"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE run_id = ? AND instrument = ?`, runID, r.Instrument); err != nil {
			return err
		}
	}

	barStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO annotated_bars (run_id, instrument, ts, close, ema_fast, ema_slow, cross_type, regime, pct_from_last_cross, days_since_cross)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer barStmt.Close()

	for i := range r.Bars {
		b := &r.Bars[i]
		var days sql.NullInt64
		if b.DaysSinceCross != nil {
			days = sql.NullInt64{Int64: int64(*b.DaysSinceCross), Valid: true}
		}
		if _, err := barStmt.ExecContext(ctx, runID, r.Instrument, b.TS.Unix(), b.Close,
			b.EMAFast, b.EMASlow, string(b.Cross), string(b.Regime), b.PctFromLastCross, days); err != nil {
			return err
		}
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, instrument, seq, side, entry_ts, entry_price, exit_ts, exit_price, pnl_points, pnl_amount, pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()

	// Result.Trades is the ledger minus its trailing open trade, same order.
	for i := range r.Ledger {
		t := &r.Ledger[i]
		var exitTS sql.NullInt64
		var exitPrice, points, amount, pct sql.NullFloat64
		if !t.IsOpen() {
			exitTS = sql.NullInt64{Int64: t.ExitTime.Unix(), Valid: true}
			exitPrice = sql.NullFloat64{Float64: *t.ExitPrice, Valid: true}
		}
		if i < len(r.Result.Trades) {
			p := &r.Result.Trades[i]
			points = sql.NullFloat64{Float64: p.PnLPoints, Valid: true}
			amount = sql.NullFloat64{Float64: p.PnLAmount, Valid: true}
			pct = sql.NullFloat64{Float64: p.PnLPercentage, Valid: true}
		}
		if _, err := tradeStmt.ExecContext(ctx, runID, r.Instrument, i, string(t.Side),
			t.EntryTime.Unix(), t.EntryPrice, exitTS, exitPrice, points, amount, pct); err != nil {
			return err
		}
	}

	var rsi sql.NullFloat64
	if !math.IsNaN(r.RSI) {
		rsi = sql.NullFloat64{Float64: r.RSI, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO performance (run_id, instrument, pair, summary, rsi, candidate)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, r.Instrument, r.Pair, string(summary), rsi, r.Candidate != nil)
	return err
}

// RecordRun stores the outcome of a pipeline run.
func (w *Writer) RecordRun(ctx context.Context, runID, pair string, started, finished time.Time, ok, failed int) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, pair, started_at, finished_at, ok, failed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, pair, started.Unix(), finished.Unix(), ok, failed)
	if err != nil {
		return fmt.Errorf("sqlite record run: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
