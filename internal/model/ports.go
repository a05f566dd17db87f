package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage (SQLite,
// Redis). The analysis core never sees them; only the runner and the CLI do.

// BarReader supplies price series from an external store.
type BarReader interface {
	// Instruments lists every instrument key with at least one bar.
	Instruments(ctx context.Context) ([]string, error)

	// ReadSeries loads all bars of one instrument, ordered by timestamp.
	ReadSeries(ctx context.Context, instrument string) (Series, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter stores price series, used by importers and tests.
type BarWriter interface {
	// WriteSeries upserts every bar of the series in one transaction.
	WriteSeries(ctx context.Context, s Series) error

	// Close releases underlying resources.
	Close() error
}
