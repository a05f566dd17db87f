package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trendlab/internal/pipeline"
)

const (
	summaryKeyPrefix = "trendlab:summary:"
	latestTradesKey  = "trendlab:latest_trades"
	runsChannel      = "trendlab:runs"
	candidatesKey    = "trendlab:candidates"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// Breaker settings; zero values mean 5 failures and 30s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// Writer publishes run results to Redis for dashboards: one hash per
// instrument with its latest summary, a sorted set of latest trades, and a
// pub/sub notice per finished run. Every call goes through a circuit breaker.
type Writer struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = 30 * time.Second
	}
	return &Writer{client: client, cb: NewCircuitBreaker(maxFailures, reset)}
}

// SummaryKey is the hash holding the latest summary of instrument.
func SummaryKey(instrument string) string {
	return summaryKeyPrefix + instrument
}

// Name identifies the writer as a pipeline sink.
func (w *Writer) Name() string { return "redis" }

// WriteReport overwrites the summary hash of one instrument.
func (w *Writer) WriteReport(ctx context.Context, runID string, r *pipeline.Report) error {
	fields, err := summaryFields(runID, r)
	if err != nil {
		return err
	}
	return w.cb.Execute(func() error {
		return w.client.HSet(ctx, SummaryKey(r.Instrument), fields).Err()
	})
}

func summaryFields(runID string, r *pipeline.Report) (map[string]interface{}, error) {
	if r.Result == nil {
		return nil, fmt.Errorf("redis summary %s: no result", r.Instrument)
	}
	summary, err := json.Marshal(r.Result.Summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	fields := map[string]interface{}{
		"run_id":    runID,
		"pair":      r.Pair,
		"summary":   string(summary),
		"events":    strconv.Itoa(len(r.Events)),
		"candidate": strconv.FormatBool(r.Candidate != nil),
	}
	if r.Latest != nil {
		fields["latest_trade"] = string(r.Latest.JSON())
	}
	return fields, nil
}

// PublishLatestTrades replaces the latest trades sorted set. Scores are days
// since entry so ZRANGE lists the freshest first.
func (w *Writer) PublishLatestTrades(ctx context.Context, rows []pipeline.LatestTrade) error {
	members, err := latestTradeMembers(rows)
	if err != nil {
		return err
	}
	return w.cb.Execute(func() error {
		pipe := w.client.TxPipeline()
		pipe.Del(ctx, latestTradesKey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, latestTradesKey, members...)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func latestTradeMembers(rows []pipeline.LatestTrade) ([]*goredis.Z, error) {
	members := make([]*goredis.Z, 0, len(rows))
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("marshal latest trade %s: %w", row.Instrument, err)
		}
		members = append(members, &goredis.Z{Score: float64(row.DaysSinceEntry), Member: string(data)})
	}
	return members, nil
}

// RunNotice is published on the runs channel when a run finishes.
type RunNotice struct {
	RunID      string    `json:"run_id"`
	Pair       string    `json:"pair"`
	OK         int       `json:"ok"`
	Failed     int       `json:"failed"`
	Candidates []string  `json:"candidates"`
	FinishedAt time.Time `json:"finished_at"`
}

// PublishRun stores the candidate list and announces the finished run.
func (w *Writer) PublishRun(ctx context.Context, n RunNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal run notice: %w", err)
	}
	return w.cb.Execute(func() error {
		pipe := w.client.TxPipeline()
		pipe.Del(ctx, candidatesKey)
		if len(n.Candidates) > 0 {
			vals := make([]interface{}, len(n.Candidates))
			for i, c := range n.Candidates {
				vals[i] = c
			}
			pipe.RPush(ctx, candidatesKey, vals...)
		}
		pipe.Publish(ctx, runsChannel, string(data))
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Close closes the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}
