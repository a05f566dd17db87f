package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backtest pipeline.
type Metrics struct {
	// Run level
	RunsTotal        *prometheus.CounterVec // labels: status=ok|failed
	RunDur           prometheus.Histogram
	LastRunUnix      prometheus.Gauge
	InstrumentsTotal *prometheus.CounterVec // labels: status=ok|failed

	// Per-instrument chain
	BarsTotal        prometheus.Counter
	CrossEventsTotal *prometheus.CounterVec // labels: type=Golden|Death
	TradesTotal      *prometheus.CounterVec // labels: state=open|closed
	StageDur         *prometheus.HistogramVec
	Candidates       prometheus.Gauge

	// Sinks
	SinkWriteDur *prometheus.HistogramVec // labels: sink
	SinkErrors   *prometheus.CounterVec   // labels: sink

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics registers all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	stageBuckets := []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"status"}),
		RunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendlab_run_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		LastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendlab_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished",
		}),
		InstrumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_instruments_total",
			Help: "Instruments processed by outcome",
		}, []string{"status"}),

		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendlab_bars_total",
			Help: "Price bars run through the cross detector",
		}),
		CrossEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_cross_events_total",
			Help: "Cross events detected (by type)",
		}, []string{"type"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_trades_total",
			Help: "Trades sequenced (by state)",
		}, []string{"state"}),
		StageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendlab_stage_duration_seconds",
			Help:    "Per-instrument latency of each pipeline stage",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		Candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendlab_screener_candidates",
			Help: "Instruments that passed the screener in the last run",
		}),

		SinkWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendlab_sink_write_duration_seconds",
			Help:    "Result sink write latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_sink_errors_total",
			Help: "Result sink write failures",
		}, []string{"sink"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendlab_redis_circuit_breaker_state",
			Help: "Redis publisher breaker (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendlab_redis_circuit_breaker_trips_total",
			Help: "Times the Redis publisher breaker opened",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDur,
		m.LastRunUnix,
		m.InstrumentsTotal,
		m.BarsTotal,
		m.CrossEventsTotal,
		m.TradesTotal,
		m.StageDur,
		m.Candidates,
		m.SinkWriteDur,
		m.SinkErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveStage records the duration of one pipeline stage since start.
// Safe on a nil receiver so library code can run without metrics.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDur.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// HealthStatus represents the health of the backtest process and its sinks.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	RedisEnabled   bool      `json:"redis_enabled"`
	LastRunAt      time.Time `json:"last_run_at"`
	LastRunID      string    `json:"last_run_id"`
	LastRunFailed  int       `json:"last_run_failed"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

// RecordRun notes the outcome of a finished pipeline run.
func (h *HealthStatus) RecordRun(runID string, failed int, at time.Time) {
	h.mu.Lock()
	h.LastRunID = runID
	h.LastRunFailed = failed
	h.LastRunAt = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case (h.RedisEnabled && !h.RedisConnected) || h.LastRunFailed > 0:
		overallStatus = "degraded"
	}

	lastRun := ""
	if !h.LastRunAt.IsZero() {
		lastRun = h.LastRunAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastRunAt       string  `json:"last_run_at"`
		LastRunID       string  `json:"last_run_id"`
		LastRunFailed   int     `json:"last_run_failed"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastRunAt:       lastRun,
		LastRunID:       h.LastRunID,
		LastRunFailed:   h.LastRunFailed,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle mounts an extra handler. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
