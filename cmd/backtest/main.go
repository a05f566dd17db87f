// cmd/backtest runs the EMA crossover backtest over every instrument stored in
// SQLite: cross detection, trade sequencing, performance and the screener.
// Results go back to SQLite and, when configured, to Redis.
//
// Usage:
//
//	go run ./cmd/backtest --config=trendlab.yaml --fast=11 --slow=51
//	SCHEDULE="0 30 18 * * 1-5" go run ./cmd/backtest
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendlab/config"
	"trendlab/internal/api"
	"trendlab/internal/crossover"
	"trendlab/internal/logger"
	"trendlab/internal/markethours"
	"trendlab/internal/metrics"
	"trendlab/internal/notification"
	"trendlab/internal/pipeline"
	"trendlab/internal/scheduler"
	"trendlab/internal/screener"
	redisstore "trendlab/internal/store/redis"
	sqlitestore "trendlab/internal/store/sqlite"
)

func main() {
	// Flags override config file and env
	cfgPath := flag.String("config", "", "Optional YAML config file")
	fast := flag.Int("fast", 0, "Fast EMA span")
	slow := flag.Int("slow", 0, "Slow EMA span")
	capital := flag.Float64("capital", 0, "Capital per trade")
	instruments := flag.String("instruments", "", "Comma-separated instruments (default: all in store)")
	once := flag.Bool("once", false, "Run once even if a schedule is configured")
	top := flag.Int("top", 20, "Rows to print per table")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fast":
			cfg.SpanFast = *fast
		case "slow":
			cfg.SpanSlow = *slow
		case "capital":
			cfg.Capital = *capital
		case "instruments":
			cfg.Instruments = *instruments
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "pair", crossover.Pair(cfg.SpanFast, cfg.SpanSlow), "capital", cfg.Capital)

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	// ---- SQLite: source bars and result sink ----
	if err := ensureDir(cfg.SQLitePath); err != nil {
		log.Error("sqlite directory", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	health.CheckSQLite(ctx, sqlWriter.DB())

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Error("sqlite reader init failed", "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	metricsSrv.Handle("/api/", api.NewRouter(reader))
	metricsSrv.Start()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		defer done()
		metricsSrv.Stop(shutdownCtx)
	}()

	sinks := []pipeline.Sink{sqlWriter}

	// ---- Redis publisher (optional) ----
	var redisWriter *redisstore.Writer
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("redis init failed, continuing without redis", "error", err)
		} else {
			defer redisWriter.Close()
			redisWriter.Breaker().OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
			}
			health.CheckRedis(ctx, redisWriter.Client())
			sinks = append(sinks, redisWriter)
		}
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Notifications (optional) ----
	var notifiers notification.Multi
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, notification.NewLogNotifier())
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		SpanFast:  cfg.SpanFast,
		SpanSlow:  cfg.SpanSlow,
		Capital:   cfg.Capital,
		RSIPeriod: cfg.RSIPeriod,
		Workers:   cfg.Workers,
		Criteria: screener.Criteria{
			MaxDaysSinceCross: cfg.MaxDaysSinceCross,
			MinRSI:            cfg.MinRSI,
		},
	}, prom, log)
	if err != nil {
		log.Error("runner init failed", "error", err)
		os.Exit(1)
	}

	bt := &app{
		cfg:     cfg,
		runner:  runner,
		reader:  reader,
		writer:  sqlWriter,
		redis:   redisWriter,
		sinks:   sinks,
		metrics: prom,
		health:  health,
		notify:  notifiers,
		top:     *top,
		log:     log,
	}

	if cfg.Schedule == "" || *once {
		if err := bt.runOnce(ctx); err != nil {
			log.Error("run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cal, err := markethours.NSE(cfg.Holidays...)
	if err != nil {
		log.Error("calendar init failed", "error", err)
		os.Exit(1)
	}
	job := bt.runOnce
	if cfg.TradingDaysOnly {
		job = tradingDaysOnly(cal, bt.runOnce)
	}

	sched, err := scheduler.New(ctx, cfg.Schedule, job)
	if err != nil {
		log.Error("scheduler init failed", "error", err)
		os.Exit(1)
	}
	sched.RunNow()
	sched.Start()
	<-ctx.Done()
	sched.Stop()
}
