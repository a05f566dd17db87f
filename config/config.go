package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an optional
// YAML file, then a .env file, then the process environment (highest wins).
type Config struct {
	// Strategy
	SpanFast  int     `yaml:"span_fast"`
	SpanSlow  int     `yaml:"span_slow"`
	Capital   float64 `yaml:"capital"`
	RSIPeriod int     `yaml:"rsi_period"`

	// Screener
	MaxDaysSinceCross int     `yaml:"max_days_since_cross"`
	MinRSI            float64 `yaml:"min_rsi"`

	// Runner
	Workers     int    `yaml:"workers"`
	Instruments string `yaml:"instruments"` // comma-separated; empty = all in store
	Schedule    string `yaml:"schedule"`    // cron spec; empty = run once

	// Scheduled runs are skipped on days without a session
	TradingDaysOnly bool     `yaml:"trading_days_only"`
	Holidays        []string `yaml:"holidays"` // extra YYYY-MM-DD dates

	// Infrastructure
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"` // empty disables publishing
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`

	// Notifications; each is off when empty
	WebhookURL       string `yaml:"webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// Defaults returns the configuration used when nothing is set: an 11 x 51
// EMA pair on 100000 of capital per trade.
func Defaults() *Config {
	return &Config{
		SpanFast:          11,
		SpanSlow:          51,
		Capital:           100000,
		RSIPeriod:         14,
		MaxDaysSinceCross: 63,
		MinRSI:            60,
		Workers:           4,
		TradingDaysOnly:   true,
		SQLitePath:        "data/trendlab.db",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
	}
}

// Load builds the configuration. path names an optional YAML file; a missing
// file is not an error, a malformed one is. CONFIG_FILE overrides path.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: ignoring unreadable .env", "error", err)
	}

	cfg := Defaults()
	path = getEnv("CONFIG_FILE", path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.SpanFast = getEnvInt("SPAN_FAST", cfg.SpanFast)
	cfg.SpanSlow = getEnvInt("SPAN_SLOW", cfg.SpanSlow)
	cfg.Capital = getEnvFloat("CAPITAL", cfg.Capital)
	cfg.RSIPeriod = getEnvInt("RSI_PERIOD", cfg.RSIPeriod)
	cfg.MaxDaysSinceCross = getEnvInt("MAX_DAYS_SINCE_CROSS", cfg.MaxDaysSinceCross)
	cfg.MinRSI = getEnvFloat("MIN_RSI", cfg.MinRSI)
	cfg.Workers = getEnvInt("WORKERS", cfg.Workers)
	cfg.Instruments = getEnv("INSTRUMENTS", cfg.Instruments)
	cfg.Schedule = getEnv("SCHEDULE", cfg.Schedule)
	cfg.TradingDaysOnly = getEnvBool("TRADING_DAYS_ONLY", cfg.TradingDaysOnly)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.WebhookURL)
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.SpanFast <= 0 || c.SpanSlow <= 0:
		return fmt.Errorf("config: spans must be positive, got %d x %d", c.SpanFast, c.SpanSlow)
	case c.Capital <= 0:
		return fmt.Errorf("config: capital must be positive, got %v", c.Capital)
	case c.RSIPeriod <= 0:
		return fmt.Errorf("config: rsi period must be positive, got %d", c.RSIPeriod)
	case c.Workers <= 0:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	case c.SQLitePath == "":
		return fmt.Errorf("config: sqlite path is required")
	case (c.TelegramBotToken == "") != (c.TelegramChatID == ""):
		return fmt.Errorf("config: telegram needs both bot token and chat id")
	}
	if c.SpanFast >= c.SpanSlow {
		slog.Warn("config: fast span is not shorter than slow span", "fast", c.SpanFast, "slow", c.SpanSlow)
	}
	return nil
}

// ParseInstruments splits the Instruments list, dropping blanks.
func (c *Config) ParseInstruments() []string {
	parts := strings.Split(c.Instruments, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("config: ignoring invalid integer", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("config: ignoring invalid bool", "key", key, "value", v)
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("config: ignoring invalid number", "key", key, "value", v)
		return fallback
	}
	return f
}
