package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Analytics values are request defaults; every HTTP request may override them.
type Config struct {
	// Service
	HTTPAddr       string
	MetricsAddr    string
	LogLevel       string
	RequestTimeout time.Duration

	// Storage
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool

	// Ingest
	BinanceWSURL string
	Symbols      string // comma-separated, e.g. "btcusdt,ethusdt"
	ReplaySpeed  float64

	// Analytics defaults
	HedgeMinSamples int
	ADFMinSamples   int
	ZScoreWindow    int
	EntryThreshold  float64
	ExitThreshold   float64
	PositionSize    float64

	// Alerts
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
	WatchSchedule    string
}

// Load reads configuration from the environment, after loading any .env files
// given (default ".env"). Missing .env files are ignored; variables already
// set in the environment win.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Printf("[config] could not load %s: %v", f, err)
		}
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		SQLitePath:    getEnv("SQLITE_PATH", "data/market_data.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),

		BinanceWSURL: getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/stream"),
		Symbols:      getEnv("SYMBOLS", "btcusdt,ethusdt"),
		ReplaySpeed:  getEnvFloat("TICK_REPLAY_SPEED", 1.0),

		HedgeMinSamples: getEnvInt("HEDGE_MIN_SAMPLES", 30),
		ADFMinSamples:   getEnvInt("ADF_MIN_SAMPLES", 50),
		ZScoreWindow:    getEnvInt("ZSCORE_WINDOW", 30),
		EntryThreshold:  getEnvFloat("ENTRY_THRESHOLD", 2.0),
		ExitThreshold:   getEnvFloat("EXIT_THRESHOLD", 0.0),
		PositionSize:    getEnvFloat("POSITION_SIZE", 1.0),

		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WatchSchedule:    getEnv("WATCH_SCHEDULE", "@every 1m"),
	}
}

// SymbolList parses Symbols into upper-case, de-duplicated symbols.
func (c *Config) SymbolList() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
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
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
