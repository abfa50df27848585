package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/models"
	"trade_engine/pkg/tracing"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

type FeedConfig struct {
	QueueDepth    int           `yaml:"queue_depth"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffCap    time.Duration `yaml:"backoff_cap"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	WarmupCandles int           `yaml:"warmup_candles"`
	WindowSize    int           `yaml:"window_size"`
	// requests per second and burst, per exchange name
	RateLimits map[string]RateLimit `yaml:"rate_limits"`
	OKXBaseURL string               `yaml:"okx_base_url"`
	OKXWSURL   string               `yaml:"okx_ws_url"`
	BinanceURL string               `yaml:"binance_base_url"`
	BinanceWS  string               `yaml:"binance_ws_url"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type RiskConfig struct {
	// percent of price, 1.0 => 1%
	DefaultStopPct       float64 `yaml:"stop_pct"`
	DefaultTakeProfitPct float64 `yaml:"take_profit_pct"`
	StartingBalance      float64 `yaml:"starting_balance"`
}

type DispatcherConfig struct {
	Bucket       time.Duration `yaml:"bucket"`
	DedupTTL     time.Duration `yaml:"dedup_ttl"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	StreamBuffer int           `yaml:"stream_buffer"`
	// execute signals as market orders on OKX
	ExecuteOrders bool `yaml:"execute_orders"`
}

type BacktestConfig struct {
	MaxDuration              time.Duration         `yaml:"max_duration"`
	MaxConcurrent            int                   `yaml:"max_concurrent"`
	MaxParameterCombinations int                   `yaml:"max_parameter_combinations"`
	StartingBalance          float64               `yaml:"starting_balance"`
	Execution                models.ExecutionModel `yaml:"execution"`
}

// Config ...
type Config struct {
	LogLevel string `yaml:"log_level"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB         string `yaml:"db_dsn"`
	// used when db_dsn is empty; empty keeps state in memory
	SQLitePath string `yaml:"sqlite_path"`
	Service    struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`
	OKX struct {
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"okx"`
	Tracing tracing.Config `yaml:"tracing"`

	StrategiesFile string `yaml:"strategies_file"`

	Feed       FeedConfig       `yaml:"feed"`
	Risk       RiskConfig       `yaml:"risk"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Backtest   BacktestConfig   `yaml:"backtest"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	cfg := Config{
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		StrategiesFile: getenvDefault("STRATEGIES_FILE", "configs/strategies.yaml"),
		Feed: FeedConfig{
			QueueDepth:    intFromEnv("FEED_QUEUE_DEPTH", 1000),
			BackoffBase:   durationFromEnv("FEED_BACKOFF_BASE", "1s"),
			BackoffCap:    durationFromEnv("FEED_BACKOFF_CAP", "30s"),
			StaleAfter:    durationFromEnv("FEED_STALE_AFTER", "2m"),
			WarmupCandles: intFromEnv("FEED_WARMUP_CANDLES", 100),
			WindowSize:    intFromEnv("FEED_WINDOW_SIZE", 300),
			RateLimits: map[string]RateLimit{
				"okx":     {PerSecond: 10, Burst: 20},
				"binance": {PerSecond: 20, Burst: 20},
			},
			OKXBaseURL: "https://www.okx.com",
			OKXWSURL:   "wss://ws.okx.com:8443/ws/v5/business",
			BinanceURL: "https://api.binance.com",
			BinanceWS:  "wss://stream.binance.com:9443/ws",
		},
		Risk: RiskConfig{
			DefaultStopPct:       floatFromEnv("STOP_PCT", 1.0),
			DefaultTakeProfitPct: floatFromEnv("TAKE_PROFIT_PCT", 2.0),
			StartingBalance:      floatFromEnv("STARTING_BALANCE", 10000),
		},
		Dispatcher: DispatcherConfig{
			Bucket:        durationFromEnv("DISPATCH_BUCKET", "1m"),
			DedupTTL:      durationFromEnv("DISPATCH_DEDUP_TTL", "5m"),
			MaxAttempts:   intFromEnv("DISPATCH_MAX_ATTEMPTS", 3),
			RetryDelay:    durationFromEnv("DISPATCH_RETRY_DELAY", "500ms"),
			StreamBuffer:  intFromEnv("DISPATCH_STREAM_BUFFER", 256),
			ExecuteOrders: boolFromEnv("EXECUTE_ORDERS", false),
		},
		Backtest: BacktestConfig{
			MaxDuration:              durationFromEnv("BACKTEST_MAX_DURATION", "5m"),
			MaxConcurrent:            intFromEnv("BACKTEST_MAX_CONCURRENT", 3),
			MaxParameterCombinations: intFromEnv("BACKTEST_MAX_COMBINATIONS", 100),
			StartingBalance:          floatFromEnv("BACKTEST_STARTING_BALANCE", 10000),
			Execution:                models.DefaultExecutionModel(),
		},
	}
	cfg.Service.Host = "0.0.0.0"
	cfg.Service.AdminPort = intFromEnv("ADMIN_PORT", 8080)
	return cfg
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	dir := getenvDefault(configDirENV, "configs")

	config := Default()
	if err := LoadFile(filepath.Join(dir, configFileName), &config); err != nil {
		return nil, err
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		config.SQLitePath = path
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("OKX_API_KEY"); v != "" {
		config.OKX.APIKey = v
		config.OKX.APISecret = os.Getenv("OKX_API_SECRET")
		config.OKX.Passphrase = os.Getenv("OKX_PASSPHRASE")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile decodes a yaml file over cfg. A missing file keeps the defaults.
func LoadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Feed.QueueDepth <= 0 {
		return &models.ConfigurationError{Field: "feed.queue_depth", Reason: "must be positive"}
	}
	if c.Feed.BackoffBase <= 0 || c.Feed.BackoffCap < c.Feed.BackoffBase {
		return &models.ConfigurationError{Field: "feed.backoff", Reason: "need 0 < base <= cap"}
	}
	if c.Backtest.MaxConcurrent <= 0 {
		return &models.ConfigurationError{Field: "backtest.max_concurrent", Reason: "must be positive"}
	}
	if c.Backtest.MaxParameterCombinations <= 0 {
		return &models.ConfigurationError{Field: "backtest.max_parameter_combinations", Reason: "must be positive"}
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		return &models.ConfigurationError{Field: "dispatcher.max_attempts", Reason: "must be positive"}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
