// Package config loads the quoter settings from an optional config file overlaid by
// API_-prefixed environment variables (and a .env file, when present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"bybitMaker/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DefaultRestURL  = "https://api.bybit.com"
	DefaultWSURL    = "wss://stream.bybit.com/v5/public/linear"
	DefaultTickSize = "0.1"
	EnvPrefix       = "API"
)

var ErrMissingField = errors.New("missing config field")

// Config is the immutable runtime configuration.
type Config struct {
	Key    string
	Secret string
	Symbol string
	Qty    decimal.Decimal

	// half-spread in basis points, scale 4: 10 => 0.001
	EdgeBps int64
	// minimum relative mid move, in basis points, before re-quoting
	RequoteBps decimal.Decimal
	// zero means ask the venue
	TickSize decimal.Decimal

	RestURL      string
	WSURL        string
	Refresh      time.Duration
	HTTPTimeout  time.Duration
	RateLimit    float64
	PingInterval time.Duration
	OpsAddr      string

	Logger logger.Config
}

// LogValue keeps credentials out of log output.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("symbol", c.Symbol),
		slog.String("qty", c.Qty.String()),
		slog.Int64("edge_bps", c.EdgeBps),
		slog.String("requote_bps", c.RequoteBps.String()),
		slog.String("tick_size", c.TickSize.String()),
		slog.String("rest_url", c.RestURL),
		slog.String("ws_url", c.WSURL),
		slog.Duration("refresh", c.Refresh),
		slog.String("key", "[redacted]"),
	)
}

// Topic is the level-1 order book topic for the configured symbol.
func (c Config) Topic() string {
	return "orderbook.1." + c.Symbol
}

// Load reads configPath (or config.{json,toml,yaml} from the working directory when
// empty), then applies the environment overlay and validates the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func build(v *viper.Viper) (*Config, error) {
	var missing []error
	required := func(name string) string {
		s := strings.TrimSpace(v.GetString(name))
		if s == "" {
			missing = append(missing, fmt.Errorf("%w: %s", ErrMissingField, name))
		}
		return s
	}

	cfg := &Config{
		Key:          required("key"),
		Secret:       required("secret"),
		Symbol:       strings.ToUpper(required("symbol")),
		EdgeBps:      v.GetInt64("edge_bps"),
		RestURL:      strings.TrimRight(v.GetString("rest_url"), "/"),
		WSURL:        v.GetString("ws_url"),
		Refresh:      time.Duration(v.GetInt64("refresh_ms")) * time.Millisecond,
		HTTPTimeout:  time.Duration(v.GetInt64("http_timeout_ms")) * time.Millisecond,
		RateLimit:    v.GetFloat64("rate_limit"),
		PingInterval: time.Duration(v.GetInt64("ping_interval_s")) * time.Second,
		OpsAddr:      v.GetString("ops_addr"),
	}
	qty := required("qty")
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	var err error
	if cfg.Qty, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("invalid qty %q: %w", qty, err)
	}
	if cfg.RequoteBps, err = decimal.NewFromString(v.GetString("requote_bps")); err != nil {
		return nil, fmt.Errorf("invalid requote_bps: %w", err)
	}
	if tick := v.GetString("tick_size"); tick != "" {
		if cfg.TickSize, err = decimal.NewFromString(tick); err != nil {
			return nil, fmt.Errorf("invalid tick_size %q: %w", tick, err)
		}
	}
	cfg.Logger = logger.Config{
		Level:      v.GetString("logger.level"),
		Format:     v.GetString("logger.format"),
		Output:     v.GetString("logger.output"),
		FilePath:   v.GetString("logger.file_path"),
		MaxSize:    v.GetInt("logger.max_size"),
		MaxBackups: v.GetInt("logger.max_backups"),
		MaxAge:     v.GetInt("logger.max_age"),
		Compress:   v.GetBool("logger.compress"),
		WithCaller: v.GetBool("logger.with_caller"),
	}
	return cfg, nil
}

// Validate checks ranges of the optional settings.
func (c *Config) Validate() error {
	if !c.Qty.IsPositive() {
		return fmt.Errorf("qty must be positive, got %s", c.Qty)
	}
	if c.EdgeBps < 0 || c.EdgeBps >= 10000 {
		return fmt.Errorf("edge_bps out of range: %d", c.EdgeBps)
	}
	if c.RequoteBps.IsNegative() {
		return fmt.Errorf("requote_bps must not be negative, got %s", c.RequoteBps)
	}
	if c.TickSize.IsNegative() {
		return fmt.Errorf("tick_size must not be negative, got %s", c.TickSize)
	}
	if c.Refresh <= 0 {
		return fmt.Errorf("refresh_ms must be positive")
	}
	if c.HTTPTimeout <= 0 || c.HTTPTimeout > 10*time.Second {
		return fmt.Errorf("http_timeout_ms must be in (0, 10000]")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping_interval_s must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("edge_bps", 10)
	v.SetDefault("requote_bps", "0")
	v.SetDefault("tick_size", "")
	v.SetDefault("rest_url", DefaultRestURL)
	v.SetDefault("ws_url", DefaultWSURL)
	v.SetDefault("refresh_ms", 50)
	v.SetDefault("http_timeout_ms", 10000)
	v.SetDefault("rate_limit", 10)
	v.SetDefault("ping_interval_s", 20)
	v.SetDefault("ops_addr", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/quoter.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)
}

// GetEnv returns the environment value of key or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
