package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dgnsrekt/pnl_agent/internal/pricing"
)

// Config holds all configuration for the P&L controller.
type Config struct {
	// CDP connection settings
	CDPAddress   string `validate:"required"`
	CDPPort      int    `validate:"min=1,max=65535"`
	TabURLFilter string `validate:"required"`
	Driver       string `validate:"oneof=raw chromedp"`
	EvalTimeout  time.Duration

	// Control API
	BindAddr       string `validate:"required,hostname_port"`
	PortCandidates string
	AutoFallback   bool

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	// Price providers
	QuoteURL    string `validate:"required,url"`
	QuotePath   string `validate:"required,startswith=$"`
	CandlesURL  string `validate:"required,url"`
	HTTPTimeout time.Duration

	// Stabilization and navigation
	WaitQuietWindow   time.Duration
	WaitQuietCeiling  time.Duration
	WaitPollInterval  time.Duration
	WaitMaxIterations int `validate:"min=1"`
	WaitTimeout       time.Duration
	SelectTimeout     time.Duration
	CycleTimeout      time.Duration

	// Outputs
	JournalDir   string
	NTFYEndpoint string `validate:"omitempty,url"`
	LayoutFile   string
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:      getEnvOrDefault("PNL_TAB_URL_FILTER", "coinbase.com"),
		Driver:            strings.ToLower(getEnvOrDefault("PNL_CDP_DRIVER", "raw")),
		EvalTimeout:       getEnvMillisOrDefault("PNL_EVAL_TIMEOUT_MS", 5*time.Second),
		BindAddr:          getEnvOrDefault("PNL_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    getEnvOrDefault("PNL_PORT_CANDIDATES", "8191,8192,8193"),
		AutoFallback:      getEnvBoolOrDefault("PNL_PORT_AUTO_FALLBACK", true),
		LogLevel:          strings.ToLower(getEnvOrDefault("PNL_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("PNL_LOG_FILE", "logs/pnl_controller.log"),
		QuoteURL:          getEnvOrDefault("PNL_QUOTE_URL", pricing.DefaultQuoteURL),
		QuotePath:         getEnvOrDefault("PNL_QUOTE_PATH", pricing.DefaultQuotePath),
		CandlesURL:        getEnvOrDefault("PNL_CANDLES_URL", pricing.DefaultCandlesURL),
		HTTPTimeout:       getEnvMillisOrDefault("PNL_HTTP_TIMEOUT_MS", 10*time.Second),
		WaitQuietWindow:   getEnvMillisOrDefault("PNL_WAIT_QUIET_MS", 500*time.Millisecond),
		WaitQuietCeiling:  getEnvMillisOrDefault("PNL_WAIT_CEILING_MS", 4*time.Second),
		WaitPollInterval:  getEnvMillisOrDefault("PNL_WAIT_POLL_MS", 150*time.Millisecond),
		WaitMaxIterations: getEnvIntOrDefault("PNL_WAIT_MAX_ITERATIONS", 30),
		WaitTimeout:       getEnvMillisOrDefault("PNL_WAIT_TIMEOUT_MS", 45*time.Second),
		SelectTimeout:     getEnvMillisOrDefault("PNL_SELECT_TIMEOUT_MS", 5*time.Second),
		CycleTimeout:      getEnvMillisOrDefault("PNL_CYCLE_TIMEOUT_MS", 3*time.Minute),
		JournalDir:        getEnvOrDefault("PNL_JOURNAL_DIR", ""),
		NTFYEndpoint:      getEnvOrDefault("PNL_NTFY_ENDPOINT", ""),
		LayoutFile:        getEnvOrDefault("PNL_LAYOUT_FILE", ""),
	}
	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// BindHost is the host part of BindAddr, used for port-only candidates.
func (c *Config) BindHost() string {
	host, _, err := net.SplitHostPort(c.BindAddr)
	if err != nil || host == "" {
		return "127.0.0.1"
	}
	return host
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvMillisOrDefault reads an integer millisecond count; Go duration
// strings ("750ms", "2s") are accepted too.
func getEnvMillisOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	return defaultVal
}
