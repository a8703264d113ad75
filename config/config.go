package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"candleView/internal/adapters/logger" // Import the logger package for LogLevel
	"candleView/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (history). Public market data needs no credentials;
	// keys are only read so the client can reuse them when present.
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Chart Parameters
	Symbol            string             // History venue symbol, e.g. ETHUSDT
	ProductID         string             // Feed product id, e.g. ETH-USD
	Granularity       domain.Granularity // Initial bucket width
	HistoryLimit      int                // Bars per history fetch
	DefaultWindowBars int                // Visible window right after a seed
	MinVisibleBars    int                // Zoom-in floor

	// Live Feed
	FeedURL        string
	ReconnectDelay time.Duration

	// Rendering
	RedrawMinInterval time.Duration // Throttle floor for tick-driven repaints
	ChartWidth        int           // Fallback frame size until the host reports one
	ChartHeight       int

	// Database
	DBPath string

	// Logging
	LogLevel   logger.LogLevel // Use the LogLevel type from the logger adapter
	LogBackend string          // "zap" or "std"
	LogFile    string          // Destination file; empty means stderr
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Chart Parameters
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.ProductID = getEnv("PRODUCT_ID", "ETH-USD")
	if cfg.ProductID == "" {
		errs = append(errs, "PRODUCT_ID must be set")
	}

	granStr := getEnv("GRANULARITY", "1h")
	cfg.Granularity, err = domain.ParseGranularity(granStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid GRANULARITY: %v", err))
	}

	cfg.HistoryLimit, err = getEnvAsIntRequired("HISTORY_LIMIT", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HISTORY_LIMIT: %v", err))
	} else if cfg.HistoryLimit <= 0 {
		errs = append(errs, "HISTORY_LIMIT must be positive")
	}

	cfg.DefaultWindowBars, err = getEnvAsIntRequired("DEFAULT_WINDOW_BARS", 120)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_WINDOW_BARS: %v", err))
	} else if cfg.DefaultWindowBars <= 0 {
		errs = append(errs, "DEFAULT_WINDOW_BARS must be positive")
	}

	cfg.MinVisibleBars, err = getEnvAsIntRequired("MIN_VISIBLE_BARS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_VISIBLE_BARS: %v", err))
	} else if cfg.MinVisibleBars <= 0 {
		errs = append(errs, "MIN_VISIBLE_BARS must be positive")
	}

	if cfg.DefaultWindowBars > 0 && cfg.MinVisibleBars > 0 && cfg.DefaultWindowBars < cfg.MinVisibleBars {
		errs = append(errs, "DEFAULT_WINDOW_BARS must be at least MIN_VISIBLE_BARS")
	}

	// Live Feed
	cfg.FeedURL = getEnv("FEED_URL", "wss://ws-feed.exchange.coinbase.com")
	if cfg.FeedURL == "" {
		errs = append(errs, "FEED_URL must be set")
	}

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	// Rendering
	redrawMs := getEnvAsInt("REDRAW_MIN_INTERVAL_MS", 250)
	if redrawMs <= 0 {
		errs = append(errs, "REDRAW_MIN_INTERVAL_MS must be positive")
	}
	cfg.RedrawMinInterval = time.Duration(redrawMs) * time.Millisecond

	cfg.ChartWidth = getEnvAsInt("CHART_WIDTH", 120)
	cfg.ChartHeight = getEnvAsInt("CHART_HEIGHT", 32)
	if cfg.ChartWidth <= 0 || cfg.ChartHeight <= 0 {
		errs = append(errs, "CHART_WIDTH and CHART_HEIGHT must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/candleview.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogBackend = strings.ToLower(getEnv("LOG_BACKEND", "zap"))
	if cfg.LogBackend != "zap" && cfg.LogBackend != "std" {
		errs = append(errs, fmt.Sprintf("invalid LOG_BACKEND '%s' (want zap or std)", cfg.LogBackend))
	}
	cfg.LogFile = getEnv("LOG_FILE", "./data/candleview.log")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
