// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/sentinel-alerts/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	LogPretty bool
	LogFile   string // Optional rotating log file

	Evaluation EvaluationConfig
	Tax        TaxConfig
	Rebalance  RebalanceConfig
	Alerts     AlertDefaults
	Risk       RiskConfig
	Jobs       JobsConfig

	AlpacaAPIKey    string
	AlpacaAPISecret string
	CryptoSymbols   []string // symbols quoted as crypto pairs
}

// EvaluationConfig controls how and when evaluation passes run.
type EvaluationConfig struct {
	Schedule      string        // cron expression with seconds field
	Workers       int           // parallel rule evaluations per pass
	OracleTimeout time.Duration // per PriceOracle call
	SinkTimeout   time.Duration // per NotificationSink call
	PriceCacheTTL time.Duration // reuse of cached quotes across passes (0 disables)
	Currency      string        // ISO code used when formatting alert messages
}

// TaxConfig holds tax-lot analytics parameters.
type TaxConfig struct {
	Rate             float64 // rate applied to harvested losses
	ShortTermRate    float64
	LongTermRate     float64
	LossFloor        float64 // minimum loss recorded as an opportunity
	HarvestThreshold float64 // minimum loss included in the harvestable subtotal
	LargeLossCutoff  float64 // minimum loss promoted to high priority
}

// RebalanceConfig holds drift detection parameters.
type RebalanceConfig struct {
	ThresholdPct float64
	FeeRate      float64
}

// AlertDefaults are used when a rule does not configure the value itself.
type AlertDefaults struct {
	DCAIntervalDays       int
	SentimentLowThreshold float64
	CooldownHours         int
}

// RiskConfig holds risk metric parameters.
type RiskConfig struct {
	RiskFreeRate    float64
	BenchmarkSymbol string
	LookbackDays    int
}

// JobsConfig schedules the background jobs that run next to evaluation.
type JobsConfig struct {
	MaintenanceSchedule string
	HistorySyncSchedule string
	RetentionDays       int // triggered alerts and notifications older than this are pruned
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config file named by CONFIG_FILE.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	absDataDir, err := filepath.Abs(v.GetString("DATA_DIR"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogPretty: v.GetBool("LOG_PRETTY"),
		LogFile:   v.GetString("LOG_FILE"),
		Evaluation: EvaluationConfig{
			Schedule:      v.GetString("EVALUATION_SCHEDULE"),
			Workers:       v.GetInt("EVALUATION_WORKERS"),
			OracleTimeout: v.GetDuration("ORACLE_TIMEOUT"),
			SinkTimeout:   v.GetDuration("SINK_TIMEOUT"),
			PriceCacheTTL: v.GetDuration("PRICE_CACHE_TTL"),
			Currency:      strings.ToUpper(v.GetString("CURRENCY")),
		},
		Tax: TaxConfig{
			Rate:             v.GetFloat64("TAX_RATE"),
			ShortTermRate:    v.GetFloat64("SHORT_TERM_TAX_RATE"),
			LongTermRate:     v.GetFloat64("LONG_TERM_TAX_RATE"),
			LossFloor:        v.GetFloat64("HARVEST_LOSS_FLOOR"),
			HarvestThreshold: v.GetFloat64("HARVEST_THRESHOLD"),
			LargeLossCutoff:  v.GetFloat64("LARGE_LOSS_CUTOFF"),
		},
		Rebalance: RebalanceConfig{
			ThresholdPct: v.GetFloat64("REBALANCE_THRESHOLD_PCT"),
			FeeRate:      v.GetFloat64("TRADING_FEE_RATE"),
		},
		Alerts: AlertDefaults{
			DCAIntervalDays:       v.GetInt("DCA_INTERVAL_DAYS"),
			SentimentLowThreshold: v.GetFloat64("SENTIMENT_LOW_THRESHOLD"),
			CooldownHours:         v.GetInt("ALERT_COOLDOWN_HOURS"),
		},
		Risk: RiskConfig{
			RiskFreeRate:    v.GetFloat64("RISK_FREE_RATE"),
			BenchmarkSymbol: utils.NormalizeSymbol(v.GetString("BENCHMARK_SYMBOL")),
			LookbackDays:    v.GetInt("RISK_LOOKBACK_DAYS"),
		},
		Jobs: JobsConfig{
			MaintenanceSchedule: v.GetString("MAINTENANCE_SCHEDULE"),
			HistorySyncSchedule: v.GetString("HISTORY_SYNC_SCHEDULE"),
			RetentionDays:       v.GetInt("ALERT_RETENTION_DAYS"),
		},
		AlpacaAPIKey:    v.GetString("ALPACA_API_KEY"),
		AlpacaAPISecret: v.GetString("ALPACA_API_SECRET"),
		CryptoSymbols:   utils.ParseSymbols(v.GetString("CRYPTO_SYMBOLS")),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("EVALUATION_SCHEDULE", "0 */5 * * * *") // every 5 minutes
	v.SetDefault("EVALUATION_WORKERS", 4)
	v.SetDefault("ORACLE_TIMEOUT", 10*time.Second)
	v.SetDefault("SINK_TIMEOUT", 10*time.Second)
	v.SetDefault("PRICE_CACHE_TTL", time.Duration(0))
	v.SetDefault("CURRENCY", "USD")

	v.SetDefault("TAX_RATE", 0.22)
	v.SetDefault("SHORT_TERM_TAX_RATE", 0.32)
	v.SetDefault("LONG_TERM_TAX_RATE", 0.15)
	v.SetDefault("HARVEST_LOSS_FLOOR", 50.0)
	v.SetDefault("HARVEST_THRESHOLD", 100.0)
	v.SetDefault("LARGE_LOSS_CUTOFF", 100.0)

	v.SetDefault("REBALANCE_THRESHOLD_PCT", 5.0)
	v.SetDefault("TRADING_FEE_RATE", 0.001)

	v.SetDefault("DCA_INTERVAL_DAYS", 7)
	v.SetDefault("SENTIMENT_LOW_THRESHOLD", 20.0)
	v.SetDefault("ALERT_COOLDOWN_HOURS", 24)

	v.SetDefault("RISK_FREE_RATE", 0.02)
	v.SetDefault("BENCHMARK_SYMBOL", "SPY")
	v.SetDefault("RISK_LOOKBACK_DAYS", 252)

	v.SetDefault("MAINTENANCE_SCHEDULE", "0 30 3 * * *")   // daily at 03:30
	v.SetDefault("HISTORY_SYNC_SCHEDULE", "0 15 22 * * *") // daily at 22:15, after US close
	v.SetDefault("ALERT_RETENTION_DAYS", 180)

	v.SetDefault("ALPACA_API_KEY", "")
	v.SetDefault("ALPACA_API_SECRET", "")
	v.SetDefault("CRYPTO_SYMBOLS", "BTC,ETH")
}

// Validate checks that every knob is inside its meaningful range
func (c *Config) Validate() error {
	rates := map[string]float64{
		"TAX_RATE":            c.Tax.Rate,
		"SHORT_TERM_TAX_RATE": c.Tax.ShortTermRate,
		"LONG_TERM_TAX_RATE":  c.Tax.LongTermRate,
		"TRADING_FEE_RATE":    c.Rebalance.FeeRate,
	}
	for name, rate := range rates {
		if rate < 0 || rate >= 1 {
			return fmt.Errorf("%s must be in [0, 1), got %v", name, rate)
		}
	}

	if c.Tax.LossFloor < 0 || c.Tax.HarvestThreshold < 0 || c.Tax.LargeLossCutoff < 0 {
		return fmt.Errorf("harvest thresholds must not be negative")
	}
	if c.Rebalance.ThresholdPct <= 0 || c.Rebalance.ThresholdPct >= 100 {
		return fmt.Errorf("REBALANCE_THRESHOLD_PCT must be in (0, 100), got %v", c.Rebalance.ThresholdPct)
	}
	if c.Alerts.SentimentLowThreshold < 0 || c.Alerts.SentimentLowThreshold >= 50 {
		return fmt.Errorf("SENTIMENT_LOW_THRESHOLD must be in [0, 50), got %v", c.Alerts.SentimentLowThreshold)
	}
	if c.Alerts.DCAIntervalDays <= 0 {
		return fmt.Errorf("DCA_INTERVAL_DAYS must be positive, got %d", c.Alerts.DCAIntervalDays)
	}
	if c.Evaluation.Workers <= 0 {
		return fmt.Errorf("EVALUATION_WORKERS must be positive, got %d", c.Evaluation.Workers)
	}
	if c.Evaluation.OracleTimeout <= 0 || c.Evaluation.SinkTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT and SINK_TIMEOUT must be positive")
	}
	if c.Evaluation.Schedule == "" {
		return fmt.Errorf("EVALUATION_SCHEDULE is required")
	}
	if c.Jobs.RetentionDays <= 0 {
		return fmt.Errorf("ALERT_RETENTION_DAYS must be positive, got %d", c.Jobs.RetentionDays)
	}

	return nil
}

// DatabasePath returns the absolute path of a named database inside DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}
