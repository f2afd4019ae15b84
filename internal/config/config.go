// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Blend policy names recognized by BlendPolicy.
const (
	BlendNone      = "none"      // equilibrium-only, views ignored
	BlendDiagonal  = "diagonal"  // diagonal view uncertainty, covariance-adjusted posterior
	BlendPrecision = "precision" // full precision-weighted combination
)

// Optimizer strategy names recognized by Strategy.
const (
	StrategyMaxSharpe     = "max_sharpe"
	StrategyMinVolatility = "min_volatility"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	Port              int
	LogLevel          string
	DevMode           bool
	RebalanceSchedule string   // cron expression for the rebalance job
	Symbols           []string // initial investable universe

	Engine EngineConfig
}

// EngineConfig holds the numerical parameters of the allocation engine.
type EngineConfig struct {
	Lookback       int     // rolling window length L, in periods
	PeriodsPerYear float64 // 252 for daily data
	RiskFreeRate   float64 // annualized
	Tau            float64 // view-uncertainty scale
	Delta          float64 // market risk-aversion scale for the posterior covariance
	LowerBound     float64 // per-asset weight lower bound
	UpperBound     float64 // per-asset weight upper bound
	BlendPolicy    string  // none | diagonal | precision
	Strategy       string  // max_sharpe | min_volatility
	TargetReturn   float64 // only used by min_volatility
	WeightCutoff   float64 // weights below this magnitude are dropped
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("ALLOCATOR_PORT", 8010),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		RebalanceSchedule: getEnv("REBALANCE_SCHEDULE", "0 30 17 * * MON-FRI"),
		Symbols:           splitCSV(getEnv("ALLOCATOR_SYMBOLS", "")),
		Engine: EngineConfig{
			Lookback:       getEnvAsInt("LOOKBACK_PERIODS", 252),
			PeriodsPerYear: getEnvAsFloat("PERIODS_PER_YEAR", 252.0),
			RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.0),
			Tau:            getEnvAsFloat("BL_TAU", 0.05),
			Delta:          getEnvAsFloat("BL_DELTA", 2.5),
			LowerBound:     getEnvAsFloat("WEIGHT_LOWER_BOUND", -1.0),
			UpperBound:     getEnvAsFloat("WEIGHT_UPPER_BOUND", 1.0),
			BlendPolicy:    getEnv("BLEND_POLICY", BlendDiagonal),
			Strategy:       getEnv("OPTIMIZER_STRATEGY", StrategyMaxSharpe),
			TargetReturn:   getEnvAsFloat("TARGET_RETURN", 0.0),
			WeightCutoff:   getEnvAsFloat("WEIGHT_CUTOFF", 0.001),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	e := c.Engine

	if e.Lookback < 2 {
		return fmt.Errorf("lookback must be at least 2 periods, got %d", e.Lookback)
	}
	if e.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods per year must be positive, got %f", e.PeriodsPerYear)
	}
	if e.Tau <= 0 {
		return fmt.Errorf("tau must be positive, got %f", e.Tau)
	}
	if e.Delta <= 0 {
		return fmt.Errorf("delta must be positive, got %f", e.Delta)
	}
	if e.LowerBound >= e.UpperBound {
		return fmt.Errorf("weight lower bound %f must be below upper bound %f", e.LowerBound, e.UpperBound)
	}
	if e.UpperBound < 1.0 {
		// The budget constraint sum(w)=1 is unsatisfiable if no asset may
		// reach its equal-weight share and N=1.
		return fmt.Errorf("weight upper bound %f leaves the budget constraint unsatisfiable", e.UpperBound)
	}

	switch e.BlendPolicy {
	case BlendNone, BlendDiagonal, BlendPrecision:
	default:
		return fmt.Errorf("unknown blend policy: %s", e.BlendPolicy)
	}

	switch e.Strategy {
	case StrategyMaxSharpe, StrategyMinVolatility:
	default:
		return fmt.Errorf("unknown optimizer strategy: %s", e.Strategy)
	}

	if e.WeightCutoff < 0 || e.WeightCutoff >= 0.5 {
		return fmt.Errorf("weight cutoff %f out of range [0, 0.5)", e.WeightCutoff)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
