package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Symbols)

	assert.Equal(t, 252, cfg.Engine.Lookback)
	assert.Equal(t, 252.0, cfg.Engine.PeriodsPerYear)
	assert.Equal(t, 0.05, cfg.Engine.Tau)
	assert.Equal(t, 2.5, cfg.Engine.Delta)
	assert.Equal(t, BlendDiagonal, cfg.Engine.BlendPolicy)
	assert.Equal(t, StrategyMaxSharpe, cfg.Engine.Strategy)
	assert.Equal(t, -1.0, cfg.Engine.LowerBound)
	assert.Equal(t, 1.0, cfg.Engine.UpperBound)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ALLOCATOR_DATA_DIR", t.TempDir())
	t.Setenv("ALLOCATOR_PORT", "9100")
	t.Setenv("ALLOCATOR_SYMBOLS", "AAA, BBB ,CCC")
	t.Setenv("BL_TAU", "0.1")
	t.Setenv("BLEND_POLICY", BlendPrecision)
	t.Setenv("OPTIMIZER_STRATEGY", StrategyMinVolatility)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, cfg.Symbols)
	assert.Equal(t, 0.1, cfg.Engine.Tau)
	assert.Equal(t, BlendPrecision, cfg.Engine.BlendPolicy)
	assert.Equal(t, StrategyMinVolatility, cfg.Engine.Strategy)
}

func TestValidate(t *testing.T) {
	valid := EngineConfig{
		Lookback:       252,
		PeriodsPerYear: 252,
		Tau:            0.05,
		Delta:          2.5,
		LowerBound:     -1,
		UpperBound:     1,
		BlendPolicy:    BlendDiagonal,
		Strategy:       StrategyMaxSharpe,
		WeightCutoff:   0.001,
	}

	tests := []struct {
		name    string
		mutate  func(e *EngineConfig)
		wantErr bool
	}{
		{"valid", func(e *EngineConfig) {}, false},
		{"lookback too short", func(e *EngineConfig) { e.Lookback = 1 }, true},
		{"non-positive periods per year", func(e *EngineConfig) { e.PeriodsPerYear = 0 }, true},
		{"non-positive tau", func(e *EngineConfig) { e.Tau = 0 }, true},
		{"non-positive delta", func(e *EngineConfig) { e.Delta = -1 }, true},
		{"inverted bounds", func(e *EngineConfig) { e.LowerBound = 1; e.UpperBound = 0.5 }, true},
		{"upper bound below one", func(e *EngineConfig) { e.UpperBound = 0.9 }, true},
		{"unknown blend policy", func(e *EngineConfig) { e.BlendPolicy = "bogus" }, true},
		{"unknown strategy", func(e *EngineConfig) { e.Strategy = "bogus" }, true},
		{"cutoff out of range", func(e *EngineConfig) { e.WeightCutoff = 0.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := valid
			tt.mutate(&engine)
			err := (&Config{Engine: engine}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
