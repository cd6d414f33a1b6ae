package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "memory"},
		Fallback: FallbackConfig{
			Enabled:         true,
			Key:             "sk-test",
			ConfidenceFloor: 0.6,
		},
		Pipeline: PipelineConfig{
			StageOrder:      []string{"normalize", "weight"},
			GlobalThreshold: 0.7,
			FieldThresholds: map[string]float64{"weight": 0.8},
			ErrorPolicy:     map[string]string{"parse": "recoverable"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"global threshold above one", func(c *Config) { c.Pipeline.GlobalThreshold = 1.2 }},
		{"negative field threshold", func(c *Config) { c.Pipeline.FieldThresholds["weight"] = -0.1 }},
		{"unknown error policy", func(c *Config) { c.Pipeline.ErrorPolicy["parse"] = "ignore" }},
		{"empty stage order", func(c *Config) { c.Pipeline.StageOrder = nil }},
		{"confidence floor out of range", func(c *Config) { c.Fallback.ConfidenceFloor = 2 }},
		{"fallback enabled without key", func(c *Config) { c.Fallback.Key = "" }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "dynamo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Pipeline.GlobalThreshold)
	assert.Equal(t, 0.6, cfg.Fallback.ConfidenceFloor)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentRecords)
	assert.NotEmpty(t, cfg.Pipeline.StageOrder)
}
