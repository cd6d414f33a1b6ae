package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roastcraft/enrich-cli/internal/evaluator"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fallback  FallbackConfig  `yaml:"fallback" mapstructure:"fallback"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the enrichment store backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"` // sqlite | postgres | memory
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional postgres pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// FallbackConfig configures the external inference service.
type FallbackConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`

	// ConfidenceFloor is assumed for fallback results when the service
	// returns no confidence of its own.
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`

	// TimeoutSecs bounds a single inference call. Deterministic
	// extraction is not subject to a timeout.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call fallback timeout as a duration.
func (f FallbackConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// PipelineConfig configures stage order and the decision policy.
type PipelineConfig struct {
	StageOrder      []string           `yaml:"stage_order" mapstructure:"stage_order"`
	GlobalThreshold float64            `yaml:"global_threshold" mapstructure:"global_threshold"`
	FieldThresholds map[string]float64 `yaml:"field_thresholds" mapstructure:"field_thresholds"`

	// ErrorPolicy maps an error kind to "recoverable" or "fatal". The
	// engine does not hardcode which extractor errors are fatal.
	ErrorPolicy map[string]string `yaml:"error_policy" mapstructure:"error_policy"`

	// RulesFile optionally points at a YAML file of confidence
	// adjustment rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// RateLimitConfig configures per-source token buckets for fallback calls.
type RateLimitConfig struct {
	PerSource  map[string]float64 `yaml:"per_source" mapstructure:"per_source"` // requests per second
	DefaultRPS float64            `yaml:"default_rps" mapstructure:"default_rps"`
	Burst      int                `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig configures the fallback inference cache.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// RetryConfig configures fallback retry behavior.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	MaxConcurrentRecords int `yaml:"max_concurrent_records" mapstructure:"max_concurrent_records"`
	MaxDLQRetries        int `yaml:"max_dlq_retries" mapstructure:"max_dlq_retries"`
}

// NotifyConfig configures the review-required webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json | console
}

// Load reads configuration from config.yaml and ENRICH_* environment
// variables, applying defaults for every knob.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fallback.enabled", true)
	v.SetDefault("fallback.model", "claude-haiku-4-5-20251001")
	v.SetDefault("fallback.max_tokens", 1024)
	v.SetDefault("fallback.confidence_floor", 0.6)
	v.SetDefault("fallback.timeout_secs", 30)
	v.SetDefault("pipeline.stage_order", []string{"normalize", "weight", "roast", "origin", "variety", "process"})
	v.SetDefault("pipeline.global_threshold", evaluator.DefaultGlobalThreshold)
	v.SetDefault("rate_limit.default_rps", 2.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("batch.max_concurrent_records", 5)
	v.SetDefault("batch.max_dlq_retries", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration before any record is processed.
// Violations are fatal at startup.
func (c *Config) Validate() error {
	if c.Pipeline.GlobalThreshold < 0 || c.Pipeline.GlobalThreshold > 1 {
		return eris.Errorf("config: global_threshold %.2f outside [0,1]", c.Pipeline.GlobalThreshold)
	}
	for field, th := range c.Pipeline.FieldThresholds {
		if th < 0 || th > 1 {
			return eris.Errorf("config: threshold %.2f for field %q outside [0,1]", th, field)
		}
	}
	for kind, policy := range c.Pipeline.ErrorPolicy {
		if policy != "recoverable" && policy != "fatal" {
			return eris.Errorf("config: error_policy[%s] = %q, want recoverable or fatal", kind, policy)
		}
	}
	if len(c.Pipeline.StageOrder) == 0 {
		return eris.New("config: pipeline.stage_order is empty")
	}
	if c.Fallback.ConfidenceFloor < 0 || c.Fallback.ConfidenceFloor > 1 {
		return eris.Errorf("config: fallback.confidence_floor %.2f outside [0,1]", c.Fallback.ConfidenceFloor)
	}
	if c.Fallback.Enabled && c.Fallback.Key == "" {
		return eris.New("config: fallback enabled but ENRICH_FALLBACK_KEY not set")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// InitLogger configures the global zap logger from LogConfig.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
