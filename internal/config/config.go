// Package config loads cropadvisor configuration from config.yaml and
// CROPADVISOR_* environment variables, and builds the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/cropadvisor/internal/advisory"
	"github.com/dshills/cropadvisor/internal/engine"
	"github.com/dshills/cropadvisor/internal/profile"
	"github.com/dshills/cropadvisor/internal/reconcile"
	"github.com/dshills/cropadvisor/internal/suitability"
	"github.com/dshills/cropadvisor/internal/yield"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Advisory  AdvisoryConfig  `yaml:"advisory" mapstructure:"advisory"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Yield     YieldConfig     `yaml:"yield" mapstructure:"yield"`
	Knowledge KnowledgeConfig `yaml:"knowledge" mapstructure:"knowledge"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// AdvisoryConfig configures the external advisory service.
type AdvisoryConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	Model         string  `yaml:"model" mapstructure:"model"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens     int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerMinute int     `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	Profile       string  `yaml:"profile" mapstructure:"profile"`
}

// EngineConfig sizes the shortlist and the final answer.
type EngineConfig struct {
	ShortlistLimit int `yaml:"shortlist_limit" mapstructure:"shortlist_limit"`
	FinalCount     int `yaml:"final_count" mapstructure:"final_count"`
}

// ScoringConfig holds the season weights.
type ScoringConfig struct {
	SeasonBonus   float64 `yaml:"season_bonus" mapstructure:"season_bonus"`
	SeasonPenalty float64 `yaml:"season_penalty" mapstructure:"season_penalty"`
}

// YieldConfig holds the yield factor calibration.
type YieldConfig struct {
	TemperatureSpread float64 `yaml:"temperature_spread" mapstructure:"temperature_spread"`
	MoistureMin       float64 `yaml:"moisture_min" mapstructure:"moisture_min"`
	MoistureMax       float64 `yaml:"moisture_max" mapstructure:"moisture_max"`
	NutrientMin       float64 `yaml:"nutrient_min" mapstructure:"nutrient_min"`
	NutrientMax       float64 `yaml:"nutrient_max" mapstructure:"nutrient_max"`
}

// KnowledgeConfig points at an alternative crop table. Empty means the
// embedded table.
type KnowledgeConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures CLI batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CROPADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	weights := suitability.DefaultWeights()
	factors := yield.DefaultFactors()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("advisory.provider", advisory.DefaultProvider)
	v.SetDefault("advisory.model", advisory.DefaultModel)
	v.SetDefault("advisory.temperature", 0.0)
	v.SetDefault("advisory.max_tokens", advisory.DefaultMaxTokens)
	v.SetDefault("advisory.timeout_secs", int(advisory.DefaultTimeout/time.Second))
	v.SetDefault("advisory.rate_per_minute", 0)
	v.SetDefault("advisory.profile", profile.DefaultName)
	v.SetDefault("engine.shortlist_limit", suitability.DefaultShortlistLimit)
	v.SetDefault("engine.final_count", reconcile.DefaultCount)
	v.SetDefault("scoring.season_bonus", weights.SeasonBonus)
	v.SetDefault("scoring.season_penalty", weights.SeasonPenalty)
	v.SetDefault("yield.temperature_spread", factors.TemperatureSpread)
	v.SetDefault("yield.moisture_min", factors.MoistureMin)
	v.SetDefault("yield.moisture_max", factors.MoistureMax)
	v.SetDefault("yield.nutrient_min", factors.NutrientMin)
	v.SetDefault("yield.nutrient_max", factors.NutrientMax)
	v.SetDefault("knowledge.path", "")
	v.SetDefault("batch.concurrency", 4)

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

// Validate reports every inconsistent value in one error.
func (c *Config) Validate() error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	timeout := time.Duration(c.Advisory.TimeoutSecs) * time.Second
	if timeout < advisory.MinTimeout || timeout > advisory.MaxTimeout {
		add("advisory.timeout_secs must be between 20 and 60")
	}
	if c.Advisory.MaxTokens <= 0 {
		add("advisory.max_tokens must be positive")
	}
	if c.Advisory.RatePerMinute < 0 {
		add("advisory.rate_per_minute must not be negative")
	}
	if c.Engine.ShortlistLimit <= 0 {
		add("engine.shortlist_limit must be positive")
	}
	if c.Engine.FinalCount <= 0 || c.Engine.FinalCount > c.Engine.ShortlistLimit {
		add("engine.final_count must be between 1 and engine.shortlist_limit")
	}
	if c.Yield.TemperatureSpread <= 0 {
		add("yield.temperature_spread must be positive")
	}
	if c.Yield.MoistureMin < 0 || c.Yield.MoistureMin > c.Yield.MoistureMax {
		add("yield.moisture_min must be between 0 and yield.moisture_max")
	}
	if c.Yield.NutrientMin < 0 || c.Yield.NutrientMin > c.Yield.NutrientMax {
		add("yield.nutrient_min must be between 0 and yield.nutrient_max")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be positive")
	}
	if c.Batch.Concurrency <= 0 {
		add("batch.concurrency must be positive")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EngineTunables converts the scoring and yield sections to engine tunables.
func (c *Config) EngineTunables() engine.Config {
	factors := yield.DefaultFactors()
	factors.TemperatureSpread = c.Yield.TemperatureSpread
	factors.MoistureMin = c.Yield.MoistureMin
	factors.MoistureMax = c.Yield.MoistureMax
	factors.NutrientMin = c.Yield.NutrientMin
	factors.NutrientMax = c.Yield.NutrientMax
	return engine.Config{
		ShortlistLimit: c.Engine.ShortlistLimit,
		FinalCount:     c.Engine.FinalCount,
		Weights: suitability.Weights{
			SeasonBonus:   c.Scoring.SeasonBonus,
			SeasonPenalty: c.Scoring.SeasonPenalty,
		},
		Factors: factors,
	}
}

// AdvisoryOptions converts the advisory section to client options. An
// unknown profile name is an error.
func (c *Config) AdvisoryOptions() (advisory.Options, error) {
	prof, err := profile.Load(c.Advisory.Profile)
	if err != nil {
		return advisory.Options{}, eris.Wrap(err, "config: advisory profile")
	}
	return advisory.Options{
		Provider:      c.Advisory.Provider,
		Model:         c.Advisory.Model,
		Temperature:   c.Advisory.Temperature,
		MaxTokens:     c.Advisory.MaxTokens,
		Timeout:       time.Duration(c.Advisory.TimeoutSecs) * time.Second,
		RatePerMinute: c.Advisory.RatePerMinute,
		EntryCount:    c.Engine.FinalCount,
		Profile:       prof,
	}, nil
}

// InitLogger initializes the global zap logger.
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
