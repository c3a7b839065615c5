package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/pattern"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "transmute.yaml"

// EnvPrefix prefixes every environment override, e.g. TRANSMUTE_LOG_LEVEL.
const EnvPrefix = "TRANSMUTE"

// Config represents the transmute configuration
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Constraints ConstraintsConfig `mapstructure:"constraints"`
	Generator   GeneratorConfig   `mapstructure:"generator"`
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Server      ServerConfig      `mapstructure:"server"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// AnalysisConfig controls pattern detection and filtering. Threshold, when
// set, takes precedence over Preset.
type AnalysisConfig struct {
	Threshold           *float64 `mapstructure:"threshold"`
	Preset              string   `mapstructure:"preset"`
	MaxExamples         int      `mapstructure:"max_examples"`
	MaxDepth            int      `mapstructure:"max_depth"`
	MaxArrayIndex       int      `mapstructure:"max_array_index"`
	MaxArrayElements    int      `mapstructure:"max_array_elements"`
	MaxExcludedFraction float64  `mapstructure:"max_excluded_fraction"`
	Concurrency         int      `mapstructure:"concurrency"`
}

// ConstraintsConfig overrides the enforcer defaults. Empty fields keep them.
type ConstraintsConfig struct {
	AllowedImports   []string          `mapstructure:"allowed_imports"`
	ExtraImports     []string          `mapstructure:"extra_imports"`
	DeniedImports    map[string]string `mapstructure:"denied_imports"`
	MaxCyclomatic    int               `mapstructure:"max_cyclomatic"`
	MaxFunctionLines int               `mapstructure:"max_function_lines"`
	MaxTypeLines     int               `mapstructure:"max_type_lines"`
	HardMultiple     float64           `mapstructure:"hard_multiple"`
	Severities       map[string]string `mapstructure:"severities"`
	Disabled         []string          `mapstructure:"disabled"`
}

// GeneratorConfig represents LLM generator configuration
type GeneratorConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	PackageName string        `mapstructure:"package_name"`
	TypeName    string        `mapstructure:"type_name"`
}

// StoreConfig represents run history storage. An empty DSN disables it.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig represents validation cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	Prefix        string        `mapstructure:"prefix"`
}

// ServerConfig represents HTTP API configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	APIKeyHashes    []string      `mapstructure:"api_key_hashes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.development", false)

	opts := pattern.DefaultOptions()
	v.SetDefault("analysis.preset", filter.DefaultPreset)
	v.SetDefault("analysis.max_examples", opts.MaxExamples)
	v.SetDefault("analysis.max_depth", opts.MaxDepth)
	v.SetDefault("analysis.max_array_index", opts.MaxArrayIndex)
	v.SetDefault("analysis.max_array_elements", opts.MaxArrayElements)
	v.SetDefault("analysis.max_excluded_fraction", filter.DefaultWarningOptions().MaxExcludedFraction)
	v.SetDefault("analysis.concurrency", 4)

	def := constraint.DefaultConfig()
	v.SetDefault("constraints.max_cyclomatic", def.MaxCyclomatic)
	v.SetDefault("constraints.max_function_lines", def.MaxFunctionLines)
	v.SetDefault("constraints.max_type_lines", def.MaxTypeLines)
	v.SetDefault("constraints.hard_multiple", def.HardMultiple)

	v.SetDefault("generator.provider", string(generate.ProviderClaude))
	v.SetDefault("generator.model", "claude-sonnet-4-5")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("generator.max_retries", 2)
	v.SetDefault("generator.max_attempts", generate.DefaultMaxAttempts)
	v.SetDefault("generator.max_tokens", 4096)
	v.SetDefault("generator.package_name", "transform")
	v.SetDefault("generator.type_name", "RecordExtractor")

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.prefix", "transmute:")

	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", int64(4<<20))
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load loads the configuration from path, or from transmute.yaml in the
// working directory when path is empty. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default exists for the threshold, so its variable is bound explicitly.
	_ = v.BindEnv("analysis.threshold")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Generator.APIKey == "" {
		cfg.Generator.APIKey = providerKeyFromEnv(cfg.Generator.Provider)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerKeyFromEnv falls back to the provider's conventional variable.
func providerKeyFromEnv(provider string) string {
	switch generate.ProviderType(provider) {
	case generate.ProviderClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	case generate.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// FindConfigFile walks up from dir looking for transmute.yaml.
func FindConfigFile(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got: %s", cfg.Log.Format)
	}

	if _, err := cfg.Threshold(); err != nil {
		return err
	}
	if f := cfg.Analysis.MaxExcludedFraction; f < 0 || f > 1 {
		return fmt.Errorf("analysis.max_excluded_fraction must be within [0, 1], got: %v", f)
	}

	for key, sev := range cfg.Constraints.Severities {
		if _, err := constraint.ParseSeverity(sev); err != nil {
			return fmt.Errorf("constraints.severities.%s: %w", key, err)
		}
	}

	switch generate.ProviderType(cfg.Generator.Provider) {
	case generate.ProviderClaude, generate.ProviderOpenAI:
	default:
		return fmt.Errorf("generator.provider must be claude or openai, got: %s", cfg.Generator.Provider)
	}

	switch cfg.Store.Driver {
	case "sqlite3", "postgres", "pgx":
	default:
		return fmt.Errorf("store.driver must be sqlite3, postgres or pgx, got: %s", cfg.Store.Driver)
	}

	switch cfg.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got: %s", cfg.Cache.Backend)
	}
	return nil
}

// Threshold resolves the confidence threshold from analysis.threshold or
// analysis.preset.
func (c *Config) Threshold() (float64, error) {
	t, err := filter.Resolve(c.Analysis.Threshold, c.Analysis.Preset)
	if err != nil {
		if c.Analysis.Threshold != nil {
			return 0, fmt.Errorf("analysis.threshold: %w", err)
		}
		return 0, fmt.Errorf("analysis.preset: %w", err)
	}
	return t, nil
}

// ParserOptions returns the pattern detection options.
func (c *Config) ParserOptions() pattern.Options {
	return pattern.Options{
		MaxExamples:      c.Analysis.MaxExamples,
		MaxDepth:         c.Analysis.MaxDepth,
		MaxArrayIndex:    c.Analysis.MaxArrayIndex,
		MaxArrayElements: c.Analysis.MaxArrayElements,
	}
}

// WarningOptions returns the filter warning options.
func (c *Config) WarningOptions() filter.WarningOptions {
	return filter.WarningOptions{MaxExcludedFraction: c.Analysis.MaxExcludedFraction}
}

// ConstraintConfig layers the constraints section over the enforcer defaults.
func (c *Config) ConstraintConfig() (constraint.Config, error) {
	cc := c.Constraints
	override := constraint.Config{
		AllowedImports:   cc.AllowedImports,
		DeniedImports:    cc.DeniedImports,
		MaxCyclomatic:    cc.MaxCyclomatic,
		MaxFunctionLines: cc.MaxFunctionLines,
		MaxTypeLines:     cc.MaxTypeLines,
		HardMultiple:     cc.HardMultiple,
		Disabled:         cc.Disabled,
	}
	if len(cc.Severities) > 0 {
		override.Severities = make(map[string]constraint.Severity, len(cc.Severities))
		for key, name := range cc.Severities {
			sev, err := constraint.ParseSeverity(name)
			if err != nil {
				return constraint.Config{}, fmt.Errorf("constraints.severities.%s: %w", key, err)
			}
			override.Severities[key] = sev
		}
	}

	out := constraint.DefaultConfig().Merge(override)
	if len(cc.ExtraImports) > 0 {
		out = out.Merge(constraint.Config{
			AllowedImports: append(append([]string(nil), out.AllowedImports...), cc.ExtraImports...),
		})
	}
	return out, nil
}

// ProviderConfig returns the LLM provider configuration.
func (c *Config) ProviderConfig() generate.ProviderConfig {
	g := c.Generator
	return generate.ProviderConfig{
		Type:       generate.ProviderType(g.Provider),
		Model:      g.Model,
		APIKey:     g.APIKey,
		BaseURL:    g.BaseURL,
		Timeout:    g.Timeout,
		MaxRetries: g.MaxRetries,
		MaxTokens:  g.MaxTokens,
	}
}
