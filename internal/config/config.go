package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the rankdex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Cache     CacheConfig     `yaml:"cache"`
	Relevance RelevanceConfig `yaml:"relevance"`
	BM25      BM25Config      `yaml:"bm25"`
	Fusion    FusionConfig    `yaml:"fusion"`
	MMR       MMRConfig       `yaml:"mmr"`
	Cascade   CascadeConfig   `yaml:"cascade"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds the optional ranked-result cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// RelevanceConfig holds the external relevance-ranker provider settings.
type RelevanceConfig struct {
	Provider      string `yaml:"provider"` // provider label for metrics
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	MaxSnippetLen int    `yaml:"max_snippet_len"`
}

// BM25Config holds keyword scoring parameters.
type BM25Config struct {
	K1          float64 `yaml:"k1"`           // term-frequency saturation
	B           float64 `yaml:"b"`            // length normalization
	TitleWeight int     `yaml:"title_weight"` // title repetitions before TF counting
}

// FusionConfig holds score-fusion weights per fusion intent plus the
// classifier thresholds that pick between them.
type FusionConfig struct {
	AlphaDefault  float64 `yaml:"alpha_default"`
	BetaDefault   float64 `yaml:"beta_default"`
	AlphaExact    float64 `yaml:"alpha_exact"`
	BetaExact     float64 `yaml:"beta_exact"`
	AlphaSemantic float64 `yaml:"alpha_semantic"`
	BetaSemantic  float64 `yaml:"beta_semantic"`

	// SignalThreshold is the checklist score at which a category is chosen.
	SignalThreshold int `yaml:"signal_threshold"`
	// ExactLengthRunes is the query length (in runes) above which the
	// "long query" exact-match signal fires.
	ExactLengthRunes int `yaml:"exact_length_runes"`
	// ShortQueryWords is the word count at or below which the "short query"
	// semantic signal fires.
	ShortQueryWords int `yaml:"short_query_words"`
}

// MMRConfig holds diversity selection parameters.
type MMRConfig struct {
	LambdaDefault     float64 `yaml:"lambda_default"`
	LambdaSpecific    float64 `yaml:"lambda_specific"`
	LambdaExploratory float64 `yaml:"lambda_exploratory"`
	PoolSize          int     `yaml:"pool_size"`   // relevance-ranked candidates to diversify
	OutputSize        int     `yaml:"output_size"` // final K
}

// CascadeConfig holds learning-to-rank cascade settings.
type CascadeConfig struct {
	Enabled             bool    `yaml:"enabled"`
	Mode                string  `yaml:"mode"` // disabled, shadow, active
	ModelPath           string  `yaml:"model_path"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "rankdex:"
	}
	if c.Relevance.MaxSnippetLen <= 0 {
		c.Relevance.MaxSnippetLen = 200
	}
	if c.BM25.K1 <= 0 {
		c.BM25.K1 = 1.5
	}
	if c.BM25.B <= 0 {
		c.BM25.B = 0.75
	}
	if c.BM25.TitleWeight <= 0 {
		c.BM25.TitleWeight = 3
	}
	if c.Fusion.AlphaDefault <= 0 {
		c.Fusion.AlphaDefault = 0.6
	}
	if c.Fusion.BetaDefault <= 0 {
		c.Fusion.BetaDefault = 0.4
	}
	if c.Fusion.AlphaExact <= 0 {
		c.Fusion.AlphaExact = 0.4
	}
	if c.Fusion.BetaExact <= 0 {
		c.Fusion.BetaExact = 0.6
	}
	if c.Fusion.AlphaSemantic <= 0 {
		c.Fusion.AlphaSemantic = 0.7
	}
	if c.Fusion.BetaSemantic <= 0 {
		c.Fusion.BetaSemantic = 0.3
	}
	if c.Fusion.SignalThreshold <= 0 {
		c.Fusion.SignalThreshold = 2
	}
	if c.Fusion.ExactLengthRunes <= 0 {
		c.Fusion.ExactLengthRunes = 8
	}
	if c.Fusion.ShortQueryWords <= 0 {
		c.Fusion.ShortQueryWords = 3
	}
	if c.MMR.LambdaDefault <= 0 {
		c.MMR.LambdaDefault = 0.7
	}
	if c.MMR.LambdaSpecific <= 0 {
		c.MMR.LambdaSpecific = 0.8
	}
	if c.MMR.LambdaExploratory <= 0 {
		c.MMR.LambdaExploratory = 0.5
	}
	if c.MMR.PoolSize <= 0 {
		c.MMR.PoolSize = 50
	}
	if c.MMR.OutputSize <= 0 {
		c.MMR.OutputSize = 10
	}
	if c.Cascade.Mode == "" {
		c.Cascade.Mode = "shadow"
	}
	if c.Cascade.ConfidenceThreshold <= 0 {
		c.Cascade.ConfidenceThreshold = 0.8
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	switch c.Cascade.Mode {
	case "disabled", "shadow", "active":
		// ok
	default:
		return fmt.Errorf(
			`cascade.mode must be "disabled", "shadow" or "active", got %q`, c.Cascade.Mode,
		)
	}
	if c.Cascade.Enabled && c.Cascade.Mode != "disabled" && c.Cascade.ModelPath == "" {
		return fmt.Errorf("cascade.model_path is required when cascade is enabled")
	}
	if c.Cascade.ConfidenceThreshold < 0 || c.Cascade.ConfidenceThreshold > 1 {
		return fmt.Errorf(
			"cascade.confidence_threshold must be between 0 and 1, got %g",
			c.Cascade.ConfidenceThreshold,
		)
	}
	if c.MMR.LambdaDefault > 1 || c.MMR.LambdaSpecific > 1 || c.MMR.LambdaExploratory > 1 {
		return fmt.Errorf("mmr lambda values must not exceed 1")
	}
	if c.BM25.B > 1 {
		return fmt.Errorf("bm25.b must be between 0 and 1, got %g", c.BM25.B)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
