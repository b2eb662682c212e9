// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration that can be loaded from a JSON or
// YAML file. All fields are optional; missing values use defaults, the
// environment or CLI flags.
type Config struct {
	// Generative endpoint
	Provider        string            `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=gemini openai anthropic"`
	Mode            string            `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=api_key service_account"`
	Models          map[string]string `json:"models,omitempty" yaml:"models,omitempty" validate:"omitempty,dive,keys,oneof=lite standard advanced,endkeys,required"`
	BaseURL         string            `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKey          string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	CredentialsFile string            `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty" validate:"gte=0"`

	// Rate limiting
	CallsPerMinute int      `json:"calls_per_minute,omitempty" yaml:"calls_per_minute,omitempty" validate:"gte=0"`
	MinSpacing     Duration `json:"min_spacing,omitempty" yaml:"min_spacing,omitempty"`

	// Search providers
	SearchAPIKey   string `json:"search_api_key,omitempty" yaml:"search_api_key,omitempty"`
	SearchEngineID string `json:"search_engine_id,omitempty" yaml:"search_engine_id,omitempty"`
	YouTubeAPIKey  string `json:"youtube_api_key,omitempty" yaml:"youtube_api_key,omitempty"`
	Language       string `json:"language,omitempty" yaml:"language,omitempty"`

	// Storage
	DatabaseURL  string   `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	SQLitePath   string   `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	RedisAddr    string   `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" validate:"omitempty,hostname_port"`
	StoreTimeout Duration `json:"store_timeout,omitempty" yaml:"store_timeout,omitempty"`

	// Resource cache
	CacheCapacity   int      `json:"cache_capacity,omitempty" yaml:"cache_capacity,omitempty" validate:"gte=0,lte=1000"`
	OverfetchFactor float64  `json:"overfetch_factor,omitempty" yaml:"overfetch_factor,omitempty" validate:"omitempty,gte=1,lte=5"`
	SearchTimeout   Duration `json:"search_timeout,omitempty" yaml:"search_timeout,omitempty"`

	// Validation gate
	AllowedDomains   []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty" validate:"dive,hostname_rfc1123"`
	MinVideoDuration Duration `json:"min_video_duration,omitempty" yaml:"min_video_duration,omitempty"`
	MaxVideoDuration Duration `json:"max_video_duration,omitempty" yaml:"max_video_duration,omitempty"`
	Languages        []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// Generation
	Targets           map[string]int                 `json:"targets,omitempty" yaml:"targets,omitempty" validate:"omitempty,dive,keys,oneof=video link exercise,endkeys,gte=0"`
	MaxTopics         int                            `json:"max_topics,omitempty" yaml:"max_topics,omitempty" validate:"gte=0"`
	GenerationTimeout Duration                       `json:"generation_timeout,omitempty" yaml:"generation_timeout,omitempty"`
	Taxonomy          map[string]map[string][]string `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty"`

	// Behavior
	LogMode string `json:"log_mode,omitempty" yaml:"log_mode,omitempty" validate:"omitempty,oneof=dev prod"`
	Verbose bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed debug information
}

// Duration is a time.Duration read from a string such as "15s", or from a
// number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(v), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Load reads the optional config file and overlays the process environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Provider, "LLM_PROVIDER")
	str(&c.Mode, "LLM_MODE")
	str(&c.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	str(&c.SearchAPIKey, "SEARCH_API_KEY")
	str(&c.SearchEngineID, "SEARCH_ENGINE_ID")
	str(&c.YouTubeAPIKey, "YOUTUBE_API_KEY")
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.SQLitePath, "SQLITE_PATH")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.LogMode, "LOG_MODE")

	// The API key follows the provider.
	switch c.Provider {
	case "openai":
		str(&c.APIKey, "OPENAI_API_KEY")
	case "anthropic":
		str(&c.APIKey, "ANTHROPIC_API_KEY")
	default:
		str(&c.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}

	// The video search falls back to the web search key; both are Google API keys.
	if c.YouTubeAPIKey == "" {
		c.YouTubeAPIKey = c.SearchAPIKey
	}

	if v := getenv("LLM_CALLS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: LLM_CALLS_PER_MINUTE must be an integer: %w", err)
		}
		c.CallsPerMinute = n
	}
	if v := getenv("LLM_MIN_SPACING"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("config error: LLM_MIN_SPACING: %w", err)
		}
		c.MinSpacing = d
	}
	return nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for credentials since each command needs a
// different subset of them; see RequireGeneration and RequireSearch.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	for name, d := range map[string]Duration{
		"min_spacing":        c.MinSpacing,
		"store_timeout":      c.StoreTimeout,
		"search_timeout":     c.SearchTimeout,
		"min_video_duration": c.MinVideoDuration,
		"max_video_duration": c.MaxVideoDuration,
		"generation_timeout": c.GenerationTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	if c.MinVideoDuration > 0 && c.MaxVideoDuration > 0 && c.MinVideoDuration > c.MaxVideoDuration {
		return fmt.Errorf("config error: 'min_video_duration' exceeds 'max_video_duration'")
	}
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		return fmt.Errorf("config error: 'database_url' and 'sqlite_path' are mutually exclusive")
	}
	if c.Mode == "service_account" && c.Provider != "" && c.Provider != "gemini" {
		return fmt.Errorf("config error: service_account mode is only supported for the gemini provider")
	}
	if c.CredentialsFile != "" && c.Mode == "service_account" {
		if _, err := os.Stat(c.CredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: credentials file not found: %s", c.CredentialsFile)
		}
	}
	return nil
}

// RequireGeneration checks the settings a generative call needs.
func (c *Config) RequireGeneration() error {
	if c.Mode != "service_account" && c.APIKey == "" {
		return fmt.Errorf("an API key for provider %q is required (set %s or api_key in the config)", c.providerName(), c.apiKeyEnv())
	}
	return nil
}

// RequireSearch checks the settings the search providers need.
func (c *Config) RequireSearch() error {
	var missing []string
	if c.YouTubeAPIKey == "" {
		missing = append(missing, "YOUTUBE_API_KEY")
	}
	if c.SearchAPIKey == "" {
		missing = append(missing, "SEARCH_API_KEY")
	}
	if c.SearchEngineID == "" {
		missing = append(missing, "SEARCH_ENGINE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("search is not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) providerName() string {
	if c.Provider == "" {
		return "gemini"
	}
	return c.Provider
}

func (c *Config) apiKeyEnv() string {
	switch c.providerName() {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, def *string }{
		{&result.Provider, &defaults.Provider},
		{&result.Mode, &defaults.Mode},
		{&result.BaseURL, &defaults.BaseURL},
		{&result.APIKey, &defaults.APIKey},
		{&result.CredentialsFile, &defaults.CredentialsFile},
		{&result.SearchAPIKey, &defaults.SearchAPIKey},
		{&result.SearchEngineID, &defaults.SearchEngineID},
		{&result.YouTubeAPIKey, &defaults.YouTubeAPIKey},
		{&result.Language, &defaults.Language},
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.SQLitePath, &defaults.SQLitePath},
		{&result.RedisAddr, &defaults.RedisAddr},
		{&result.LogMode, &defaults.LogMode},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	// Int fields: use default if zero
	if result.MaxOutputTokens == 0 {
		result.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if result.CallsPerMinute == 0 {
		result.CallsPerMinute = defaults.CallsPerMinute
	}
	if result.CacheCapacity == 0 {
		result.CacheCapacity = defaults.CacheCapacity
	}
	if result.MaxTopics == 0 {
		result.MaxTopics = defaults.MaxTopics
	}

	// Float and duration fields
	if result.OverfetchFactor == 0 {
		result.OverfetchFactor = defaults.OverfetchFactor
	}
	for _, f := range []struct{ dst, def *Duration }{
		{&result.MinSpacing, &defaults.MinSpacing},
		{&result.StoreTimeout, &defaults.StoreTimeout},
		{&result.SearchTimeout, &defaults.SearchTimeout},
		{&result.MinVideoDuration, &defaults.MinVideoDuration},
		{&result.MaxVideoDuration, &defaults.MaxVideoDuration},
		{&result.GenerationTimeout, &defaults.GenerationTimeout},
	} {
		if *f.dst == 0 {
			*f.dst = *f.def
		}
	}

	// Collections: use default if empty
	if len(result.Models) == 0 {
		result.Models = defaults.Models
	}
	if len(result.AllowedDomains) == 0 {
		result.AllowedDomains = defaults.AllowedDomains
	}
	if len(result.Languages) == 0 {
		result.Languages = defaults.Languages
	}
	if len(result.Targets) == 0 {
		result.Targets = defaults.Targets
	}
	if len(result.Taxonomy) == 0 {
		result.Taxonomy = defaults.Taxonomy
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
