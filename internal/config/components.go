package config

import (
	"github.com/jonathan/study-resources/internal/cache"
	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/ratelimit"
	"github.com/jonathan/study-resources/internal/types"
	"github.com/jonathan/study-resources/internal/validation"
)

// DefaultConfig returns the values used for settings neither the config file
// nor the environment provide.
func DefaultConfig() Config {
	gate := validation.DefaultConfig()
	return Config{
		Provider:          string(llm.ProviderGemini),
		Mode:              string(llm.ModeAPIKey),
		CallsPerMinute:    ratelimit.DefaultConfig().CallsPerWindow,
		MinSpacing:        Duration(ratelimit.DefaultConfig().MinSpacing),
		StoreTimeout:      Duration(db.DefaultTimeout),
		CacheCapacity:     cache.DefaultCapacity,
		OverfetchFactor:   cache.DefaultOverfetchFactor,
		SearchTimeout:     Duration(cache.DefaultSearchTimeout),
		MinVideoDuration:  Duration(gate.MinVideoDuration),
		MaxVideoDuration:  Duration(gate.MaxVideoDuration),
		MaxTopics:         pipeline.DefaultOptions().MaxTopics,
		GenerationTimeout: Duration(pipeline.DefaultTimeout),
		LogMode:           "dev",
	}
}

// LLM returns the generative client configuration.
func (c *Config) LLM() *llm.Config {
	cfg := llm.DefaultConfigFor(llm.Provider(c.providerName()))
	for tier, model := range c.Models {
		cfg = cfg.WithModel(llm.ModelTier(tier), model)
	}
	if c.Mode != "" {
		cfg.Mode = llm.DeploymentMode(c.Mode)
	}
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.MaxOutputTokens
	}
	return cfg
}

// Credentials returns the credential scope for the configured deployment mode.
func (c *Config) Credentials() *llm.EnvCredentialScope {
	mode := llm.ModeAPIKey
	if c.Mode != "" {
		mode = llm.DeploymentMode(c.Mode)
	}
	return llm.NewEnvCredentialScope(mode, c.APIKey, c.CredentialsFile)
}

// RateLimit returns the dispatch window configuration.
func (c *Config) RateLimit() *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if c.CallsPerMinute > 0 {
		cfg.CallsPerWindow = c.CallsPerMinute
		cfg.Window = ratelimit.DefaultWindow
	}
	if c.MinSpacing > 0 {
		cfg.MinSpacing = c.MinSpacing.D()
	}
	return cfg
}

// Store returns the document store options.
func (c *Config) Store() db.Options {
	timeout := c.StoreTimeout.D()
	if timeout <= 0 {
		timeout = db.DefaultTimeout
	}
	return db.Options{
		DatabaseURL: c.DatabaseURL,
		SQLitePath:  c.SQLitePath,
		Timeout:     timeout,
	}
}

// Cache returns the resource cache configuration.
func (c *Config) Cache() cache.Config {
	cfg := cache.DefaultConfig()
	if c.CacheCapacity > 0 {
		cfg.Capacity = c.CacheCapacity
	}
	if c.OverfetchFactor > 0 {
		cfg.OverfetchFactor = c.OverfetchFactor
	}
	if c.SearchTimeout > 0 {
		cfg.SearchTimeout = c.SearchTimeout.D()
	}
	cfg.Language = c.Language
	return cfg
}

// Gate returns the validation gate configuration.
func (c *Config) Gate() validation.Config {
	cfg := validation.DefaultConfig()
	if len(c.AllowedDomains) > 0 {
		cfg.AllowedDomains = c.AllowedDomains
	}
	if c.MinVideoDuration > 0 {
		cfg.MinVideoDuration = c.MinVideoDuration.D()
	}
	if c.MaxVideoDuration > 0 {
		cfg.MaxVideoDuration = c.MaxVideoDuration.D()
	}
	if len(c.Languages) > 0 {
		cfg.Languages = c.Languages
	}
	return cfg
}

// Orchestrator returns the generation options. Configured targets replace
// the defaults per kind.
func (c *Config) Orchestrator() pipeline.Options {
	opts := pipeline.DefaultOptions()
	if len(c.Targets) > 0 {
		targets := make(map[types.ResourceKind]int, len(opts.Targets))
		for k, v := range opts.Targets {
			targets[k] = v
		}
		for k, v := range c.Targets {
			targets[types.ResourceKind(k)] = v
		}
		opts.Targets = targets
	}
	if c.MaxTopics > 0 {
		opts.MaxTopics = c.MaxTopics
	}
	if c.GenerationTimeout > 0 {
		opts.Timeout = c.GenerationTimeout.D()
	}
	return opts
}

// Canonicalizer returns the topic taxonomy.
func (c *Config) Canonicalizer() *types.Taxonomy {
	return types.NewTaxonomy(c.Taxonomy)
}
