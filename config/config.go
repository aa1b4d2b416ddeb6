package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/compresr/agent-pipeline/budget"
	"github.com/compresr/agent-pipeline/cache"
	"github.com/compresr/agent-pipeline/pipeline"
	"github.com/compresr/agent-pipeline/provider"
	"github.com/compresr/agent-pipeline/reliability"
)

// Config is the full engine configuration, built once at process start and
// immutable thereafter. There is no ambient global: the built pipeline is
// passed explicitly to whatever embeds it.
type Config struct {
	// Namespace prefixes every KV key.
	Namespace string `yaml:"namespace"`

	Store       StoreConfig       `yaml:"store"`
	Budget      BudgetConfig      `yaml:"budget"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Recording   RecordingConfig   `yaml:"recording"`

	// Agents registers the known agent types.
	Agents []AgentConfig `yaml:"agents"`

	agents []pipeline.Agent
}

// StoreConfig selects the KV backend.
type StoreConfig struct {
	// RedisAddr is "host:port". Empty falls back to the in-memory store,
	// which is only correct for a single process.
	RedisAddr string `yaml:"redis_addr"`
}

// BudgetConfig holds the global defaults and per-tenant overrides.
type BudgetConfig struct {
	Defaults budget.Config                    `yaml:"defaults"`
	Tenants  map[string]budget.TenantOverride `yaml:"tenants,omitempty"`
}

// ReliabilityConfig tunes retries, fallback, and the breaker. Durations are
// Go duration strings, e.g. "400ms", "30s", "1m".
type ReliabilityConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
	Timeout    string `yaml:"timeout"`

	BreakerEnabled  bool   `yaml:"breaker_enabled"`
	BreakerErrors   int    `yaml:"breaker_errors"`
	BreakerWithin   string `yaml:"breaker_within"`
	BreakerCooldown string `yaml:"breaker_cooldown"`

	baseDelay time.Duration
	maxDelay  time.Duration
	timeout   time.Duration
	within    time.Duration
	cooldown  time.Duration
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

func (r *ReliabilityConfig) resolve() error {
	var err error
	if r.baseDelay, err = parseDuration("base_delay", r.BaseDelay, DefaultBaseDelay); err != nil {
		return err
	}
	if r.maxDelay, err = parseDuration("max_delay", r.MaxDelay, DefaultMaxDelay); err != nil {
		return err
	}
	if r.timeout, err = parseDuration("timeout", r.Timeout, 0); err != nil {
		return err
	}
	if r.within, err = parseDuration("breaker_within", r.BreakerWithin, DefaultBreakerWithin); err != nil {
		return err
	}
	if r.cooldown, err = parseDuration("breaker_cooldown", r.BreakerCooldown, DefaultBreakerCooldown); err != nil {
		return err
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.BreakerErrors == 0 {
		r.BreakerErrors = DefaultBreakerErrors
	}
	return nil
}

func (r *ReliabilityConfig) engineConfig() reliability.EngineConfig {
	return reliability.EngineConfig{
		Retry: reliability.RetryPolicy{
			MaxAttempts: r.MaxRetries,
			Backoff:     reliability.BackoffExponential,
			BaseDelay:   r.baseDelay,
			MaxDelay:    r.maxDelay,
		},
		Timeout: r.timeout,
	}
}

func (r *ReliabilityConfig) breakerConfig() reliability.BreakerConfig {
	return reliability.BreakerConfig{
		Errors:   r.BreakerErrors,
		Within:   r.within,
		Cooldown: r.cooldown,
	}
}

// RecordingConfig selects execution history storage.
type RecordingConfig struct {
	// SQLitePath is the history database location. Empty keeps records
	// in memory.
	SQLitePath string `yaml:"sqlite_path"`
	// Async buffers record writes through a background worker.
	Async bool `yaml:"async"`
	// AlertLogPath appends budget alerts as JSONL when set.
	AlertLogPath string `yaml:"alert_log_path"`
}

// AgentConfig is the YAML-facing agent registration. CacheTTL is a Go
// duration string ("30m", "1h").
type AgentConfig struct {
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	Type           string        `yaml:"type"`
	Model          string        `yaml:"model"`
	FallbackModels []string      `yaml:"fallback_models,omitempty"`
	CacheEnabled   bool          `yaml:"cache_enabled"`
	CacheTTL       string        `yaml:"cache_ttl"`
	CacheKey       cache.KeySpec `yaml:"cache_key"`
}

func (a AgentConfig) agent(namespace string) (pipeline.Agent, error) {
	var ttl time.Duration
	if a.CacheTTL != "" {
		var err error
		if ttl, err = time.ParseDuration(a.CacheTTL); err != nil {
			return pipeline.Agent{}, fmt.Errorf("config: agent %s: cache_ttl: %w", a.Name, err)
		}
	}
	if a.CacheEnabled && ttl == 0 {
		ttl = DefaultCacheTTL
	}

	key := a.CacheKey
	if key.Namespace == "" {
		key.Namespace = namespace
	}

	return pipeline.Agent{
		Name:           a.Name,
		Version:        a.Version,
		Type:           provider.ExecutionType(a.Type),
		Model:          a.Model,
		FallbackModels: a.FallbackModels,
		CacheEnabled:   a.CacheEnabled,
		CacheTTL:       ttl,
		CacheKey:       key,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
}

// resolve parses duration strings and materializes the runtime agents.
func (c *Config) resolve() error {
	if err := c.Reliability.resolve(); err != nil {
		return err
	}

	c.agents = c.agents[:0]
	for _, ac := range c.Agents {
		agent, err := ac.agent(c.Namespace)
		if err != nil {
			return err
		}
		c.agents = append(c.agents, agent)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Budget.Defaults.Validate(); err != nil {
		return err
	}
	for id, override := range c.Budget.Tenants {
		if err := override.Config.Validate(); err != nil {
			return fmt.Errorf("config: tenant %s: %w", id, err)
		}
	}
	seen := map[string]bool{}
	for i := range c.agents {
		if err := c.agents[i].Validate(); err != nil {
			return err
		}
		if seen[c.agents[i].Name] {
			return fmt.Errorf("config: duplicate agent name %q", c.agents[i].Name)
		}
		seen[c.agents[i].Name] = true
	}
	return nil
}

// Load reads a YAML config file. A .env file alongside the process, when
// present, is loaded first so ${VAR}-style expansion in the YAML sees it.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env takes precedence anyway.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AgentByName finds a registered agent.
func (c *Config) AgentByName(name string) (pipeline.Agent, bool) {
	for _, a := range c.agents {
		if a.Name == name {
			return a, true
		}
	}
	return pipeline.Agent{}, false
}
