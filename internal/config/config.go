// Package config loads engine configuration from .relay.yaml with
// hard-coded defaults and environment overlays for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultSandboxTimeout = 45 // seconds
	DefaultCredentialMode = "auto"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// MaxConcurrentRuns bounds simultaneous pipeline executions.
	// Zero means the engine default.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs,omitempty"`
}

// StoreConfig selects the persistence backend. An empty path means the
// in-memory store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SandboxConfig holds provider isolation settings.
type SandboxConfig struct {
	TimeoutSeconds int  `yaml:"timeout_seconds,omitempty"`
	Inline         bool `yaml:"inline,omitempty"`
}

// CredentialsConfig controls secret resolution. ManagedKeys maps a
// provider name to the environment variable holding its platform
// secret; the secret itself never appears in the config file.
type CredentialsConfig struct {
	Mode        string            `yaml:"mode,omitempty"`
	ManagedKeys map[string]string `yaml:"managed_keys,omitempty"`
}

// ProviderConfig declares one provider adapter. Kind selects the wire
// protocol; Params carries adapter-specific settings.
type ProviderConfig struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Config is the top-level configuration loaded from .relay.yaml.
type Config struct {
	Server      ServerConfig      `yaml:"server,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Sandbox     SandboxConfig     `yaml:"sandbox,omitempty"`
	Credentials CredentialsConfig `yaml:"credentials,omitempty"`
	Providers   []ProviderConfig  `yaml:"providers,omitempty"`
}

// New returns a Config with all defaults populated, including the
// built-in provider set.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Sandbox: SandboxConfig{
			TimeoutSeconds: DefaultSandboxTimeout,
		},
		Credentials: CredentialsConfig{
			Mode: DefaultCredentialMode,
			ManagedKeys: map[string]string{
				"openai":    "OPENAI_API_KEY",
				"anthropic": "ANTHROPIC_API_KEY",
				"gemini":    "GEMINI_API_KEY",
				"xai":       "XAI_API_KEY",
				"deepseek":  "DEEPSEEK_API_KEY",
			},
		},
		Providers: []ProviderConfig{
			{Name: "openai", Kind: "openai_compat"},
			{Name: "xai", Kind: "openai_compat", Params: map[string]any{"base_url": "https://api.x.ai/v1"}},
			{Name: "deepseek", Kind: "openai_compat", Params: map[string]any{"base_url": "https://api.deepseek.com/v1"}},
			{Name: "anthropic", Kind: "anthropic"},
			{Name: "gemini", Kind: "gemini"},
		},
	}
}

// Load finds .relay.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults. If no
// config file is found, returns defaults with a nil error.
func Load(startDir string) (*Config, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("loading .relay.yaml: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .relay.yaml: %w", err)
	}

	merge(cfg, &fileCfg)
	applyEnv(cfg)
	return cfg, nil
}

// ManagedSecrets resolves the managed key environment variables into a
// provider-to-secret map. Providers whose variable is unset are
// omitted.
func (c *Config) ManagedSecrets() map[string]string {
	out := make(map[string]string, len(c.Credentials.ManagedKeys))
	for providerName, envVar := range c.Credentials.ManagedKeys {
		if secret := os.Getenv(envVar); secret != "" {
			out[strings.ToLower(providerName)] = secret
		}
	}
	return out
}

// findConfigFile walks up from dir looking for .relay.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".relay.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// merge overlays non-zero values from src onto dst.
func merge(dst, src *Config) {
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
	if src.Server.MaxConcurrentRuns > 0 {
		dst.Server.MaxConcurrentRuns = src.Server.MaxConcurrentRuns
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Sandbox.TimeoutSeconds > 0 {
		dst.Sandbox.TimeoutSeconds = src.Sandbox.TimeoutSeconds
	}
	if src.Sandbox.Inline {
		dst.Sandbox.Inline = true
	}
	if src.Credentials.Mode != "" {
		dst.Credentials.Mode = src.Credentials.Mode
	}
	for providerName, envVar := range src.Credentials.ManagedKeys {
		dst.Credentials.ManagedKeys[strings.ToLower(providerName)] = envVar
	}
	if len(src.Providers) > 0 {
		dst.Providers = mergeProviders(dst.Providers, src.Providers)
	}
}

// mergeProviders overlays file-declared providers onto the built-in
// set, replacing same-named entries and appending new ones.
func mergeProviders(defaults, overrides []ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, len(defaults))
	copy(out, defaults)
	for _, o := range overrides {
		o.Name = strings.ToLower(o.Name)
		replaced := false
		for i := range out {
			if out[i].Name == o.Name {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

// applyEnv overlays deployment-level environment variables.
func applyEnv(cfg *Config) {
	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("RELAY_DB_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if mode := os.Getenv("RELAY_CREDENTIAL_MODE"); mode != "" {
		cfg.Credentials.Mode = mode
	}
}
