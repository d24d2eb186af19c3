// ABOUTME: Configuration loading and parsing for engine-bridge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the default config path.
const EnvConfigPath = "ENGINE_BRIDGE_CONFIG"

// Config represents the complete engine-bridge configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Ollama  OllamaConfig  `yaml:"ollama" toml:"ollama"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Catalog CatalogConfig `yaml:"catalog" toml:"catalog"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// EngineConfig holds the control endpoint connection settings
type EngineConfig struct {
	DefaultURL string          `yaml:"default_url" toml:"default_url"`
	Handshake  HandshakeConfig `yaml:"handshake" toml:"handshake"`

	ConnectTimeout time.Duration `yaml:"-" toml:"-"`
	CommandTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout" toml:"connect_timeout"`
	CommandTimeoutRaw string `yaml:"command_timeout" toml:"command_timeout"`
}

// HandshakeConfig controls the optional hello/welcome exchange at connect time
type HandshakeConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Protocol string `yaml:"protocol" toml:"protocol"`
}

// OllamaConfig holds LLM backend settings
type OllamaConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	DefaultModel      string  `yaml:"default_model" toml:"default_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	ProbeTimeout   time.Duration `yaml:"-" toml:"-"`
	ProbeTTL       time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	ProbeTimeoutRaw   string `yaml:"probe_timeout" toml:"probe_timeout"`
	ProbeTTLRaw       string `yaml:"probe_ttl" toml:"probe_ttl"`
}

// HistoryConfig holds the message history settings
type HistoryConfig struct {
	Capacity   int `yaml:"capacity" toml:"capacity"`
	StatusTail int `yaml:"status_tail" toml:"status_tail"`
	// DatabasePath enables durable history when set.
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	PersistQueue int    `yaml:"persist_queue" toml:"persist_queue"`
}

// CatalogConfig locates optional markdown tool documentation
type CatalogConfig struct {
	DocsDir string `yaml:"docs_dir" toml:"docs_dir"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	// JWTSecret enables bearer-token auth on /api/* when non-empty.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default values
const (
	DefaultHTTPAddr          = "127.0.0.1:8000"
	DefaultEngineURL         = "ws://localhost:55557"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultCommandTimeout    = 30 * time.Second
	DefaultHandshakeProtocol = "1"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultModel             = "cogito:8b"
	DefaultRequestTimeout    = 120 * time.Second
	DefaultProbeTimeout      = 2 * time.Second
	DefaultProbeTTL          = 60 * time.Second
	DefaultHistoryCapacity   = 500
	DefaultStatusTail        = 20
)

// Default returns a Config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath returns the config path used when neither a flag nor
// ENGINE_BRIDGE_CONFIG is given.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "engine-bridge", "bridge.yaml")
}

// ResolvePath picks the config path by priority: flag, environment, default.
// explicit reports whether the path was chosen by the user.
func ResolvePath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return DefaultPath(), false
}

// LoadOrDefault loads the resolved config path. A missing file at the default
// path yields Default(); a missing explicit path is an error.
func LoadOrDefault(flagPath string) (*Config, string, error) {
	path, explicit := ResolvePath(flagPath)
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), "", nil
	}
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := []byte(expandEnvVars(string(data)))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarRe.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}

	if c.Engine.DefaultURL == "" {
		c.Engine.DefaultURL = DefaultEngineURL
	}
	if c.Engine.ConnectTimeout == 0 {
		c.Engine.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Engine.CommandTimeout == 0 {
		c.Engine.CommandTimeout = DefaultCommandTimeout
	}
	if c.Engine.Handshake.Protocol == "" {
		c.Engine.Handshake.Protocol = DefaultHandshakeProtocol
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = DefaultOllamaURL
	}
	c.Ollama.BaseURL = strings.TrimRight(c.Ollama.BaseURL, "/")
	if c.Ollama.DefaultModel == "" {
		c.Ollama.DefaultModel = DefaultModel
	}
	if c.Ollama.RequestTimeout == 0 {
		c.Ollama.RequestTimeout = DefaultRequestTimeout
	}
	if c.Ollama.ProbeTimeout == 0 {
		c.Ollama.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Ollama.ProbeTTL == 0 {
		c.Ollama.ProbeTTL = DefaultProbeTTL
	}

	if c.History.Capacity == 0 {
		c.History.Capacity = DefaultHistoryCapacity
	}
	if c.History.StatusTail == 0 {
		c.History.StatusTail = DefaultStatusTail
	}
	if c.History.PersistQueue == 0 {
		c.History.PersistQueue = c.History.Capacity
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if err := validateURL("engine.default_url", c.Engine.DefaultURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Engine.ConnectTimeout <= 0 {
		return fmt.Errorf("engine.connect_timeout must be positive")
	}
	if c.Engine.CommandTimeout <= 0 {
		return fmt.Errorf("engine.command_timeout must be positive")
	}

	if err := validateURL("ollama.base_url", c.Ollama.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Ollama.RequestTimeout <= 0 || c.Ollama.ProbeTimeout <= 0 || c.Ollama.ProbeTTL <= 0 {
		return fmt.Errorf("ollama timeouts must be positive")
	}
	if c.Ollama.RequestsPerSecond < 0 {
		return fmt.Errorf("ollama.requests_per_second must not be negative")
	}

	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1")
	}
	if c.History.StatusTail < 1 {
		return fmt.Errorf("history.status_tail must be at least 1")
	}
	if c.History.PersistQueue < 1 {
		return fmt.Errorf("history.persist_queue must be at least 1")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// ValidateEngineURL checks that raw is a usable control endpoint URL.
func ValidateEngineURL(raw string) error {
	return validateURL("url", raw, "ws", "wss")
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q has no host", field, raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%s %q must use scheme %s", field, raw, strings.Join(schemes, " or "))
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"engine.connect_timeout", cfg.Engine.ConnectTimeoutRaw, &cfg.Engine.ConnectTimeout},
		{"engine.command_timeout", cfg.Engine.CommandTimeoutRaw, &cfg.Engine.CommandTimeout},
		{"ollama.request_timeout", cfg.Ollama.RequestTimeoutRaw, &cfg.Ollama.RequestTimeout},
		{"ollama.probe_timeout", cfg.Ollama.ProbeTimeoutRaw, &cfg.Ollama.ProbeTimeout},
		{"ollama.probe_ttl", cfg.Ollama.ProbeTTLRaw, &cfg.Ollama.ProbeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
