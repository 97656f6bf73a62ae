package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nwant/thinking-partner-focus/paths"
)

// Tool surfaces a focus can originate from.
const (
	ToolDesktop = "desktop"
	ToolCode    = "code"
)

// Defaults applied when config.yaml is missing or leaves a field empty.
const (
	DefaultServerName     = "thinking-partner-mcp"
	DefaultClientName     = "thinking-partner-raycast"
	DefaultClientVersion  = "1.0.0"
	DefaultHistoryLimit   = 50
	DefaultConnectTimeout = 30 * time.Second
	DefaultStabilizeDelay = 100 * time.Millisecond
	DefaultProbeTimeout   = 5 * time.Second
	DefaultLogLevel       = "info"
)

// DefaultInterpreters is the ordered list of interpreter candidates. The
// bare name is resolved through PATH.
var DefaultInterpreters = []string{
	"/opt/homebrew/bin/node",
	"/usr/local/bin/node",
	"/usr/bin/node",
	"node",
}

// Config holds the focus client configuration.
type Config struct {
	ServerName     string        `yaml:"server_name,omitempty"`
	ServerPath     string        `yaml:"server_path,omitempty"`     // Absolute path of the server entry point
	ClientName     string        `yaml:"client_name,omitempty"`     // Name announced during the handshake
	ClientVersion  string        `yaml:"client_version,omitempty"`  // Version announced during the handshake
	Interpreters   []string      `yaml:"interpreters,omitempty"`    // Probed in order
	DefaultTool    string        `yaml:"default_tool,omitempty"`    // "desktop" or "code"
	HistoryLimit   int           `yaml:"history_limit,omitempty"`   // Passed to get_focus_history
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"` // 0 disables the bound
	StabilizeDelay time.Duration `yaml:"stabilize_delay,omitempty"` // Pause after handshake
	ProbeTimeout   time.Duration `yaml:"probe_timeout,omitempty"`   // Per-candidate --version bound
	LogLevel       string        `yaml:"log_level,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// ValidationError reports a config field with an unusable value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default returns a config populated with defaults. The server path falls
// back to the conventional checkout location.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config.yaml from the configured directory, or returns defaults
// if it doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from path. A missing file yields defaults bound
// to path so a later Save creates it.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills empty fields. Not thread-safe; only called before the
// Config is shared.
func (c *Config) applyDefaults() {
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.ServerPath == "" {
		if p, err := paths.ServerEntryPoint(); err == nil {
			c.ServerPath = p
		}
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.ClientVersion == "" {
		c.ClientVersion = DefaultClientVersion
	}
	if len(c.Interpreters) == 0 {
		c.Interpreters = slices.Clone(DefaultInterpreters)
	}
	if c.DefaultTool == "" {
		c.DefaultTool = ToolDesktop
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StabilizeDelay == 0 {
		c.StabilizeDelay = DefaultStabilizeDelay
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ServerPath != "" && !filepath.IsAbs(c.ServerPath) {
		return &ValidationError{Field: "server_path", Reason: fmt.Sprintf("%q is not absolute", c.ServerPath)}
	}
	if !IsValidTool(c.DefaultTool) {
		return &ValidationError{Field: "default_tool", Reason: fmt.Sprintf("%q is not one of desktop, code", c.DefaultTool)}
	}
	for _, candidate := range c.Interpreters {
		if candidate == "" {
			return &ValidationError{Field: "interpreters", Reason: "empty candidate"}
		}
	}
	if c.HistoryLimit < 0 {
		return &ValidationError{Field: "history_limit", Reason: "must not be negative"}
	}
	if c.ConnectTimeout < 0 || c.StabilizeDelay < 0 || c.ProbeTimeout < 0 {
		return &ValidationError{Field: "timeouts", Reason: "durations must not be negative"}
	}
	return nil
}

// IsValidTool reports whether tool names a known surface.
func IsValidTool(tool string) bool {
	return tool == ToolDesktop || tool == ToolCode
}

// Save writes the config to disk as YAML.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.filePath)
}

// FilePath returns where the config is read from and saved to.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

func (c *Config) GetServerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerName
}

func (c *Config) GetServerPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerPath
}

// SetServerPath overrides the entry point, e.g. from a flag.
func (c *Config) SetServerPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerPath = path
}

func (c *Config) GetClientName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ClientName
}

func (c *Config) GetClientVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ClientVersion
}

// GetInterpreters returns a copy of the interpreter candidates.
func (c *Config) GetInterpreters() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Interpreters)
}

func (c *Config) GetDefaultTool() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DefaultTool
}

// SetDefaultTool changes the surface used when a caller names none.
func (c *Config) SetDefaultTool(tool string) error {
	if !IsValidTool(tool) {
		return &ValidationError{Field: "default_tool", Reason: fmt.Sprintf("%q is not one of desktop, code", tool)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DefaultTool = tool
	return nil
}

func (c *Config) GetHistoryLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.HistoryLimit
}

// SetHistoryLimit sets the limit; values below 1 restore the default.
func (c *Config) SetHistoryLimit(limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	c.HistoryLimit = limit
}

func (c *Config) GetConnectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ConnectTimeout
}

func (c *Config) GetStabilizeDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.StabilizeDelay
}

func (c *Config) GetProbeTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ProbeTimeout
}

func (c *Config) GetLogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevel
}

func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LogLevel = level
}
