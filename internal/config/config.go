package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

const (
	// AppName names the user config directory.
	AppName = "searchsync"

	// DataDir holds the index and logs below a project root.
	DataDir = ".searchsync"
)

// Config represents the complete searchsync configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Signals SignalsConfig `yaml:"signals" json:"signals"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Types   []string      `yaml:"types" json:"types"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// SignalsConfig configures change buffering.
type SignalsConfig struct {
	// Processor is "buffered" or "direct".
	Processor string `yaml:"processor" json:"processor"`

	// BufferSize is the per-type flush threshold.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	// IdleTimeout flushes a partially filled buffer after this long.
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`
}

// IndexConfig configures the search index.
type IndexConfig struct {
	// Backend is "sqlite" or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the index base path without extension, relative to the
	// project root unless absolute.
	Path string `yaml:"path" json:"path"`

	// DedupCacheSize bounds the unchanged-content cache. 0 disables it.
	DedupCacheSize int `yaml:"dedup_cache_size" json:"dedup_cache_size"`

	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`

	MinTokenLength int      `yaml:"min_token_length" json:"min_token_length"`
	StopWords      []string `yaml:"stop_words,omitempty" json:"stop_words,omitempty"`
}

// WatchConfig configures the file system source.
type WatchConfig struct {
	// Root is the data root holding <type>/<id>.json records.
	Root string `yaml:"root" json:"root"`

	Debounce     string `yaml:"debounce" json:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling bool   `yaml:"force_polling" json:"force_polling"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// NewConfig returns a configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Signals: SignalsConfig{
			Processor:   "buffered",
			BufferSize:  100,
			IdleTimeout: "5s",
		},
		Index: IndexConfig{
			Backend:        "sqlite",
			Path:           filepath.Join(DataDir, "index"),
			DedupCacheSize: 4096,
			MaxRetries:     2,
			RetryDelay:     "100ms",
			MinTokenLength: 2,
		},
		Watch: WatchConfig{
			Root:         "data",
			Debounce:     "200ms",
			PollInterval: "5s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/searchsync/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchsync/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", AppName, "config.yaml")
	}
	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ProjectConfigPath returns the project config file in dir, preferring
// .searchsync.yaml over .searchsync.yml. It returns "" when neither exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".searchsync.yaml", ".searchsync.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// Load loads configuration for the project in dir. It applies, in order
// of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/searchsync/config.yaml)
//  3. Project config (.searchsync.yaml in dir)
//  4. Environment variables (SEARCHSYNC_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if path := ProjectConfigPath(dir); path != "" {
		var projectCfg Config
		if err := readYAML(path, &projectCfg); err != nil {
			return nil, err
		}
		cfg.mergeWith(&projectCfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return serrors.New(serrors.ErrCodeConfigPermission, fmt.Sprintf("cannot read config file %s", path), err)
		}
		return serrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("Check the YAML syntax, or run 'searchsync config init --force' to regenerate it")
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Signals.Processor, other.Signals.Processor)
	mergeInt(&c.Signals.BufferSize, other.Signals.BufferSize)
	mergeString(&c.Signals.IdleTimeout, other.Signals.IdleTimeout)

	mergeString(&c.Index.Backend, other.Index.Backend)
	mergeString(&c.Index.Path, other.Index.Path)
	mergeInt(&c.Index.DedupCacheSize, other.Index.DedupCacheSize)
	mergeInt(&c.Index.MaxRetries, other.Index.MaxRetries)
	mergeString(&c.Index.RetryDelay, other.Index.RetryDelay)
	mergeInt(&c.Index.MinTokenLength, other.Index.MinTokenLength)
	if len(other.Index.StopWords) > 0 {
		c.Index.StopWords = other.Index.StopWords
	}

	mergeString(&c.Watch.Root, other.Watch.Root)
	mergeString(&c.Watch.Debounce, other.Watch.Debounce)
	mergeString(&c.Watch.PollInterval, other.Watch.PollInterval)
	if other.Watch.ForcePolling {
		c.Watch.ForcePolling = true
	}

	if len(other.Types) > 0 {
		c.Types = other.Types
	}

	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
	mergeInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	mergeInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)

	mergeString(&c.Metrics.Addr, other.Metrics.Addr)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies SEARCHSYNC_* environment variable overrides.
// Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHSYNC_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Signals.BufferSize = n
		}
	}
	if v := os.Getenv("SEARCHSYNC_IDLE_TIMEOUT"); v != "" {
		c.Signals.IdleTimeout = v
	}
	if v := os.Getenv("SEARCHSYNC_PROCESSOR"); v != "" {
		c.Signals.Processor = v
	}
	if v := os.Getenv("SEARCHSYNC_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("SEARCHSYNC_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("SEARCHSYNC_DATA_ROOT"); v != "" {
		c.Watch.Root = v
	}
	if v := os.Getenv("SEARCHSYNC_TYPES"); v != "" {
		c.Types = splitList(v)
	}
	if v := os.Getenv("SEARCHSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SEARCHSYNC_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return serrors.New(serrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil)
	}

	switch strings.ToLower(c.Signals.Processor) {
	case "buffered", "direct":
	default:
		return invalid("signals.processor must be 'buffered' or 'direct', got %s", c.Signals.Processor)
	}
	if c.Signals.BufferSize <= 0 {
		return invalid("signals.buffer_size must be positive, got %d", c.Signals.BufferSize)
	}

	durations := map[string]string{
		"signals.idle_timeout": c.Signals.IdleTimeout,
		"index.retry_delay":    c.Index.RetryDelay,
		"watch.debounce":       c.Watch.Debounce,
		"watch.poll_interval":  c.Watch.PollInterval,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return invalid("%s: %v", name, err)
		}
	}

	switch strings.ToLower(c.Index.Backend) {
	case "sqlite", "bleve":
	default:
		return invalid("index.backend must be 'sqlite' or 'bleve', got %s", c.Index.Backend)
	}
	if c.Index.DedupCacheSize < 0 {
		return invalid("index.dedup_cache_size must be non-negative, got %d", c.Index.DedupCacheSize)
	}
	if c.Index.MaxRetries < 0 {
		return invalid("index.max_retries must be non-negative, got %d", c.Index.MaxRetries)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return invalid("logging.max_size_mb and logging.max_files must be non-negative")
	}

	seen := make(map[string]bool, len(c.Types))
	for _, t := range c.Types {
		name := strings.TrimSpace(t)
		if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
			return invalid("types: invalid type name %q", t)
		}
		if seen[name] {
			return invalid("types: duplicate type %q", name)
		}
		seen[name] = true
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// IdleTimeout returns signals.idle_timeout. Call after Validate.
func (c *Config) IdleTimeout() time.Duration {
	d, _ := parseDuration(c.Signals.IdleTimeout)
	return d
}

// RetryDelay returns index.retry_delay. Call after Validate.
func (c *Config) RetryDelay() time.Duration {
	d, _ := parseDuration(c.Index.RetryDelay)
	return d
}

// Debounce returns watch.debounce. Call after Validate.
func (c *Config) Debounce() time.Duration {
	d, _ := parseDuration(c.Watch.Debounce)
	return d
}

// PollInterval returns watch.poll_interval. Call after Validate.
func (c *Config) PollInterval() time.Duration {
	d, _ := parseDuration(c.Watch.PollInterval)
	return d
}

// Resolve returns path relative to the project root dir unless absolute.
func Resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// WriteYAML writes the configuration to a YAML file, creating its
// directory if needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
