// Package config implements layered configuration loading.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.jarvis/config.toml), project config (<project>/.jarvis/config.toml),
// environment (JARVIS_*), explicit flag overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the full framework configuration.
type Config struct {
	General    GeneralConfig    `mapstructure:"general" toml:"general"`
	Execution  ExecutionConfig  `mapstructure:"execution" toml:"execution"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits" toml:"rate_limits"`
	Audit      AuditConfig      `mapstructure:"audit" toml:"audit"`
	Patterns   PatternsConfig   `mapstructure:"patterns" toml:"patterns"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
}

// GeneralConfig holds framework-wide settings.
type GeneralConfig struct {
	// DBPath is the action store location. Empty means <project>/.jarvis/actions.db.
	DBPath string `mapstructure:"db_path" toml:"db_path"`
	// ActionTTLHours is the approval window for new actions.
	ActionTTLHours float64 `mapstructure:"action_ttl_hours" toml:"action_ttl_hours"`
}

// ExecutionConfig bounds command execution.
type ExecutionConfig struct {
	TimeoutSecs int `mapstructure:"timeout_secs" toml:"timeout_secs"`
}

// RateLimitsConfig bounds per-actor execution frequency.
type RateLimitsConfig struct {
	WindowSecs   int `mapstructure:"window_secs" toml:"window_secs"`
	MaxPerWindow int `mapstructure:"max_per_window" toml:"max_per_window"`
}

// AuditConfig configures the append-only audit log.
type AuditConfig struct {
	// LogPath is the JSONL audit log location. Empty means <project>/.jarvis/audit.jsonl.
	LogPath string `mapstructure:"log_path" toml:"log_path"`
	// RotateMaxMB is the rotation threshold in megabytes.
	RotateMaxMB int `mapstructure:"rotate_max_mb" toml:"rotate_max_mb"`
}

// PatternsConfig supplies extra classification rules on top of the builtins.
type PatternsConfig struct {
	Forbidden []string `mapstructure:"forbidden" toml:"forbidden"`
	Safe      []string `mapstructure:"safe" toml:"safe"`
	Medium    []string `mapstructure:"medium" toml:"medium"`
	High      []string `mapstructure:"high" toml:"high"`
}

// ServerConfig configures the HTTP approval API.
type ServerConfig struct {
	Listen string `mapstructure:"listen" toml:"listen"`
	// Tokens maps bearer tokens to caller identities.
	Tokens map[string]string `mapstructure:"tokens" toml:"tokens"`
	// WebhookURL, when set, receives action lifecycle events as JSON POSTs.
	WebhookURL string `mapstructure:"webhook_url" toml:"webhook_url"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			ActionTTLHours: 24,
		},
		Execution: ExecutionConfig{
			TimeoutSecs: 30,
		},
		RateLimits: RateLimitsConfig{
			WindowSecs:   60,
			MaxPerWindow: 60,
		},
		Audit: AuditConfig{
			RotateMaxMB: 100,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8787",
		},
	}
}

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.General.ActionTTLHours <= 0 {
		problems = append(problems, "general.action_ttl_hours must be positive")
	}
	if cfg.Execution.TimeoutSecs <= 0 {
		problems = append(problems, "execution.timeout_secs must be positive")
	}
	if cfg.RateLimits.WindowSecs <= 0 {
		problems = append(problems, "rate_limits.window_secs must be positive")
	}
	if cfg.RateLimits.MaxPerWindow <= 0 {
		problems = append(problems, "rate_limits.max_per_window must be positive")
	}
	if cfg.Audit.RotateMaxMB <= 0 {
		problems = append(problems, "audit.rotate_max_mb must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LoadOptions controls config loading.
type LoadOptions struct {
	// ProjectDir is the project root. Empty means the current directory.
	ProjectDir string
	// ConfigPath, when set, replaces the user/project file search.
	ConfigPath string
	// FlagOverrides are dotted-key values with highest precedence.
	FlagOverrides map[string]any
}

// Load builds the effective configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Defaults.
	defaults := DefaultConfig()
	v.SetDefault("general.db_path", defaults.General.DBPath)
	v.SetDefault("general.action_ttl_hours", defaults.General.ActionTTLHours)
	v.SetDefault("execution.timeout_secs", defaults.Execution.TimeoutSecs)
	v.SetDefault("rate_limits.window_secs", defaults.RateLimits.WindowSecs)
	v.SetDefault("rate_limits.max_per_window", defaults.RateLimits.MaxPerWindow)
	v.SetDefault("audit.log_path", defaults.Audit.LogPath)
	v.SetDefault("audit.rotate_max_mb", defaults.Audit.RotateMaxMB)
	v.SetDefault("server.listen", defaults.Server.Listen)
	v.SetDefault("server.webhook_url", defaults.Server.WebhookURL)

	project := opts.ProjectDir
	if project == "" {
		if cwd, err := os.Getwd(); err == nil {
			project = cwd
		}
	}

	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.ConfigPath, err)
		}
	} else {
		// User config, then project config layered on top.
		if home, err := os.UserHomeDir(); err == nil {
			mergeIfExists(v, filepath.Join(home, ".jarvis", "config.toml"))
		}
		if project != "" {
			mergeIfExists(v, filepath.Join(project, ".jarvis", "config.toml"))
		}
	}

	v.SetEnvPrefix("JARVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.FlagOverrides {
		v.Set(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeIfExists(v *viper.Viper, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	v.SetConfigFile(path)
	_ = v.MergeInConfig()
}

// ConfigPaths returns the user and project config file locations. An explicit
// path overrides both.
func ConfigPaths(project, explicit string) (userPath, projectPath string) {
	if explicit != "" {
		return explicit, explicit
	}
	if home, err := os.UserHomeDir(); err == nil {
		userPath = filepath.Join(home, ".jarvis", "config.toml")
	}
	if project != "" {
		projectPath = filepath.Join(project, ".jarvis", "config.toml")
	}
	return userPath, projectPath
}

// ParseValue converts a raw CLI string into a typed config value.
func ParseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// GetValue looks up a dotted key in the effective configuration.
func GetValue(cfg *Config, key string) (any, bool) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, false
	}
	tree := map[string]any{}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, false
	}

	parts := strings.Split(key, ".")
	var cur any = tree
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// WriteValue sets a single dotted key in a TOML config file, creating the
// file and parent directories as needed.
func WriteValue(path, key string, value any) error {
	existing := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	setDotted(existing, key, value)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(existing); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

func setDotted(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for i := 0; i < len(parts)-1; i++ {
		child, ok := m[parts[i]].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[parts[i]] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
}
