package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.General.ActionTTLHours != 24 {
		t.Errorf("ActionTTLHours = %v, want 24", cfg.General.ActionTTLHours)
	}
	if cfg.Execution.TimeoutSecs != 30 {
		t.Errorf("TimeoutSecs = %d, want 30", cfg.Execution.TimeoutSecs)
	}
	if cfg.RateLimits.WindowSecs != 60 || cfg.RateLimits.MaxPerWindow != 60 {
		t.Errorf("rate limits = %d/%d, want 60/60", cfg.RateLimits.MaxPerWindow, cfg.RateLimits.WindowSecs)
	}
	if cfg.Server.Listen != "127.0.0.1:8787" {
		t.Errorf("Listen = %s", cfg.Server.Listen)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[execution]
timeout_secs = 5

[rate_limits]
window_secs = 10
max_per_window = 3

[patterns]
forbidden = ["^deploy-prod\\b"]
safe = ["^make\\s+test\\b"]

[server]
listen = "0.0.0.0:9090"

[server.tokens]
"secret-1" = "alice"
`)

	cfg, err := Load(LoadOptions{ConfigPath: path, ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Execution.TimeoutSecs != 5 {
		t.Errorf("TimeoutSecs = %d, want 5", cfg.Execution.TimeoutSecs)
	}
	if cfg.RateLimits.WindowSecs != 10 || cfg.RateLimits.MaxPerWindow != 3 {
		t.Errorf("rate limits = %+v", cfg.RateLimits)
	}
	if len(cfg.Patterns.Forbidden) != 1 || cfg.Patterns.Forbidden[0] != `^deploy-prod\b` {
		t.Errorf("Patterns.Forbidden = %v", cfg.Patterns.Forbidden)
	}
	if cfg.Server.Listen != "0.0.0.0:9090" {
		t.Errorf("Listen = %s", cfg.Server.Listen)
	}
	if cfg.Server.Tokens["secret-1"] != "alice" {
		t.Errorf("Tokens = %v", cfg.Server.Tokens)
	}

	// Defaults survive for keys the file does not set.
	if cfg.General.ActionTTLHours != 24 {
		t.Errorf("ActionTTLHours = %v, want default 24", cfg.General.ActionTTLHours)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")})
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadProjectConfig(t *testing.T) {
	project := t.TempDir()
	if err := os.MkdirAll(filepath.Join(project, ".jarvis"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(project, ".jarvis", "config.toml"),
		[]byte("[execution]\ntimeout_secs = 7\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(LoadOptions{ProjectDir: project})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Execution.TimeoutSecs != 7 {
		t.Errorf("TimeoutSecs = %d, want 7 from project config", cfg.Execution.TimeoutSecs)
	}
}

func TestFlagOverridesWin(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[execution]\ntimeout_secs = 5\n")

	cfg, err := Load(LoadOptions{
		ConfigPath:    path,
		ProjectDir:    t.TempDir(),
		FlagOverrides: map[string]any{"execution.timeout_secs": 90},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Execution.TimeoutSecs != 90 {
		t.Errorf("TimeoutSecs = %d, want flag override 90", cfg.Execution.TimeoutSecs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{"zero ttl", func(c *Config) { c.General.ActionTTLHours = 0 }, "action_ttl_hours"},
		{"zero timeout", func(c *Config) { c.Execution.TimeoutSecs = 0 }, "timeout_secs"},
		{"zero window", func(c *Config) { c.RateLimits.WindowSecs = 0 }, "window_secs"},
		{"zero cap", func(c *Config) { c.RateLimits.MaxPerWindow = -1 }, "max_per_window"},
		{"zero rotation", func(c *Config) { c.Audit.RotateMaxMB = 0 }, "rotate_max_mb"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.problem) {
				t.Errorf("error %q does not mention %s", err, tc.problem)
			}
		})
	}

	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestWriteValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := WriteValue(path, "execution.timeout_secs", 45); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	if err := WriteValue(path, "server.listen", "0.0.0.0:9999"); err != nil {
		t.Fatalf("WriteValue second key: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigPath: path, ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Execution.TimeoutSecs != 45 {
		t.Errorf("TimeoutSecs = %d, want 45", cfg.Execution.TimeoutSecs)
	}
	if cfg.Server.Listen != "0.0.0.0:9999" {
		t.Errorf("Listen = %s, want rewritten value", cfg.Server.Listen)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		raw  string
		want any
	}{
		{"true", true},
		{"false", false},
		{"45", int64(45)},
		{"1.5", 1.5},
		{"0.0.0.0:9999", "0.0.0.0:9999"},
	}
	for _, tc := range cases {
		if got := ParseValue(tc.raw); got != tc.want {
			t.Errorf("ParseValue(%q) = %v (%T), want %v (%T)", tc.raw, got, got, tc.want, tc.want)
		}
	}
}

func TestGetValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen = "127.0.0.1:9000"

	val, ok := GetValue(cfg, "server.listen")
	if !ok {
		t.Fatal("server.listen should resolve")
	}
	if val != "127.0.0.1:9000" {
		t.Errorf("server.listen = %v", val)
	}

	if _, ok := GetValue(cfg, "server.nope"); ok {
		t.Error("unknown key should not resolve")
	}
	if _, ok := GetValue(cfg, "server.listen.deeper"); ok {
		t.Error("descending through a leaf should not resolve")
	}
}

func TestConfigPaths(t *testing.T) {
	user, project := ConfigPaths("/work/app", "")
	if project != filepath.Join("/work/app", ".jarvis", "config.toml") {
		t.Errorf("project path = %s", project)
	}
	if user != "" && !strings.HasSuffix(user, filepath.Join(".jarvis", "config.toml")) {
		t.Errorf("user path = %s", user)
	}

	user, project = ConfigPaths("/work/app", "/etc/jarvis.toml")
	if user != "/etc/jarvis.toml" || project != "/etc/jarvis.toml" {
		t.Errorf("explicit path should override both: %s / %s", user, project)
	}
}
