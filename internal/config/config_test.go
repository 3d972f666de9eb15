package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTOML = `
[experiment]
adversary = true
adversary_style = "subtle"
reputation = true
gossip = true
max_steps = 12
episodes = 3

[oracle]
model = "gpt-4o"
base_url = "https://llm.example.com/v1"
api_key_env = "EXAMPLE_KEY"
max_retries = 2
retry_backoff_ms = 100
request_timeout_ms = 30000

[paths]
room = "rooms/vault.yaml"
personas = "personas/team.yaml"
log_dir = "logs"
db = "runs.db"

[journal]
compress = true
detailed = true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesEverySection(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.Experiment.Adversary || cfg.Experiment.AdversaryStyle != "subtle" {
		t.Fatalf("experiment=%+v", cfg.Experiment)
	}
	if cfg.Experiment.MaxSteps != 12 || cfg.Experiment.Episodes != 3 {
		t.Fatalf("experiment=%+v", cfg.Experiment)
	}
	if cfg.Oracle.Model != "gpt-4o" || cfg.Oracle.APIKeyEnv != "EXAMPLE_KEY" {
		t.Fatalf("oracle=%+v", cfg.Oracle)
	}
	if cfg.Oracle.RetryBackoffMS != 100 || cfg.Oracle.RequestTimeoutMS != 30000 {
		t.Fatalf("oracle=%+v", cfg.Oracle)
	}
	if cfg.Paths.Room != "rooms/vault.yaml" || cfg.Paths.DB != "runs.db" {
		t.Fatalf("paths=%+v", cfg.Paths)
	}
	if !cfg.Journal.Compress || !cfg.Journal.Detailed {
		t.Fatalf("journal=%+v", cfg.Journal)
	}
	if cfg.Path == "" {
		t.Fatalf("resolved path not recorded")
	}
}

func TestLoadEmptyPathYieldsZeroConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("cfg=%+v want zero", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := writeConfig(t, "[experiment\nbroken")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "decode config file") {
		t.Fatalf("err=%v", err)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Experiment.MaxSteps != 30 || cfg.Experiment.Episodes != 5 {
		t.Fatalf("experiment=%+v", cfg.Experiment)
	}
	if cfg.Oracle.Model != "gpt-4-turbo-preview" {
		t.Fatalf("model=%q", cfg.Oracle.Model)
	}
	if cfg.Oracle.BaseURL != "https://api.openai.com/v1" || cfg.Oracle.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("oracle=%+v", cfg.Oracle)
	}
	if cfg.Oracle.MaxRetries != 4 || cfg.Oracle.RetryBackoffMS != 500 || cfg.Oracle.RequestTimeoutMS != 60000 {
		t.Fatalf("oracle=%+v", cfg.Oracle)
	}
	if cfg.Paths.DB != "escape_bench.db" {
		t.Fatalf("db=%q", cfg.Paths.DB)
	}

	// Explicit values survive.
	cfg = Config{Experiment: ExperimentConfig{MaxSteps: 7}}.WithDefaults()
	if cfg.Experiment.MaxSteps != 7 {
		t.Fatalf("max steps=%d want=7", cfg.Experiment.MaxSteps)
	}
}

func validConfig() Config {
	cfg := Config{}.WithDefaults()
	cfg.Paths.Room = "rooms/vault.yaml"
	cfg.Paths.Personas = "personas/team.yaml"
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero max steps",
			mutate:  func(c *Config) { c.Experiment.MaxSteps = 0 },
			wantErr: "max_steps must be at least 1",
		},
		{
			name:    "zero episodes",
			mutate:  func(c *Config) { c.Experiment.Episodes = 0 },
			wantErr: "episodes must be at least 1",
		},
		{
			name:    "missing room",
			mutate:  func(c *Config) { c.Paths.Room = " " },
			wantErr: "room path is required",
		},
		{
			name:    "missing personas",
			mutate:  func(c *Config) { c.Paths.Personas = "" },
			wantErr: "personas path is required",
		},
		{
			name:    "bad adversary style",
			mutate:  func(c *Config) { c.Experiment.AdversaryStyle = "chaotic" },
			wantErr: "adversary_style must be",
		},
		{
			name: "detailed logs without log dir",
			mutate: func(c *Config) {
				c.Journal.Detailed = true
				c.Paths.LogDir = ""
			},
			wantErr: "detailed logs require a log directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := ExpandPath("~/escape/config.toml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "escape", "config.toml") {
		t.Fatalf("got=%q", got)
	}

	got, err = ExpandPath("./rooms//vault.yaml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Clean("./rooms/vault.yaml") {
		t.Fatalf("got=%q", got)
	}
}
