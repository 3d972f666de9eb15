package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"escape_bench/internal/domain"
)

type Config struct {
	Experiment ExperimentConfig `toml:"experiment"`
	Oracle     OracleConfig     `toml:"oracle"`
	Paths      PathsConfig      `toml:"paths"`
	Journal    JournalConfig    `toml:"journal"`
	Path       string           `toml:"-"`
}

type ExperimentConfig struct {
	Adversary      bool   `toml:"adversary"`
	AdversaryStyle string `toml:"adversary_style"`
	Reputation     bool   `toml:"reputation"`
	Gossip         bool   `toml:"gossip"`
	MaxSteps       int    `toml:"max_steps"`
	Episodes       int    `toml:"episodes"`
}

type OracleConfig struct {
	Model            string `toml:"model"`
	BaseURL          string `toml:"base_url"`
	APIKeyEnv        string `toml:"api_key_env"`
	MaxRetries       int    `toml:"max_retries"`
	RetryBackoffMS   int    `toml:"retry_backoff_ms"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
}

type PathsConfig struct {
	Room     string `toml:"room"`
	Personas string `toml:"personas"`
	LogDir   string `toml:"log_dir"`
	DB       string `toml:"db"`
}

type JournalConfig struct {
	Compress bool `toml:"compress"`
	Detailed bool `toml:"detailed"`
}

// Load reads a TOML config file. An empty path yields a zero Config so
// a run can be assembled from flags alone; defaults are applied by the
// caller after flag overrides via WithDefaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, nil
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg, nil
}

func (c Config) WithDefaults() Config {
	if c.Experiment.MaxSteps <= 0 {
		c.Experiment.MaxSteps = 30
	}
	if c.Experiment.Episodes <= 0 {
		c.Experiment.Episodes = 5
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4-turbo-preview"
	}
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.openai.com/v1"
	}
	if c.Oracle.APIKeyEnv == "" {
		c.Oracle.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Oracle.MaxRetries <= 0 {
		c.Oracle.MaxRetries = 4
	}
	if c.Oracle.RetryBackoffMS <= 0 {
		c.Oracle.RetryBackoffMS = 500
	}
	if c.Oracle.RequestTimeoutMS <= 0 {
		c.Oracle.RequestTimeoutMS = 60000
	}
	if c.Paths.DB == "" {
		c.Paths.DB = "escape_bench.db"
	}
	return c
}

func (c Config) Validate() error {
	if c.Experiment.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1")
	}
	if c.Experiment.Episodes < 1 {
		return fmt.Errorf("episodes must be at least 1")
	}
	if strings.TrimSpace(c.Paths.Room) == "" {
		return fmt.Errorf("room path is required")
	}
	if strings.TrimSpace(c.Paths.Personas) == "" {
		return fmt.Errorf("personas path is required")
	}
	switch domain.MaliceStyle(c.Experiment.AdversaryStyle) {
	case "", domain.MaliceStyleSubtle, domain.MaliceStyleAlwaysWrong:
	default:
		return fmt.Errorf("adversary_style must be %q or %q, got %q",
			domain.MaliceStyleSubtle, domain.MaliceStyleAlwaysWrong, c.Experiment.AdversaryStyle)
	}
	if c.Journal.Detailed && strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("detailed logs require a log directory")
	}
	return nil
}

// ExpandPath resolves a leading ~ against the home directory and cleans
// the result.
func ExpandPath(path string) (string, error) {
	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	return filepath.Clean(resolved), nil
}
