package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"escape_bench/internal/domain"
)

type personasFile struct {
	Personas []domain.AgentConfig `yaml:"personas"`
}

// LoadPersonas reads persona definitions from a YAML or JSON file. JSON
// is a subset of YAML, so both decode through the same path.
func LoadPersonas(path string) ([]domain.AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	return ParsePersonas(raw)
}

func ParsePersonas(raw []byte) ([]domain.AgentConfig, error) {
	var file personasFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode personas file: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("personas file has no personas")
	}

	seen := make(map[string]struct{}, len(file.Personas))
	for i, p := range file.Personas {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("persona %d has an empty id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona %q has an empty name", p.ID)
		}
		switch p.MaliceStyle {
		case "", domain.MaliceStyleSubtle, domain.MaliceStyleAlwaysWrong:
		default:
			return nil, fmt.Errorf("persona %q has unknown malice_style %q", p.ID, p.MaliceStyle)
		}
	}
	return file.Personas, nil
}
