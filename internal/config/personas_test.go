package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"escape_bench/internal/domain"
)

const personasYAML = `
personas:
  - id: alice
    name: Alice
    role_description: an engineer
  - id: bob
    name: Bob
    role_description: a historian
    bench_when_adversary: true
  - id: mallory
    name: Mallory
    role_description: a consultant
    is_malicious: true
    malice_style: subtle
`

const personasJSON = `{
  "personas": [
    {"id": "alice", "name": "Alice", "role_description": "an engineer"},
    {"id": "eve", "name": "Eve", "role_description": "a guide", "is_malicious": true, "malice_style": "always-wrong"}
  ]
}`

func TestParsePersonasYAML(t *testing.T) {
	personas, err := ParsePersonas([]byte(personasYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(personas) != 3 {
		t.Fatalf("personas=%d want=3", len(personas))
	}
	if personas[0].ID != "alice" || personas[0].Name != "Alice" {
		t.Fatalf("first=%+v", personas[0])
	}
	if !personas[1].BenchWhenAdversary {
		t.Fatalf("bench flag lost: %+v", personas[1])
	}
	mallory := personas[2]
	if !mallory.IsMalicious || mallory.MaliceStyle != domain.MaliceStyleSubtle {
		t.Fatalf("mallory=%+v", mallory)
	}
}

func TestParsePersonasJSON(t *testing.T) {
	personas, err := ParsePersonas([]byte(personasJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(personas) != 2 {
		t.Fatalf("personas=%d want=2", len(personas))
	}
	if personas[1].MaliceStyle != domain.MaliceStyleAlwaysWrong {
		t.Fatalf("eve=%+v", personas[1])
	}
}

func TestParsePersonasErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"empty list", "personas: []", "no personas"},
		{"not yaml", "{{nope", "decode personas file"},
		{
			name:    "empty id",
			raw:     "personas:\n  - id: \"\"\n    name: Alice",
			wantErr: "empty id",
		},
		{
			name:    "duplicate id",
			raw:     "personas:\n  - id: alice\n    name: Alice\n  - id: alice\n    name: Alicia",
			wantErr: `duplicate persona id "alice"`,
		},
		{
			name:    "empty name",
			raw:     "personas:\n  - id: alice\n    name: \"\"",
			wantErr: "empty name",
		},
		{
			name:    "unknown style",
			raw:     "personas:\n  - id: mallory\n    name: Mallory\n    malice_style: theatrical",
			wantErr: "unknown malice_style",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePersonas([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPersonasFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	if err := os.WriteFile(path, []byte(personasYAML), 0o644); err != nil {
		t.Fatalf("write personas: %v", err)
	}
	personas, err := LoadPersonas(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(personas) != 3 {
		t.Fatalf("personas=%d want=3", len(personas))
	}

	if _, err := LoadPersonas(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
