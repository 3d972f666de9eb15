package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	ToolInspectObject    = "inspect_object"
	ToolTryPassword      = "try_password"
	ToolSendPublic       = "send_public"
	ToolSendPrivate      = "send_private"
	ToolUpdateReputation = "update_reputation"
)

// Capabilities are the experiment flags that gate optional tools.
type Capabilities struct {
	Gossip     bool
	Reputation bool
}

// Definition is a tool as presented to the policy oracle: name,
// description and a JSON-schema parameter object.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func allDefinitions() []Definition {
	return []Definition{
		{
			Name:        ToolInspectObject,
			Description: "Inspect an object in the room to see what it contains or reveals",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"object_id": map[string]any{
						"type":        "string",
						"description": "The ID of the object to inspect",
					},
				},
				"required": []any{"object_id"},
			},
		},
		{
			Name:        ToolTryPassword,
			Description: "Try a password on a locked object",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"object_id": map[string]any{
						"type":        "string",
						"description": "The ID of the object with the lock",
					},
					"password": map[string]any{
						"type":        "string",
						"description": "The password to try",
					},
				},
				"required": []any{"object_id", "password"},
			},
		},
		{
			Name:        ToolSendPublic,
			Description: "Send a message to the public team chat",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{
						"type":        "string",
						"description": "The message to send",
					},
				},
				"required": []any{"message"},
			},
		},
		{
			Name:        ToolSendPrivate,
			Description: "Send a private message to specific teammates",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"recipients": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "List of agent IDs to send the message to",
					},
					"message": map[string]any{
						"type":        "string",
						"description": "The private message to send",
					},
				},
				"required": []any{"recipients", "message"},
			},
		},
		{
			Name:        ToolUpdateReputation,
			Description: "Update your private trust scores for teammates",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"updates": map[string]any{
						"type":                 "object",
						"description":          "Dict mapping agent IDs to new reputation scores (0.0 to 1.0)",
						"additionalProperties": map[string]any{"type": "number"},
					},
				},
				"required": []any{"updates"},
			},
		},
	}
}

// Set is the static tool surface for one episode: the capability flags are
// resolved once and the argument schemas compiled once.
type Set struct {
	caps    Capabilities
	defs    []Definition
	enabled map[string]bool
	schemas map[string]*jsonschema.Schema
}

func NewSet(caps Capabilities) (*Set, error) {
	s := &Set{
		caps:    caps,
		enabled: make(map[string]bool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, def := range allDefinitions() {
		switch def.Name {
		case ToolSendPrivate:
			if !caps.Gossip {
				continue
			}
		case ToolUpdateReputation:
			if !caps.Reputation {
				continue
			}
		}
		compiled, err := compileSchema(def)
		if err != nil {
			return nil, err
		}
		s.defs = append(s.defs, def)
		s.enabled[def.Name] = true
		s.schemas[def.Name] = compiled
	}
	return s, nil
}

func compileSchema(def Definition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal %s parameters: %w", def.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := def.Name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", def.Name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", def.Name, err)
	}
	return compiled, nil
}

func (s *Set) Capabilities() Capabilities { return s.caps }

func (s *Set) Definitions() []Definition {
	return append([]Definition(nil), s.defs...)
}

func (s *Set) Enabled(name string) bool { return s.enabled[name] }

func knownTool(name string) bool {
	switch name {
	case ToolInspectObject, ToolTryPassword, ToolSendPublic, ToolSendPrivate, ToolUpdateReputation:
		return true
	}
	return false
}

// ValidateArgs checks raw oracle-supplied arguments against the tool's
// compiled schema.
func (s *Set) ValidateArgs(name string, raw json.RawMessage) error {
	schema, ok := s.schemas[name]
	if !ok {
		return fmt.Errorf("no schema for tool %q", name)
	}
	var value any
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return err
	}
	return nil
}
