package room

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type lockFile struct {
	Password      string   `yaml:"password"`
	PasswordType  string   `yaml:"password_type"`
	OnSuccessText string   `yaml:"on_success_text"`
	OnFailureText string   `yaml:"on_failure_text"`
	RevealObjects []string `yaml:"reveal_objects"`
	Escape        bool     `yaml:"escape"`
}

type objectFile struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Category    string    `yaml:"category"`
	Visible     bool      `yaml:"visible"`
	InspectText string    `yaml:"inspect_text"`
	Lock        *lockFile `yaml:"lock"`
}

type roomFile struct {
	RoomID  string       `yaml:"room_id"`
	Title   string       `yaml:"title"`
	Intro   string       `yaml:"intro"`
	Objects []objectFile `yaml:"objects"`
}

// Load reads a room definition from a YAML or JSON file. JSON is a subset
// of YAML, so both decode through the same path.
func Load(path string) (*Room, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read room file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Room, error) {
	var file roomFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode room file: %w", err)
	}

	objects := make([]*Object, 0, len(file.Objects))
	for _, def := range file.Objects {
		obj := &Object{
			ID:          def.ID,
			Name:        def.Name,
			Category:    def.Category,
			Visible:     def.Visible,
			InspectText: def.InspectText,
		}
		if def.Lock != nil {
			obj.Lock = &Lock{
				Password:      def.Lock.Password,
				PasswordType:  def.Lock.PasswordType,
				OnSuccessText: def.Lock.OnSuccessText,
				OnFailureText: def.Lock.OnFailureText,
				RevealObjects: append([]string(nil), def.Lock.RevealObjects...),
				Escape:        def.Lock.Escape,
			}
		}
		objects = append(objects, obj)
	}

	r, err := New(file.RoomID, file.Title, file.Intro, objects)
	if err != nil {
		return nil, fmt.Errorf("validate room: %w", err)
	}
	return r, nil
}
