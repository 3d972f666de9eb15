package room

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrObjectNotVisible  = errors.New("object not visible")
	ErrObjectNotLockable = errors.New("object has no lock")
)

type Lock struct {
	Password      string
	PasswordType  string // "code" | "word" | "pattern"
	OnSuccessText string
	OnFailureText string
	RevealObjects []string
	Escape        bool

	opened bool
}

func (l *Lock) Opened() bool { return l.opened }

type Object struct {
	ID          string
	Name        string
	Category    string // "door" | "clue" | "container" | "decor" | "other"
	Visible     bool
	InspectText string
	Lock        *Lock
}

type Room struct {
	RoomID  string
	Title   string
	Intro   string
	Escaped bool

	objects []*Object
	index   map[string]*Object
}

// New validates the object set and builds the lookup index. Object order
// is preserved for visible-object listings.
func New(roomID, title, intro string, objects []*Object) (*Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, errors.New("room id is empty")
	}
	r := &Room{
		RoomID:  roomID,
		Title:   title,
		Intro:   intro,
		objects: objects,
		index:   make(map[string]*Object, len(objects)),
	}
	for _, obj := range objects {
		if strings.TrimSpace(obj.ID) == "" {
			return nil, fmt.Errorf("room %s: object with empty id", roomID)
		}
		if _, dup := r.index[obj.ID]; dup {
			return nil, fmt.Errorf("room %s: duplicate object id %q", roomID, obj.ID)
		}
		r.index[obj.ID] = obj
	}
	for _, obj := range objects {
		if obj.Lock == nil {
			continue
		}
		for _, target := range obj.Lock.RevealObjects {
			if _, ok := r.index[target]; !ok {
				return nil, fmt.Errorf("room %s: lock on %q reveals unknown object %q", roomID, obj.ID, target)
			}
		}
	}
	return r, nil
}

// Clone deep-copies the room so each episode mutates its own instance.
func (r *Room) Clone() *Room {
	objects := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		copied := *obj
		if obj.Lock != nil {
			lock := *obj.Lock
			lock.RevealObjects = append([]string(nil), obj.Lock.RevealObjects...)
			copied.Lock = &lock
		}
		objects = append(objects, &copied)
	}
	clone := &Room{
		RoomID:  r.RoomID,
		Title:   r.Title,
		Intro:   r.Intro,
		Escaped: r.Escaped,
		objects: objects,
		index:   make(map[string]*Object, len(objects)),
	}
	for _, obj := range objects {
		clone.index[obj.ID] = obj
	}
	return clone
}

func (r *Room) Object(id string) (*Object, bool) {
	obj, ok := r.index[id]
	return obj, ok
}

func (r *Room) VisibleObjects() []*Object {
	visible := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		if obj.Visible {
			visible = append(visible, obj)
		}
	}
	return visible
}

// Inspect returns the player-facing description of an object. The returned
// text is meaningful even when err is non-nil; err classifies the failure.
func (r *Room) Inspect(objectID string) (string, error) {
	obj, ok := r.index[objectID]
	if !ok {
		return fmt.Sprintf("There is no object with id '%s'.", objectID), ErrObjectNotFound
	}
	if !obj.Visible {
		return fmt.Sprintf("There is nothing visible with id '%s'.", objectID), ErrObjectNotVisible
	}
	if obj.InspectText == "" {
		return fmt.Sprintf("You inspect the %s, but find nothing special.", obj.Name), nil
	}
	return obj.InspectText, nil
}

// Outcome describes what an attempt did. Wrong, Opened, AlreadyOpen and
// Escaped are mutually consistent: a wrong password changes nothing, a
// repeat success on an opened lock reports AlreadyOpen without re-running
// reveal effects.
type Outcome struct {
	Text          string
	Wrong         bool
	Opened        bool
	AlreadyOpen   bool
	Revealed      []string
	RevealedNames []string
	Escaped       bool
}

// Attempt tries a password against an object's lock. Comparison trims
// surrounding whitespace on both sides; case is preserved as authored.
func (r *Room) Attempt(objectID, password string) (Outcome, error) {
	obj, ok := r.index[objectID]
	if !ok {
		return Outcome{Text: fmt.Sprintf("There is no object with id '%s'.", objectID)}, ErrObjectNotFound
	}
	if !obj.Visible {
		return Outcome{Text: fmt.Sprintf("There is nothing visible with id '%s'.", objectID)}, ErrObjectNotVisible
	}
	if obj.Lock == nil {
		return Outcome{Text: fmt.Sprintf("The %s does not seem to have any password lock.", obj.Name)}, ErrObjectNotLockable
	}

	lock := obj.Lock
	if strings.TrimSpace(password) != strings.TrimSpace(lock.Password) {
		return Outcome{Text: lock.OnFailureText, Wrong: true}, nil
	}
	if lock.opened {
		return Outcome{Text: lock.OnSuccessText, AlreadyOpen: true}, nil
	}

	lock.opened = true
	out := Outcome{Text: lock.OnSuccessText, Opened: true}
	for _, id := range lock.RevealObjects {
		target := r.index[id]
		if target.Visible {
			continue
		}
		target.Visible = true
		out.Revealed = append(out.Revealed, target.ID)
		out.RevealedNames = append(out.RevealedNames, target.Name)
	}
	if lock.Escape {
		r.Escaped = true
		out.Escaped = true
	}
	return out, nil
}
