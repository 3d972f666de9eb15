package room

import (
	"errors"
	"strings"
	"testing"
)

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	r, err := New("vault_01", "The Vault", "Steel walls, one door, no windows.", []*Object{
		{
			ID:       "door_main",
			Name:     "Main Door",
			Category: "door",
			Visible:  true,
			Lock: &Lock{
				Password:      "419",
				PasswordType:  "code",
				OnSuccessText: "The door swings open!",
				OnFailureText: "The keypad buzzes. Wrong code.",
				Escape:        true,
			},
		},
		{
			ID:       "cabinet",
			Name:     "Steel Cabinet",
			Category: "container",
			Visible:  true,
			Lock: &Lock{
				Password:      "713",
				PasswordType:  "code",
				OnSuccessText: "The cabinet unlocks with a click.",
				OnFailureText: "The cabinet lock does not budge.",
				RevealObjects: []string{"key_note"},
			},
		},
		{
			ID:          "key_note",
			Name:        "Crumpled Note",
			Category:    "clue",
			Visible:     false,
			InspectText: "The note reads: 419.",
		},
		{
			ID:       "poster",
			Name:     "Faded Poster",
			Category: "decor",
			Visible:  true,
		},
	})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	return r
}

func TestAttemptOpensLockAndEscapes(t *testing.T) {
	r := newTestRoom(t)

	out, err := r.Attempt("door_main", "419")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !out.Opened {
		t.Fatalf("expected lock to open")
	}
	if !out.Escaped || !r.Escaped {
		t.Fatalf("expected escape, outcome=%v room=%v", out.Escaped, r.Escaped)
	}
	if out.Text != "The door swings open!" {
		t.Fatalf("text=%q", out.Text)
	}
}

func TestAttemptWrongPassword(t *testing.T) {
	r := newTestRoom(t)

	out, err := r.Attempt("door_main", "000")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !out.Wrong {
		t.Fatalf("expected wrong outcome")
	}
	if out.Opened || out.Escaped || r.Escaped {
		t.Fatalf("wrong password must not change state")
	}
	if out.Text != "The keypad buzzes. Wrong code." {
		t.Fatalf("text=%q", out.Text)
	}
}

func TestAttemptRevealsHiddenObjects(t *testing.T) {
	r := newTestRoom(t)

	out, err := r.Attempt("cabinet", "713")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !out.Opened {
		t.Fatalf("expected cabinet to open")
	}
	if len(out.Revealed) != 1 || out.Revealed[0] != "key_note" {
		t.Fatalf("revealed=%v", out.Revealed)
	}
	if len(out.RevealedNames) != 1 || out.RevealedNames[0] != "Crumpled Note" {
		t.Fatalf("revealed names=%v", out.RevealedNames)
	}
	note, _ := r.Object("key_note")
	if !note.Visible {
		t.Fatalf("expected revealed object to be visible")
	}
}

func TestAttemptRepeatSuccessIsIdempotent(t *testing.T) {
	r := newTestRoom(t)

	if _, err := r.Attempt("cabinet", "713"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	out, err := r.Attempt("cabinet", "713")
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if !out.AlreadyOpen {
		t.Fatalf("expected already-open outcome")
	}
	if out.Opened || out.Wrong {
		t.Fatalf("repeat success must not report opened or wrong")
	}
	if len(out.Revealed) != 0 {
		t.Fatalf("repeat success must not re-reveal, got %v", out.Revealed)
	}
	if out.Text != "The cabinet unlocks with a click." {
		t.Fatalf("text=%q", out.Text)
	}
}

func TestAttemptTrimsWhitespace(t *testing.T) {
	r := newTestRoom(t)

	out, err := r.Attempt("door_main", "  419 ")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !out.Opened {
		t.Fatalf("expected padded password to match")
	}
}

func TestAttemptChecksFoundThenVisibleThenLockable(t *testing.T) {
	r := newTestRoom(t)

	if _, err := r.Attempt("ghost", "419"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("unknown object err=%v", err)
	}
	if _, err := r.Attempt("key_note", "419"); !errors.Is(err, ErrObjectNotVisible) {
		t.Fatalf("hidden object err=%v", err)
	}
	if _, err := r.Attempt("poster", "419"); !errors.Is(err, ErrObjectNotLockable) {
		t.Fatalf("lockless object err=%v", err)
	}
}

func TestInspect(t *testing.T) {
	r := newTestRoom(t)

	text, err := r.Inspect("key_note")
	if !errors.Is(err, ErrObjectNotVisible) {
		t.Fatalf("hidden inspect err=%v", err)
	}
	if text == "" {
		t.Fatalf("expected player-facing text for failed inspect")
	}

	text, err = r.Inspect("poster")
	if err != nil {
		t.Fatalf("inspect poster: %v", err)
	}
	if text != "You inspect the Faded Poster, but find nothing special." {
		t.Fatalf("default inspect text=%q", text)
	}

	if _, err := r.Inspect("ghost"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("unknown inspect err=%v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	base := newTestRoom(t)
	clone := base.Clone()

	if _, err := clone.Attempt("cabinet", "713"); err != nil {
		t.Fatalf("attempt on clone: %v", err)
	}
	if _, err := clone.Attempt("door_main", "419"); err != nil {
		t.Fatalf("escape on clone: %v", err)
	}

	if base.Escaped {
		t.Fatalf("clone escape leaked into base")
	}
	note, _ := base.Object("key_note")
	if note.Visible {
		t.Fatalf("clone reveal leaked into base")
	}
	door, _ := base.Object("door_main")
	if door.Lock.Opened() {
		t.Fatalf("clone lock state leaked into base")
	}
}

func TestVisibleObjectsPreservesOrder(t *testing.T) {
	r := newTestRoom(t)

	var ids []string
	for _, obj := range r.VisibleObjects() {
		ids = append(ids, obj.ID)
	}
	want := "door_main,cabinet,poster"
	if got := strings.Join(ids, ","); got != want {
		t.Fatalf("visible order=%q want=%q", got, want)
	}
}

func TestNewRejectsBadRooms(t *testing.T) {
	if _, err := New("", "t", "i", nil); err == nil {
		t.Fatalf("expected empty room id to fail")
	}
	if _, err := New("r", "t", "i", []*Object{
		{ID: "a", Visible: true},
		{ID: "a", Visible: true},
	}); err == nil {
		t.Fatalf("expected duplicate object id to fail")
	}
	if _, err := New("r", "t", "i", []*Object{
		{ID: "a", Visible: true, Lock: &Lock{Password: "1", RevealObjects: []string{"missing"}}},
	}); err == nil {
		t.Fatalf("expected unknown reveal target to fail")
	}
}
