package state

import (
	"testing"

	"escape_bench/internal/domain"
	"escape_bench/internal/room"
)

func newTestRoom(t *testing.T) *room.Room {
	t.Helper()
	r, err := room.New("vault_01", "The Vault", "Steel walls.", []*room.Object{
		{ID: "door_main", Name: "Main Door", Category: "door", Visible: true},
		{ID: "key_note", Name: "Crumpled Note", Category: "clue", Visible: false},
	})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	return r
}

func testRoster() []domain.AgentConfig {
	return []domain.AgentConfig{
		{ID: "alice", Name: "Alice", RoleDescription: "an engineer"},
		{ID: "bob", Name: "Bob", RoleDescription: "a historian"},
		{ID: "carol", Name: "Carol", RoleDescription: "a locksmith"},
	}
}

func TestPublicMessageVisibleFromNextTimestep(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{})
	env.BeginTimestep(1)
	env.Public.Chat = append(env.Public.Chat, PublicMessage{SenderID: "alice", Text: "hello", Timestep: 1})

	view, err := env.ViewFor("bob")
	if err != nil {
		t.Fatalf("view for bob: %v", err)
	}
	if len(view.PublicChat) != 0 {
		t.Fatalf("message sent at t=1 must be hidden during t=1, got %d", len(view.PublicChat))
	}

	env.BeginTimestep(2)
	view, err = env.ViewFor("bob")
	if err != nil {
		t.Fatalf("view for bob: %v", err)
	}
	if len(view.PublicChat) != 1 || view.PublicChat[0].Text != "hello" {
		t.Fatalf("message sent at t=1 must be visible during t=2, got %v", view.PublicChat)
	}
}

func TestRecordObservationRefreshesInPlace(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{})
	agent := env.Agents["alice"]

	agent.RecordObservation("door_main", 1, "A heavy door.")
	agent.RecordObservation("key_note", 2, "A note.")
	agent.RecordObservation("door_main", 5, "A heavy door, now ajar.")

	obs := agent.Observations()
	if len(obs) != 2 {
		t.Fatalf("expected refresh instead of duplicate, got %d entries", len(obs))
	}
	if obs[0].ObjectID != "door_main" || obs[1].ObjectID != "key_note" {
		t.Fatalf("first-inspect order lost: %v", obs)
	}
	if obs[0].Timestep != 5 || obs[0].Text != "A heavy door, now ajar." {
		t.Fatalf("entry not refreshed: %+v", obs[0])
	}
}

func TestReputationSeededOnlyWhenEnabled(t *testing.T) {
	enabled := NewEpisode(newTestRoom(t), testRoster(), Options{ReputationEnabled: true})
	if got := enabled.Agents["alice"].Reputation["bob"]; got != 1.0 {
		t.Fatalf("seeded score=%v want=1.0", got)
	}
	if _, ok := enabled.Agents["alice"].Reputation["alice"]; ok {
		t.Fatalf("agents must not be seeded with self scores")
	}

	disabled := NewEpisode(newTestRoom(t), testRoster(), Options{})
	if len(disabled.Agents["alice"].Reputation) != 0 {
		t.Fatalf("reputation must stay empty when disabled")
	}
}

func TestFinalReputationAveragesOthersAndDefaultsMissing(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{ReputationEnabled: true})
	env.Agents["alice"].Reputation["bob"] = 0.2
	// carol never rescored bob, so her seeded 1.0 stands.

	scores := env.FinalReputation()
	if got, want := scores["bob"], 0.6; got != want {
		t.Fatalf("bob=%v want=%v", got, want)
	}
	if got := scores["alice"]; got != 1.0 {
		t.Fatalf("alice=%v want=1.0", got)
	}

	// A missing entry counts as the neutral 1.0.
	delete(env.Agents["alice"].Reputation, "carol")
	scores = env.FinalReputation()
	if got := scores["carol"]; got != 1.0 {
		t.Fatalf("carol=%v want=1.0", got)
	}
}

func TestFinalReputationIgnoresSelfScores(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{ReputationEnabled: true})
	env.Agents["bob"].Reputation["bob"] = 0.0

	scores := env.FinalReputation()
	if got := scores["bob"]; got != 1.0 {
		t.Fatalf("self score must not affect the mean, got %v", got)
	}
}

func TestViewForCopiesState(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{ReputationEnabled: true})
	env.BeginTimestep(1)

	view, err := env.ViewFor("alice")
	if err != nil {
		t.Fatalf("view for alice: %v", err)
	}
	view.Reputation["bob"] = 0.0
	view.Names["bob"] = "Mallory"

	if env.Agents["alice"].Reputation["bob"] != 1.0 {
		t.Fatalf("mutating the view leaked into reputation state")
	}
	if env.Names["bob"] != "Bob" {
		t.Fatalf("mutating the view leaked into the name table")
	}
}

func TestViewForCarriesConditionAndPersona(t *testing.T) {
	roster := testRoster()
	roster[0].IsMalicious = true
	roster[0].MaliceStyle = domain.MaliceStyleAlwaysWrong
	env := NewEpisode(newTestRoom(t), roster, Options{
		GossipEnabled:     true,
		ReputationEnabled: true,
		AdversaryHint:     true,
	})
	env.BeginTimestep(3)

	view, err := env.ViewFor("alice")
	if err != nil {
		t.Fatalf("view for alice: %v", err)
	}
	if !view.GossipEnabled || !view.ReputationEnabled || !view.AdversaryHint {
		t.Fatalf("condition flags not carried: %+v", view)
	}
	if view.Timestep != 3 || view.AgentName != "Alice" {
		t.Fatalf("timestep=%d name=%q", view.Timestep, view.AgentName)
	}
	if !view.Persona.IsMalicious || view.Persona.MaliceStyle != domain.MaliceStyleAlwaysWrong {
		t.Fatalf("persona not carried: %+v", view.Persona)
	}
	if len(view.Teammates) != 2 {
		t.Fatalf("teammates=%v", view.Teammates)
	}
	for _, mate := range view.Teammates {
		if mate.ID == "alice" {
			t.Fatalf("view must not list the agent as their own teammate")
		}
	}
}

func TestViewForUnknownAgent(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{})
	if _, err := env.ViewFor("ghost"); err == nil {
		t.Fatalf("expected unknown agent to fail")
	}
}

func TestInboxFlattensByTimestepThenSender(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{GossipEnabled: true})
	alice := env.Agents["alice"]
	alice.Deliver(PrivateMessage{SenderID: "carol", RecipientID: "alice", Text: "late", Timestep: 2})
	alice.Deliver(PrivateMessage{SenderID: "bob", RecipientID: "alice", Text: "early", Timestep: 1})
	alice.Deliver(PrivateMessage{SenderID: "bob", RecipientID: "alice", Text: "also late", Timestep: 2})

	env.BeginTimestep(3)
	view, err := env.ViewFor("alice")
	if err != nil {
		t.Fatalf("view for alice: %v", err)
	}
	if len(view.Inbox) != 3 {
		t.Fatalf("inbox len=%d", len(view.Inbox))
	}
	if view.Inbox[0].Text != "early" {
		t.Fatalf("inbox[0]=%+v", view.Inbox[0])
	}
	if view.Inbox[1].SenderID != "bob" || view.Inbox[2].SenderID != "carol" {
		t.Fatalf("same-timestep messages must keep sender order: %v", view.Inbox)
	}
}

func TestEventsDrainOnce(t *testing.T) {
	env := NewEpisode(newTestRoom(t), testRoster(), Options{})
	env.AppendEvent(domain.RoomEvent{Kind: domain.RoomEventLockOpened, ObjectID: "door_main"})

	drained := env.DrainEvents()
	if len(drained) != 1 {
		t.Fatalf("drained=%d", len(drained))
	}
	if again := env.DrainEvents(); len(again) != 0 {
		t.Fatalf("second drain must be empty, got %d", len(again))
	}
}
