package state

import (
	"fmt"
	"sort"

	"escape_bench/internal/domain"
	"escape_bench/internal/room"
)

type PublicMessage struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
	Timestep int    `json:"timestep"`
}

type PrivateMessage struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	Timestep    int    `json:"timestep"`
}

type PublicState struct {
	Timestep int
	Chat     []PublicMessage
}

// VisibleTo returns the public log as seen during the given timestep. A
// message sent at T is withheld until T+1.
func (p *PublicState) VisibleTo(timestep int) []PublicMessage {
	visible := make([]PublicMessage, 0, len(p.Chat))
	for _, msg := range p.Chat {
		if msg.Timestep < timestep {
			visible = append(visible, msg)
		}
	}
	return visible
}

type ObservationEntry struct {
	ObjectID string `json:"object_id"`
	Timestep int    `json:"timestep"`
	Text     string `json:"text"`
}

type AgentPrivateState struct {
	AgentID    string
	Inbox      map[string][]PrivateMessage
	Reputation map[string]float64

	observations map[string]ObservationEntry
	obsOrder     []string
}

// RecordObservation refreshes the entry for an object instead of appending
// a duplicate; first-inspection order is preserved for rendering.
func (a *AgentPrivateState) RecordObservation(objectID string, timestep int, text string) {
	if _, seen := a.observations[objectID]; !seen {
		a.obsOrder = append(a.obsOrder, objectID)
	}
	a.observations[objectID] = ObservationEntry{ObjectID: objectID, Timestep: timestep, Text: text}
}

func (a *AgentPrivateState) Observations() []ObservationEntry {
	entries := make([]ObservationEntry, 0, len(a.obsOrder))
	for _, id := range a.obsOrder {
		entries = append(entries, a.observations[id])
	}
	return entries
}

func (a *AgentPrivateState) Deliver(msg PrivateMessage) {
	a.Inbox[msg.SenderID] = append(a.Inbox[msg.SenderID], msg)
}

// Options fixes the experiment condition for one episode. The flags end
// up in every TurnView so the oracle can render matching instructions.
type Options struct {
	GossipEnabled     bool
	ReputationEnabled bool
	AdversaryHint     bool
}

// EnvState owns one episode's room, public state and per-agent private
// state. All mutation goes through the tool executor; the runner drains
// pending room events after each turn.
type EnvState struct {
	Room                  *room.Room
	Public                *PublicState
	Agents                map[string]*AgentPrivateState
	Roster                []string
	Names                 map[string]string
	WrongPasswordAttempts int

	opts     Options
	personas map[string]domain.AgentConfig
	events   []domain.RoomEvent
}

// NewEpisode deep-copies the base room and seeds fresh private state for
// every roster agent. With reputation enabled, every agent starts every
// teammate at the neutral score 1.0.
func NewEpisode(base *room.Room, roster []domain.AgentConfig, opts Options) *EnvState {
	env := &EnvState{
		Room:     base.Clone(),
		Public:   &PublicState{Timestep: 0},
		Agents:   make(map[string]*AgentPrivateState, len(roster)),
		Roster:   make([]string, 0, len(roster)),
		Names:    make(map[string]string, len(roster)),
		opts:     opts,
		personas: make(map[string]domain.AgentConfig, len(roster)),
	}
	for _, cfg := range roster {
		env.Roster = append(env.Roster, cfg.ID)
		env.Names[cfg.ID] = cfg.Name
		env.personas[cfg.ID] = cfg
	}
	for _, cfg := range roster {
		reputation := make(map[string]float64)
		if opts.ReputationEnabled {
			for _, other := range roster {
				if other.ID != cfg.ID {
					reputation[other.ID] = 1.0
				}
			}
		}
		env.Agents[cfg.ID] = &AgentPrivateState{
			AgentID:      cfg.ID,
			Inbox:        make(map[string][]PrivateMessage),
			Reputation:   reputation,
			observations: make(map[string]ObservationEntry),
		}
	}
	return env
}

func (e *EnvState) BeginTimestep(t int) {
	e.Public.Timestep = t
}

func (e *EnvState) IsAgent(id string) bool {
	_, ok := e.Agents[id]
	return ok
}

func (e *EnvState) DisplayName(id string) string {
	if name, ok := e.Names[id]; ok && name != "" {
		return name
	}
	return id
}

func (e *EnvState) AppendEvent(ev domain.RoomEvent) {
	e.events = append(e.events, ev)
}

func (e *EnvState) DrainEvents() []domain.RoomEvent {
	drained := e.events
	e.events = nil
	return drained
}

// FinalReputation averages, for each agent, the scores every other agent
// holds for them; an agent that never scored a teammate contributes the
// neutral 1.0.
func (e *EnvState) FinalReputation() map[string]float64 {
	scores := make(map[string]float64, len(e.Roster))
	for _, subject := range e.Roster {
		var sum float64
		var n int
		for _, rater := range e.Roster {
			if rater == subject {
				continue
			}
			score, ok := e.Agents[rater].Reputation[subject]
			if !ok {
				score = 1.0
			}
			sum += score
			n++
		}
		if n == 0 {
			scores[subject] = 1.0
			continue
		}
		scores[subject] = sum / float64(n)
	}
	return scores
}

type ObjectSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type TeammateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TurnView is the read-only snapshot handed to the policy oracle. Every
// field is a copy; mutating a view never touches the environment.
type TurnView struct {
	AgentID           string
	AgentName         string
	Persona           domain.AgentConfig
	Timestep          int
	RoomTitle         string
	RoomIntro         string
	Escaped           bool
	VisibleObjects    []ObjectSummary
	PublicChat        []PublicMessage
	Observations      []ObservationEntry
	Inbox             []PrivateMessage
	Reputation        map[string]float64
	Teammates         []TeammateRef
	Names             map[string]string
	GossipEnabled     bool
	ReputationEnabled bool
	AdversaryHint     bool
}

func (e *EnvState) ViewFor(agentID string) (TurnView, error) {
	agent, ok := e.Agents[agentID]
	if !ok {
		return TurnView{}, fmt.Errorf("no private state for agent %q", agentID)
	}

	view := TurnView{
		AgentID:           agentID,
		AgentName:         e.DisplayName(agentID),
		Persona:           e.personas[agentID],
		Timestep:          e.Public.Timestep,
		RoomTitle:         e.Room.Title,
		RoomIntro:         e.Room.Intro,
		Escaped:           e.Room.Escaped,
		PublicChat:        e.Public.VisibleTo(e.Public.Timestep),
		GossipEnabled:     e.opts.GossipEnabled,
		ReputationEnabled: e.opts.ReputationEnabled,
		AdversaryHint:     e.opts.AdversaryHint,
	}
	for _, obj := range e.Room.VisibleObjects() {
		view.VisibleObjects = append(view.VisibleObjects, ObjectSummary{
			ID:       obj.ID,
			Name:     obj.Name,
			Category: obj.Category,
		})
	}
	view.Observations = agent.Observations()
	view.Inbox = flattenInbox(agent.Inbox)
	view.Reputation = make(map[string]float64, len(agent.Reputation))
	for id, score := range agent.Reputation {
		view.Reputation[id] = score
	}
	view.Names = make(map[string]string, len(e.Names))
	for id, name := range e.Names {
		view.Names[id] = name
	}
	for _, id := range e.Roster {
		if id == agentID {
			continue
		}
		view.Teammates = append(view.Teammates, TeammateRef{ID: id, Name: e.DisplayName(id)})
	}
	return view, nil
}

func flattenInbox(inbox map[string][]PrivateMessage) []PrivateMessage {
	senders := make([]string, 0, len(inbox))
	for id := range inbox {
		senders = append(senders, id)
	}
	sort.Strings(senders)

	var flat []PrivateMessage
	for _, id := range senders {
		flat = append(flat, inbox[id]...)
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Timestep < flat[j].Timestep })
	return flat
}
