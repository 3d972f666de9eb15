package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"escape_bench/internal/domain"
	"escape_bench/internal/room"
	"escape_bench/internal/state"
)

// Call is one tool invocation requested by the policy oracle.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Result is what the caller (and the oracle, next turn) sees. Code is empty
// on success; Text is always the player-facing message.
type Result struct {
	Tool    string
	Code    string
	Text    string
	IsError bool
}

// Executor is the sole mutator of episode state. Every operation either
// succeeds deterministically or fails permanently as an error-flagged
// result; nothing here is retried and nothing aborts the turn.
type Executor struct {
	set *Set
}

func NewExecutor(set *Set) *Executor {
	return &Executor{set: set}
}

func (x *Executor) Set() *Set { return x.set }

func (x *Executor) Execute(env *state.EnvState, agentID string, call Call) Result {
	if !knownTool(call.Name) {
		return Result{
			Tool:    call.Name,
			Code:    CodeUnknownTool,
			Text:    fmt.Sprintf("There is no tool named '%s'.", call.Name),
			IsError: true,
		}
	}
	if !x.set.Enabled(call.Name) {
		return Result{
			Tool:    call.Name,
			Code:    CodeCapabilityDisabled,
			Text:    fmt.Sprintf("The tool '%s' is disabled in this experiment.", call.Name),
			IsError: true,
		}
	}
	if err := x.set.ValidateArgs(call.Name, call.Args); err != nil {
		return Result{
			Tool:    call.Name,
			Code:    CodeInvalidArguments,
			Text:    fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err),
			IsError: true,
		}
	}

	switch call.Name {
	case ToolInspectObject:
		return x.inspectObject(env, agentID, call.Args)
	case ToolTryPassword:
		return x.tryPassword(env, agentID, call.Args)
	case ToolSendPublic:
		return x.sendPublic(env, agentID, call.Args)
	case ToolSendPrivate:
		return x.sendPrivate(env, agentID, call.Args)
	case ToolUpdateReputation:
		return x.updateReputation(env, agentID, call.Args)
	}
	return Result{
		Tool:    call.Name,
		Code:    CodeUnknownTool,
		Text:    fmt.Sprintf("There is no tool named '%s'.", call.Name),
		IsError: true,
	}
}

func (x *Executor) inspectObject(env *state.EnvState, agentID string, raw json.RawMessage) Result {
	var args struct {
		ObjectID string `json:"object_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return invalidArgs(ToolInspectObject, err)
	}

	text, err := env.Room.Inspect(args.ObjectID)
	if err != nil {
		return Result{Tool: ToolInspectObject, Code: roomCode(err), Text: text, IsError: true}
	}
	env.Agents[agentID].RecordObservation(args.ObjectID, env.Public.Timestep, text)
	return Result{Tool: ToolInspectObject, Text: text}
}

func (x *Executor) tryPassword(env *state.EnvState, agentID string, raw json.RawMessage) Result {
	var args struct {
		ObjectID string `json:"object_id"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return invalidArgs(ToolTryPassword, err)
	}

	outcome, err := env.Room.Attempt(args.ObjectID, args.Password)
	if err != nil {
		return Result{Tool: ToolTryPassword, Code: roomCode(err), Text: outcome.Text, IsError: true}
	}

	obj, _ := env.Room.Object(args.ObjectID)
	now := time.Now().UTC()
	if outcome.Wrong {
		env.WrongPasswordAttempts++
		env.AppendEvent(domain.RoomEvent{
			Timestep: env.Public.Timestep,
			AgentID:  agentID,
			Kind:     domain.RoomEventWrongPassword,
			ObjectID: args.ObjectID,
			Detail: fmt.Sprintf("Wrong password attempt by %s on %s (%s). Total wrong attempts: %d",
				env.DisplayName(agentID), obj.Name, args.ObjectID, env.WrongPasswordAttempts),
			CreatedAt: now,
		})
		return Result{Tool: ToolTryPassword, Text: outcome.Text}
	}
	if outcome.Opened {
		detail := fmt.Sprintf("'%s' opened!", obj.Name)
		if len(outcome.RevealedNames) > 0 {
			detail += " Revealed: " + strings.Join(outcome.RevealedNames, ", ")
		}
		env.AppendEvent(domain.RoomEvent{
			Timestep:  env.Public.Timestep,
			AgentID:   agentID,
			Kind:      domain.RoomEventLockOpened,
			ObjectID:  args.ObjectID,
			Detail:    detail,
			CreatedAt: now,
		})
	}
	if outcome.Escaped {
		env.AppendEvent(domain.RoomEvent{
			Timestep:  env.Public.Timestep,
			AgentID:   agentID,
			Kind:      domain.RoomEventEscape,
			ObjectID:  args.ObjectID,
			Detail:    "ESCAPE SUCCESSFUL! The team has escaped!",
			CreatedAt: now,
		})
	}
	return Result{Tool: ToolTryPassword, Text: outcome.Text}
}

func (x *Executor) sendPublic(env *state.EnvState, agentID string, raw json.RawMessage) Result {
	var args struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return invalidArgs(ToolSendPublic, err)
	}

	env.Public.Chat = append(env.Public.Chat, state.PublicMessage{
		SenderID: agentID,
		Text:     args.Message,
		Timestep: env.Public.Timestep,
	})
	return Result{Tool: ToolSendPublic, Text: "Message posted to public chat."}
}

func (x *Executor) sendPrivate(env *state.EnvState, agentID string, raw json.RawMessage) Result {
	var args struct {
		Recipients []string `json:"recipients"`
		Message    string   `json:"message"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return invalidArgs(ToolSendPrivate, err)
	}

	// Delivery is atomic: one unknown recipient fails the whole call.
	for _, recipient := range args.Recipients {
		if !env.IsAgent(recipient) {
			return Result{
				Tool:    ToolSendPrivate,
				Code:    CodeUnknownAgent,
				Text:    fmt.Sprintf("There is no agent with id '%s'.", recipient),
				IsError: true,
			}
		}
	}
	for _, recipient := range args.Recipients {
		env.Agents[recipient].Deliver(state.PrivateMessage{
			SenderID:    agentID,
			RecipientID: recipient,
			Text:        args.Message,
			Timestep:    env.Public.Timestep,
		})
	}
	return Result{Tool: ToolSendPrivate, Text: "Private message sent."}
}

func (x *Executor) updateReputation(env *state.EnvState, agentID string, raw json.RawMessage) Result {
	var args struct {
		Updates map[string]float64 `json:"updates"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return invalidArgs(ToolUpdateReputation, err)
	}

	reputation := env.Agents[agentID].Reputation
	for target, score := range args.Updates {
		if !env.IsAgent(target) {
			continue
		}
		reputation[target] = clamp(score)
	}
	return Result{Tool: ToolUpdateReputation, Text: "Reputation updated."}
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func invalidArgs(tool string, err error) Result {
	return Result{
		Tool:    tool,
		Code:    CodeInvalidArguments,
		Text:    fmt.Sprintf("Invalid arguments for %s: %v", tool, err),
		IsError: true,
	}
}

func roomCode(err error) string {
	switch {
	case errors.Is(err, room.ErrObjectNotFound):
		return CodeObjectNotFound
	case errors.Is(err, room.ErrObjectNotVisible):
		return CodeObjectNotVisible
	case errors.Is(err, room.ErrObjectNotLockable):
		return CodeObjectNotLockable
	}
	return CodeInvalidArguments
}
