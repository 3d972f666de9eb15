package sim

import (
	"context"
	"fmt"

	"escape_bench/internal/domain"
	"escape_bench/internal/oracle"
	"escape_bench/internal/state"
	"escape_bench/internal/tools"
)

// Oracle decides one agent-turn from a read-only view of the episode.
// Implementations own their retry policy; the controller never retries.
type Oracle interface {
	Decide(ctx context.Context, view state.TurnView, defs []tools.Definition) (oracle.Decision, error)
}

// Controller sequences a single agent turn: one oracle decision, then
// the returned calls applied strictly in order.
type Controller struct {
	oracle Oracle
	exec   *tools.Executor
	defs   []tools.Definition
}

func NewController(o Oracle, set *tools.Set) *Controller {
	return &Controller{
		oracle: o,
		exec:   tools.NewExecutor(set),
		defs:   set.Definitions(),
	}
}

// RunTurn enforces at most one call per distinct tool name. A repeated
// tool is refused with its own result entry without aborting the rest.
func (c *Controller) RunTurn(ctx context.Context, env *state.EnvState, agentID string) (domain.TurnRecord, error) {
	view, err := env.ViewFor(agentID)
	if err != nil {
		return domain.TurnRecord{}, err
	}
	decision, err := c.oracle.Decide(ctx, view, c.defs)
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("decide turn for %s: %w", agentID, err)
	}

	record := domain.TurnRecord{
		AgentID:  agentID,
		Timestep: view.Timestep,
		Summary:  decision.Summary,
	}
	used := make(map[string]bool, len(decision.Calls))
	for _, call := range decision.Calls {
		if used[call.Name] {
			record.Calls = append(record.Calls, domain.ToolCallRecord{
				Tool:    call.Name,
				Args:    call.Args,
				Code:    tools.CodeToolAlreadyUsed,
				Result:  fmt.Sprintf("The tool '%s' was already used this timestep.", call.Name),
				IsError: true,
			})
			continue
		}
		used[call.Name] = true
		res := c.exec.Execute(env, agentID, call)
		record.Calls = append(record.Calls, domain.ToolCallRecord{
			Tool:    res.Tool,
			Args:    call.Args,
			Code:    res.Code,
			Result:  res.Text,
			IsError: res.IsError,
		})
	}
	return record, nil
}
