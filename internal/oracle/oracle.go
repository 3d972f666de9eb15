package oracle

import (
	"escape_bench/internal/tools"
)

// Decision is everything an oracle returns for one agent-turn: the tool
// calls to execute, in order, and a short summary of the turn.
type Decision struct {
	Calls   []tools.Call
	Summary string
}
