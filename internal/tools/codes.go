package tools

// Stable failure codes attached to rejected tool results. A rejected call
// never aborts the turn; the code plus text simply become the result.
const (
	CodeObjectNotFound     = "E_OBJECT_NOT_FOUND"
	CodeObjectNotVisible   = "E_OBJECT_NOT_VISIBLE"
	CodeObjectNotLockable  = "E_OBJECT_NOT_LOCKABLE"
	CodeCapabilityDisabled = "E_CAPABILITY_DISABLED"
	CodeUnknownAgent       = "E_UNKNOWN_AGENT"
	CodeToolAlreadyUsed    = "E_TOOL_ALREADY_USED_THIS_TURN"
	CodeUnknownTool        = "E_UNKNOWN_TOOL"
	CodeInvalidArguments   = "E_INVALID_ARGUMENTS"
)

var knownCodes = map[string]struct{}{
	CodeObjectNotFound:     {},
	CodeObjectNotVisible:   {},
	CodeObjectNotLockable:  {},
	CodeCapabilityDisabled: {},
	CodeUnknownAgent:       {},
	CodeToolAlreadyUsed:    {},
	CodeUnknownTool:        {},
	CodeInvalidArguments:   {},
}

// IsKnownCode reports whether code is empty (success) or one of the
// published failure codes.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
