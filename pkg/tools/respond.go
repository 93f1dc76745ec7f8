package tools

// RespondToolName is the sentinel tool the routing model calls to signal it
// has gathered everything it needs. It has no side effects.
const RespondToolName = "respond"

// Respond returns the sentinel tool definition appended to every routing
// request.
func Respond() Tool {
	return Tool{
		Name: RespondToolName,
		Description: "Call this tool when you have gathered everything needed to answer the user. " +
			"It must accompany at least one successful tool call in this conversation turn.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// IsRespond reports whether a call targets the respond sentinel.
func IsRespond(call ToolCall) bool {
	return call.Name == RespondToolName || call.Function.Name == RespondToolName
}
