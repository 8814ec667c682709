// Package agentclient wraps one Claude Code CLI subprocess per session,
// translating its stream-json stdio protocol into a typed event stream
// and providing cooperative, leak-free shutdown.
package agentclient

// EventKind tags which variant of Event is populated.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolUse          EventKind = "tool_use"
	EventToolResult       EventKind = "tool_result"
	EventAssistantMessage EventKind = "assistant_message"
	EventError            EventKind = "error"
	EventDone              EventKind = "done"
)

// ErrorEventKind narrows the Error event's Kind field to the values the
// agent subprocess is expected to emit.
type ErrorEventKind string

const (
	ErrorBudgetExceeded    ErrorEventKind = "budget_exceeded"
	ErrorTurnLimitExceeded ErrorEventKind = "turn_limit_exceeded"
	ErrorInternal          ErrorEventKind = "internal"
)

// ToolCallEvent mirrors types.ToolCall for the raw event stream, before
// the Stream Translator/accumulator groups it onto a turn.
type ToolCallEvent struct {
	Name   string `json:"name"`
	Input  any    `json:"input"`
	Output any    `json:"output,omitempty"`
}

// Event is one item in an Agent Client's event stream. Exactly one of
// the kind-specific fields is populated, matching Kind.
type Event struct {
	Kind EventKind

	// TextDelta
	Text string

	// ToolUse / ToolResult
	ToolUseID  string
	ToolName   string
	ToolInput  any
	ToolOutput any

	// AssistantMessage
	FinalText string
	ToolCalls []ToolCallEvent

	// Error
	ErrorKind   ErrorEventKind
	ErrorDetail string
}
