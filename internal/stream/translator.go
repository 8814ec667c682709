// Package stream translates an Agent Client's event stream into the
// wire-level records the HTTP surface sends over SSE, and accumulates
// the same stream into a single synchronous ChatResponse.
package stream

import (
	"time"

	"github.com/agentbroker/broker/internal/agentclient"
	"github.com/agentbroker/broker/pkg/types"
)

// Record is one SSE event payload, marshaled directly to the `data:`
// line's JSON body.
type Record struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  any    `json:"tool_input,omitempty"`
	ToolOutput any    `json:"tool_output,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Translate maps one agent Event onto its Record, or reports ok=false
// for an event kind that carries no wire representation: AssistantMessage
// is not forwarded (see Accumulator, which builds the final response from
// the other events).
func Translate(ev agentclient.Event) (Record, bool) {
	switch ev.Kind {
	case agentclient.EventTextDelta:
		return Record{Type: "text_delta", Text: ev.Text}, true
	case agentclient.EventToolUse:
		return Record{Type: "tool_use", ToolName: ev.ToolName, ToolInput: ev.ToolInput}, true
	case agentclient.EventToolResult:
		return Record{Type: "tool_result", ToolName: ev.ToolName, ToolOutput: ev.ToolOutput}, true
	case agentclient.EventError:
		return Record{Type: "error", Kind: string(ev.ErrorKind), Detail: ev.ErrorDetail}, true
	case agentclient.EventDone:
		return Record{Type: "done"}, true
	default:
		return Record{}, false
	}
}

// Accumulator consumes the same event stream as Translate and builds
// one ChatResponse: text is the concatenation of every TextDelta, in
// emission order; tool_calls records invocation and, once the matching
// ToolResult arrives, its output.
type Accumulator struct {
	sessionID string
	text      string
	toolCalls []types.ToolCall
	pending   map[string]int // tool_use id -> index into toolCalls awaiting its ToolResult
}

// NewAccumulator returns an empty accumulator for sessionID.
func NewAccumulator(sessionID string) *Accumulator {
	return &Accumulator{sessionID: sessionID, pending: make(map[string]int)}
}

// Feed applies one event to the accumulator. ToolUse/ToolResult pairs
// are correlated by the wire protocol's tool-use id rather than
// position, so multiple tool calls in flight within the same turn each
// get their own Output filled in regardless of arrival order.
func (a *Accumulator) Feed(ev agentclient.Event) {
	switch ev.Kind {
	case agentclient.EventTextDelta:
		a.text += ev.Text
	case agentclient.EventToolUse:
		a.toolCalls = append(a.toolCalls, types.ToolCall{Name: ev.ToolName, Input: ev.ToolInput})
		if ev.ToolUseID != "" {
			a.pending[ev.ToolUseID] = len(a.toolCalls) - 1
		}
	case agentclient.EventToolResult:
		if idx, ok := a.pending[ev.ToolUseID]; ok && idx < len(a.toolCalls) {
			a.toolCalls[idx].Output = ev.ToolOutput
			delete(a.pending, ev.ToolUseID)
		}
	}
}

// Result returns the accumulated ChatResponse, stamped with now.
func (a *Accumulator) Result(now time.Time) *types.ChatResponse {
	toolCalls := a.toolCalls
	if toolCalls == nil {
		toolCalls = []types.ToolCall{}
	}
	return &types.ChatResponse{
		SessionID: a.sessionID,
		Text:      a.text,
		ToolCalls: toolCalls,
		Timestamp: now,
	}
}
