package stream

import (
	"testing"
	"time"

	"github.com/agentbroker/broker/internal/agentclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []agentclient.Event {
	return []agentclient.Event{
		{Kind: agentclient.EventTextDelta, Text: "Hello, "},
		{Kind: agentclient.EventToolUse, ToolUseID: "tu_1", ToolName: "Read", ToolInput: map[string]any{"path": "a.txt"}},
		{Kind: agentclient.EventToolResult, ToolUseID: "tu_1", ToolName: "Read", ToolOutput: "file contents"},
		{Kind: agentclient.EventTextDelta, Text: "world."},
		{Kind: agentclient.EventAssistantMessage, FinalText: "Hello, world."},
		{Kind: agentclient.EventDone},
	}
}

func TestTranslateMapsEachEventKind(t *testing.T) {
	for _, ev := range sampleEvents() {
		rec, ok := Translate(ev)
		if ev.Kind == agentclient.EventAssistantMessage {
			assert.False(t, ok, "AssistantMessage has no SSE record")
			continue
		}
		require.True(t, ok)
		assert.NotEmpty(t, rec.Type)
	}
}

func TestTranslateTextDelta(t *testing.T) {
	rec, ok := Translate(agentclient.Event{Kind: agentclient.EventTextDelta, Text: "hi"})
	require.True(t, ok)
	assert.Equal(t, "text_delta", rec.Type)
	assert.Equal(t, "hi", rec.Text)
}

func TestTranslateDoneIsTerminal(t *testing.T) {
	rec, ok := Translate(agentclient.Event{Kind: agentclient.EventDone})
	require.True(t, ok)
	assert.Equal(t, "done", rec.Type)
}

func TestAccumulatorConcatenatesTextInOrder(t *testing.T) {
	acc := NewAccumulator("s1")
	for _, ev := range sampleEvents() {
		acc.Feed(ev)
	}
	result := acc.Result(time.Now())
	assert.Equal(t, "Hello, world.", result.Text)
}

func TestAccumulatorFillsToolOutputOnResult(t *testing.T) {
	acc := NewAccumulator("s1")
	for _, ev := range sampleEvents() {
		acc.Feed(ev)
	}
	result := acc.Result(time.Now())
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "Read", result.ToolCalls[0].Name)
	assert.Equal(t, "file contents", result.ToolCalls[0].Output)
}

func TestAccumulatorToolCallWithoutResultLeavesOutputNil(t *testing.T) {
	acc := NewAccumulator("s1")
	acc.Feed(agentclient.Event{Kind: agentclient.EventToolUse, ToolName: "Bash", ToolInput: "ls"})
	result := acc.Result(time.Now())
	require.Len(t, result.ToolCalls, 1)
	assert.Nil(t, result.ToolCalls[0].Output)
}

// TestAccumulatorCorrelatesConcurrentToolCallsByID reproduces a turn
// where the assistant issues two tool calls before either result comes
// back, in reverse order — a routine pattern the single "last pending
// slot" implementation used to clobber.
func TestAccumulatorCorrelatesConcurrentToolCallsByID(t *testing.T) {
	acc := NewAccumulator("s1")
	acc.Feed(agentclient.Event{Kind: agentclient.EventToolUse, ToolUseID: "tu_1", ToolName: "Read", ToolInput: "a.txt"})
	acc.Feed(agentclient.Event{Kind: agentclient.EventToolUse, ToolUseID: "tu_2", ToolName: "Read", ToolInput: "b.txt"})
	acc.Feed(agentclient.Event{Kind: agentclient.EventToolResult, ToolUseID: "tu_2", ToolOutput: "b contents"})
	acc.Feed(agentclient.Event{Kind: agentclient.EventToolResult, ToolUseID: "tu_1", ToolOutput: "a contents"})

	result := acc.Result(time.Now())
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, "a contents", result.ToolCalls[0].Output)
	assert.Equal(t, "b contents", result.ToolCalls[1].Output)
}

func TestTranslateToolResultCarriesToolName(t *testing.T) {
	rec, ok := Translate(agentclient.Event{Kind: agentclient.EventToolResult, ToolUseID: "tu_1", ToolName: "Read", ToolOutput: "contents"})
	require.True(t, ok)
	assert.Equal(t, "tool_result", rec.Type)
	assert.Equal(t, "Read", rec.ToolName)
}

// TestAccumulatorAgreesWithTranslatedStream checks the property that the
// accumulator's text equals the concatenation of every translated
// text_delta record, and its tool_calls list matches translated
// tool_use/tool_result pairing — the two views of one event stream
// must never disagree.
func TestAccumulatorAgreesWithTranslatedStream(t *testing.T) {
	events := sampleEvents()

	var textFromRecords string
	var toolUseCount, toolResultCount int
	for _, ev := range events {
		rec, ok := Translate(ev)
		if !ok {
			continue
		}
		switch rec.Type {
		case "text_delta":
			textFromRecords += rec.Text
		case "tool_use":
			toolUseCount++
		case "tool_result":
			toolResultCount++
		}
	}

	acc := NewAccumulator("s1")
	for _, ev := range events {
		acc.Feed(ev)
	}
	result := acc.Result(time.Now())

	assert.Equal(t, textFromRecords, result.Text)
	assert.Equal(t, toolUseCount, len(result.ToolCalls))
	assert.Equal(t, toolResultCount, 1)
}
