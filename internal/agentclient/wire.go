package agentclient

import "encoding/json"

// wireInput is one line written to the subprocess's stdin in
// --input-format stream-json mode: a single user turn.
type wireInput struct {
	Type    string        `json:"type"`
	Message wireInputBody `json:"message"`
}

type wireInputBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newWireInput(prompt string) wireInput {
	return wireInput{
		Type:    "user",
		Message: wireInputBody{Role: "user", Content: prompt},
	}
}

// wireOutput is one line read from the subprocess's stdout in
// --output-format stream-json mode. Type selects which of the
// type-specific fields are populated; unrecognized types are ignored
// by the reader rather than treated as fatal, since the CLI's wire
// format carries system/init chatter the broker does not surface.
type wireOutput struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// wireAssistantMessage is the shape of wireOutput.Message when
// Type == "assistant": a list of content blocks, each either text or a
// tool_use invocation.
type wireAssistantMessage struct {
	Content []wireContentBlock `json:"content"`
}

type wireContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// wireToolResultMessage is the shape of wireOutput.Message when
// Type == "user" and it carries a tool_result block (the CLI echoes
// tool results back through the same channel as user turns).
type wireToolResultMessage struct {
	Content []wireToolResultBlock `json:"content"`
}

type wireToolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}
