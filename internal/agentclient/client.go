package agentclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentbroker/broker/internal/apierr"
	"github.com/agentbroker/broker/pkg/types"
)

// CLIPath is the claude binary the subprocess wrapper spawns. It is a
// package variable rather than a constant so tests can point it at a
// stand-in binary.
var CLIPath = "claude"

// Credentials carries the upstream auth/model environment every
// subprocess is started with. Never logged.
type Credentials struct {
	APIKey    string
	BaseURL   string
	AuthToken string
	Model     string
}

// Client wraps one running agent subprocess for the duration of a
// session's lifetime.
type Client struct {
	sessionID string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Scanner

	mu       sync.Mutex
	closed   bool
	lastUsed atomic.Int64 // unix nanos

	toolMu    sync.Mutex
	toolNames map[string]string // tool_use id -> tool name, until its result arrives

	log zerolog.Logger
}

// Start spawns the subprocess for one session: working directory cwd,
// credentials, and the effective AgentOptions (already narrowed and
// add_dirs validated by the caller via pathguard). resumeToken, if
// non-empty, asks the subprocess to resume its own on-disk history
// instead of starting fresh.
func Start(ctx context.Context, sessionID, cwd string, creds Credentials, opts types.AgentOptions, resumeToken string, addDirs []string, log zerolog.Logger) (*Client, error) {
	args := buildArgs(sessionID, resumeToken, opts, addDirs)
	env := buildEnv(creds.APIKey, creds.BaseURL, creds.AuthToken, creds.Model)

	cmd := exec.CommandContext(ctx, CLIPath, args...)
	cmd.Dir = cwd
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agentclient: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agentclient: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("agentclient: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apierr.Wrap(apierr.KindFatal, "agentclient: starting subprocess", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	c := &Client{
		sessionID: sessionID,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    scanner,
		toolNames: make(map[string]string),
		log:       log.With().Str("session_id", sessionID).Logger(),
	}
	c.lastUsed.Store(time.Now().UnixNano())

	go c.drainStderr(stderr)

	return c, nil
}

func (c *Client) drainStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.log.Debug().Str("stderr", scanner.Text()).Msg("agent subprocess stderr")
	}
}

// LastUsed returns the monotonic stamp of the most recent Ask call.
func (c *Client) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

// RSSMB returns a coarse RSS estimate covering the subprocess and any
// descendants it has spawned.
func (c *Client) RSSMB(ctx context.Context) float64 {
	if c.cmd.Process == nil {
		return 0
	}
	return estimateRSSMB(ctx, int32(c.cmd.Process.Pid))
}

// Ask sends prompt as one user turn and returns a channel of Events
// terminated by an EventDone (or closed early if the stream ends
// without one — the caller applies its own per-turn timeout).
func (c *Client) Ask(ctx context.Context, prompt string) (<-chan Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apierr.New(apierr.KindFatal, "agentclient: ask on closed client")
	}
	c.mu.Unlock()

	c.lastUsed.Store(time.Now().UnixNano())

	line, err := json.Marshal(newWireInput(prompt))
	if err != nil {
		return nil, fmt.Errorf("agentclient: encoding prompt: %w", err)
	}
	line = append(line, '\n')
	if _, err := c.stdin.Write(line); err != nil {
		return nil, apierr.Wrap(apierr.KindStorageUnavailable, "agentclient: writing to subprocess stdin", err)
	}

	events := make(chan Event, 16)
	go c.readTurn(ctx, events)
	return events, nil
}

// readTurn pumps stdout lines, translating each into zero or more
// Events, until it sees a "result" line (mapped to EventDone), stdout
// closes, or ctx is canceled (in which case it first emits an internal
// Error event).
func (c *Client) readTurn(ctx context.Context, events chan<- Event) {
	defer close(events)

	for c.stdout.Scan() {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventError, ErrorKind: ErrorInternal, ErrorDetail: "turn timed out before the agent finished"}
			return
		default:
		}

		line := c.stdout.Bytes()
		if len(line) == 0 {
			continue
		}

		var out wireOutput
		if err := json.Unmarshal(line, &out); err != nil {
			c.log.Debug().Err(err).Msg("agent subprocess emitted a non-JSON line")
			continue
		}

		done := c.translate(out, events)
		if done {
			return
		}
	}
}

// translate maps one wireOutput line onto zero or more Events,
// returning true once the terminal "result" line has been emitted.
func (c *Client) translate(out wireOutput, events chan<- Event) bool {
	switch out.Type {
	case "assistant":
		var msg wireAssistantMessage
		if err := json.Unmarshal(out.Message, &msg); err != nil {
			return false
		}
		var toolCalls []ToolCallEvent
		var finalText string
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				finalText += block.Text
				events <- Event{Kind: EventTextDelta, Text: block.Text}
			case "tool_use":
				var input any
				_ = json.Unmarshal(block.Input, &input)
				if block.ID != "" {
					c.toolMu.Lock()
					c.toolNames[block.ID] = block.Name
					c.toolMu.Unlock()
				}
				events <- Event{Kind: EventToolUse, ToolUseID: block.ID, ToolName: block.Name, ToolInput: input}
				toolCalls = append(toolCalls, ToolCallEvent{Name: block.Name, Input: input})
			}
		}
		if finalText != "" || len(toolCalls) > 0 {
			events <- Event{Kind: EventAssistantMessage, FinalText: finalText, ToolCalls: toolCalls}
		}
		return false

	case "user":
		var msg wireToolResultMessage
		if err := json.Unmarshal(out.Message, &msg); err != nil {
			return false
		}
		for _, block := range msg.Content {
			if block.Type != "tool_result" {
				continue
			}
			var output any
			_ = json.Unmarshal(block.Content, &output)
			c.toolMu.Lock()
			name := c.toolNames[block.ToolUseID]
			delete(c.toolNames, block.ToolUseID)
			c.toolMu.Unlock()
			events <- Event{Kind: EventToolResult, ToolUseID: block.ToolUseID, ToolName: name, ToolOutput: output}
		}
		return false

	case "result":
		if out.IsError && out.Error != nil {
			events <- Event{Kind: EventError, ErrorKind: ErrorEventKind(out.Error.Kind), ErrorDetail: out.Error.Detail}
		}
		events <- Event{Kind: EventDone}
		return true

	default:
		return false
	}
}

// Close signals the subprocess, waits a bounded grace period for it to
// exit cooperatively, then escalates to SIGKILL. Safe to call more
// than once.
func (c *Client) Close(grace time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stdin.Close()

	if c.cmd.Process == nil {
		return nil
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return c.cmd.Process.Kill()
	}

	done := make(chan struct{})
	go func() {
		c.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		c.log.Warn().Msg("agent subprocess did not exit gracefully, sending SIGKILL")
		return c.cmd.Process.Kill()
	}
}

// SessionID returns the id this client was started for.
func (c *Client) SessionID() string { return c.sessionID }
