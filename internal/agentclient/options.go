package agentclient

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agentbroker/broker/pkg/types"
)

// buildArgs translates AgentOptions and a resume decision into the CLI
// flags passed to the claude binary's stream-json mode.
func buildArgs(sessionID string, resumeToken string, opts types.AgentOptions, addDirs []string) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}

	args = append(args, "--permission-mode", string(opts.PermissionMode))

	for _, tool := range opts.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}

	for _, dir := range addDirs {
		args = append(args, "--add-dir", dir)
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}

	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}

	if len(opts.SettingSources) > 0 {
		names := make([]string, len(opts.SettingSources))
		for i, s := range opts.SettingSources {
			names[i] = string(s)
		}
		args = append(args, "--setting-sources", strings.Join(names, ","))
	}

	if len(opts.MCPServers) > 0 {
		if encoded, err := encodeMCPServers(opts.MCPServers); err == nil {
			args = append(args, "--mcp-config", encoded)
		}
	}

	for _, p := range opts.Plugins {
		args = append(args, "--plugin", pluginRef(p))
	}

	if resumeToken != "" {
		args = append(args, "--resume", resumeToken)
	} else {
		args = append(args, "--session-id", sessionID)
	}

	return args
}

// encodeMCPServers renders the external tool-server map as the inline
// JSON document --mcp-config expects: {"mcpServers": {...}}.
func encodeMCPServers(servers map[string]types.ToolServer) (string, error) {
	doc := map[string]any{"mcpServers": servers}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func pluginRef(p types.Plugin) string {
	if p.Source != "" {
		return fmt.Sprintf("%s@%s", p.Name, p.Source)
	}
	return p.Name
}

// buildEnv prepares the subprocess environment: upstream credentials
// plus whatever of the host's own environment the language runtime
// needs (PATH, HOME, and friends), since the CLI itself is a Node
// binary that needs a working runtime environment.
func buildEnv(apiKey, baseURL, authToken, model string) []string {
	env := os.Environ()
	if apiKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+apiKey)
	}
	if baseURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+baseURL)
	}
	if authToken != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+authToken)
	}
	if model != "" {
		env = append(env, "ANTHROPIC_MODEL="+model)
	}
	return env
}
