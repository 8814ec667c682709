package types

// PermissionMode controls how the agent subprocess handles tool use that
// would normally require interactive confirmation.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionBypassAll   PermissionMode = "bypassPermissions"
	PermissionPlan        PermissionMode = "plan"
)

// SettingSource names a layer the agent subprocess loads settings from.
// Precedence when sources conflict on the same capability: local wins
// over project, project wins over user (most specific wins) — see
// SPEC_FULL.md section 12.
type SettingSource string

const (
	SettingSourceUser    SettingSource = "user"
	SettingSourceProject SettingSource = "project"
	SettingSourceLocal   SettingSource = "local"
)

// ToolServerTransport tags which variant a ToolServer descriptor carries.
type ToolServerTransport string

const (
	ToolServerStdio ToolServerTransport = "stdio"
	ToolServerSSE   ToolServerTransport = "sse"
)

// ToolServer is a tagged-variant descriptor for one external tool-server
// the agent subprocess may connect to. Exactly one of the stdio or SSE
// fields is populated, matching Transport.
type ToolServer struct {
	Transport ToolServerTransport `json:"transport"`

	// stdio variant
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// sse variant
	URL string `json:"url,omitempty"`
}

// Plugin names a plugin the agent subprocess should load.
type Plugin struct {
	Name   string         `json:"name"`
	Source string         `json:"source,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// AgentOptions configures one Agent Client's subprocess. It is built from
// the process-wide default options in Config, optionally narrowed per
// session, and handed to the subprocess as JSON-flavored CLI flags/env.
type AgentOptions struct {
	SystemPrompt   string                `json:"system_prompt,omitempty"`
	PermissionMode PermissionMode        `json:"permission_mode"`
	AllowedTools   []string              `json:"allowed_tools,omitempty"`
	AddDirs        []string              `json:"add_dirs,omitempty"`
	Model          string                `json:"model,omitempty"`
	MaxTurns       int                   `json:"max_turns,omitempty"`
	MaxBudgetUSD   float64               `json:"max_budget_usd,omitempty"`
	MCPServers     map[string]ToolServer `json:"mcp_servers,omitempty"`
	SettingSources []SettingSource       `json:"setting_sources,omitempty"`
	Plugins        []Plugin              `json:"plugins,omitempty"`

	// ResumeToken is not read when building the subprocess flags; the
	// token that makes the subprocess restore a prior conversation is
	// passed to agentclient.Start as its own resumeToken argument.
	ResumeToken string `json:"-"`
}
