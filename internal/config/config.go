// Package config loads the process-wide configuration snapshot: the
// first available source wins per key, in the order environment
// variables, then YAML file, then built-in defaults (spec.md section 6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentbroker/broker/pkg/types"
)

// StorageBackend selects the Metadata Store implementation.
type StorageBackend string

const (
	StorageMemory     StorageBackend = "memory"
	StorageSQLite     StorageBackend = "sqlite"
	StoragePostgreSQL StorageBackend = "postgresql"
)

// PostgresConfig holds connection parameters for the external SQL backend.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Config is the immutable, process-wide configuration snapshot injected
// into the Session Manager at startup.
type Config struct {
	Port          int    `yaml:"port"`
	BaseDir       string `yaml:"base_dir"`
	AutoCreateDir bool   `yaml:"auto_create_dir"`

	Storage    StorageBackend `yaml:"storage"`
	TTL        time.Duration  `yaml:"ttl"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`

	MaxSessions           int           `yaml:"max_sessions"`
	MaxSessionsPerUser    int           `yaml:"max_sessions_per_user"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	MemoryLimitMB         int           `yaml:"memory_limit_mb"`
	IdleSessionTimeout    time.Duration `yaml:"idle_session_timeout"`

	// TurnTimeout bounds how long a chat turn waits for the agent
	// event stream to emit Done before it is treated as AgentFailure.
	// Resolves spec.md section 9's first open question.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// MaintainerInterval is how often the Background Maintainer runs.
	MaintainerInterval time.Duration `yaml:"maintainer_interval"`

	// ShutdownGrace bounds how long in-flight Agent Clients get to close
	// cooperatively during process shutdown or per-client eviction.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	DefaultAgentOptions types.AgentOptions `yaml:"default_agent_options"`

	// AnthropicAPIKey, or the BaseURL+AuthToken pair, is passed into each
	// spawned subprocess's environment. Never logged.
	AnthropicAPIKey    string `yaml:"-"`
	AnthropicBaseURL   string `yaml:"-"`
	AnthropicAuthToken string `yaml:"-"`
	AnthropicModel     string `yaml:"-"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Port:                  8080,
		BaseDir:               "/data/claude-users",
		AutoCreateDir:         true,
		Storage:               StorageMemory,
		TTL:                   0,
		SQLitePath:            "broker.db",
		MaxSessions:           256,
		MaxSessionsPerUser:    8,
		MaxConcurrentRequests: 32,
		MemoryLimitMB:         4096,
		IdleSessionTimeout:    30 * time.Minute,
		TurnTimeout:           10 * time.Minute,
		MaintainerInterval:    60 * time.Second,
		ShutdownGrace:         5 * time.Second,
		DefaultAgentOptions: types.AgentOptions{
			PermissionMode: types.PermissionDefault,
			SettingSources: []types.SettingSource{
				types.SettingSourceUser,
				types.SettingSourceProject,
				types.SettingSourceLocal,
			},
			MaxTurns: 0,
		},
	}
}

// Load builds the configuration snapshot: defaults, then a YAML file (if
// path is non-empty and exists), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Storage == StorageSQLite && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("config: storage=sqlite requires sqlite_path")
	}
	if cfg.Storage == StoragePostgreSQL && cfg.Postgres.Database == "" {
		return nil, fmt.Errorf("config: storage=postgresql requires postgres.database")
	}

	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever defaults/YAML already populated. Env always wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("BROKER_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("BROKER_AUTO_CREATE_DIR"); v != "" {
		cfg.AutoCreateDir = v == "true" || v == "1"
	}
	if v := os.Getenv("BROKER_STORAGE"); v != "" {
		cfg.Storage = StorageBackend(v)
	}
	if v := os.Getenv("BROKER_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BROKER_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("BROKER_PG_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BROKER_PG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = n
		}
	}
	if v := os.Getenv("BROKER_PG_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BROKER_PG_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BROKER_PG_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BROKER_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("BROKER_MAX_SESSIONS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessionsPerUser = n
		}
	}
	if v := os.Getenv("BROKER_MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentRequests = n
		}
	}
	if v := os.Getenv("BROKER_MEMORY_LIMIT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemoryLimitMB = n
		}
	}
	if v := os.Getenv("BROKER_IDLE_SESSION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleSessionTimeout = time.Duration(n) * time.Second
		}
	}

	// Agent upstream environment, per spec.md section 6.
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.AnthropicBaseURL = os.Getenv("ANTHROPIC_BASE_URL")
	cfg.AnthropicAuthToken = os.Getenv("ANTHROPIC_AUTH_TOKEN")
	cfg.AnthropicModel = os.Getenv("ANTHROPIC_MODEL")
}

// Validate checks invariants Load itself cannot reject without knowing
// the deployment is about to actually spawn subprocesses.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" && (c.AnthropicBaseURL == "" || c.AnthropicAuthToken == "") {
		return fmt.Errorf("config: ANTHROPIC_API_KEY, or ANTHROPIC_BASE_URL+ANTHROPIC_AUTH_TOKEN, must be set")
	}
	if c.MaxSessions <= 0 || c.MaxSessionsPerUser <= 0 || c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: max_sessions, max_sessions_per_user, and max_concurrent_requests must be positive")
	}
	return nil
}
