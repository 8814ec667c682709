package server

import (
	"bufio"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentbroker/broker/internal/agentclient"
	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/session"
	"github.com/agentbroker/broker/internal/storage"
)

// TestMain re-execs this test binary as a stand-in claude CLI, mirroring
// internal/session's helper-process pattern: the handlers under test
// spawn a real Session Manager, which in turn spawns real (if minimal)
// agent subprocesses through agentclient.Start.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fmt.Println(`{"type":"assistant","message":{"content":[{"type":"text","text":"hi there"}]}}`)
		fmt.Println(`{"type":"result","is_error":false}`)
	}
	os.Exit(0)
}

func useHelperCLI(t *testing.T) {
	t.Helper()
	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	oldPath := agentclient.CLIPath
	agentclient.CLIPath = self
	t.Cleanup(func() {
		os.Unsetenv("GO_WANT_HELPER_PROCESS")
		agentclient.CLIPath = oldPath
	})
}

// newTestServer builds a Server backed by a real Session Manager (memory
// store, helper-process CLI) for handler-level tests.
func newTestServer(t *testing.T) *Server {
	useHelperCLI(t)

	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.AutoCreateDir = true
	cfg.AnthropicAPIKey = "sk-ant-test"
	cfg.MaxSessions = 10
	cfg.MaxSessionsPerUser = 5
	cfg.MaxConcurrentRequests = 4
	cfg.MemoryLimitMB = 1 << 20
	cfg.TurnTimeout = 5 * time.Second
	cfg.ShutdownGrace = time.Second

	store := storage.NewMemoryStore()
	mgr := session.NewManager(cfg, store, zerolog.Nop())

	return New(DefaultConfig(), mgr, config.StorageMemory, zerolog.Nop())
}
