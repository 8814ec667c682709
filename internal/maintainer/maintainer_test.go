package maintainer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/session"
	"github.com/agentbroker/broker/internal/storage"
	"github.com/agentbroker/broker/pkg/types"
)

func TestSweepRemovesExpiredMetadata(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.AutoCreateDir = true
	cfg.AnthropicAPIKey = "sk-ant-test"
	cfg.TTL = time.Millisecond
	cfg.IdleSessionTimeout = time.Hour
	cfg.MemoryLimitMB = 1 << 20
	cfg.MaintainerInterval = 10 * time.Millisecond

	store := storage.NewMemoryStore()
	mgr := session.NewManager(cfg, store, zerolog.Nop())

	ctx := context.Background()
	stale := &types.Session{
		SessionID:    "stale-1",
		UserID:       "alice",
		Cwd:          cfg.BaseDir,
		CreatedAt:    time.Now().Add(-time.Hour),
		LastActiveAt: time.Now().Add(-time.Hour),
		Status:       types.StatusActive,
	}
	require.NoError(t, store.Save(ctx, stale))

	m := New(mgr, cfg, zerolog.Nop())
	m.sweep()

	_, err := mgr.Get(ctx, "stale-1")
	assert.Error(t, err)
}

func TestStartAndStopDoesNotPanic(t *testing.T) {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.AutoCreateDir = true
	cfg.AnthropicAPIKey = "sk-ant-test"
	cfg.MaintainerInterval = 5 * time.Millisecond
	cfg.MemoryLimitMB = 1 << 20

	store := storage.NewMemoryStore()
	mgr := session.NewManager(cfg, store, zerolog.Nop())

	m := New(mgr, cfg, zerolog.Nop())
	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()
}
