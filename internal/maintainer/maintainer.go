// Package maintainer runs the Background Maintainer: a single
// cooperative periodic task that expires stale metadata, evicts idle
// live clients, and recovers under memory pressure (spec.md section
// 4.7).
package maintainer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/session"
)

// Maintainer owns the periodic sweep loop.
type Maintainer struct {
	mgr    *session.Manager
	cfg    *config.Config
	log    zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Maintainer bound to mgr. Call Start to launch its loop.
func New(mgr *session.Manager, cfg *config.Config, log zerolog.Logger) *Maintainer {
	return &Maintainer{
		mgr:    mgr,
		cfg:    cfg,
		log:    log.With().Str("component", "maintainer").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine. It runs until
// Stop is called.
func (m *Maintainer) Start() {
	go m.run()
}

// Stop cancels the loop and blocks until the in-progress sweep (if any)
// finishes.
func (m *Maintainer) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Maintainer) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.MaintainerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep runs one maintenance pass: TTL sweep, idle eviction, then
// pressure recovery, in that order (spec.md section 4.7).
func (m *Maintainer) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := m.mgr.SweepExpired(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("sweep_expired failed")
	} else if len(expired) > 0 {
		m.log.Info().Int("count", len(expired)).Msg("swept expired sessions")
	}

	if m.cfg.IdleSessionTimeout > 0 {
		evicted := m.mgr.EvictIdle(m.cfg.IdleSessionTimeout)
		if len(evicted) > 0 {
			m.log.Info().Int("count", len(evicted)).Msg("evicted idle sessions")
		}
	}

	data := m.mgr.PressureRecover(ctx)
	if len(data.EvictedSessionIDs) > 0 {
		m.log.Warn().
			Int("count", len(data.EvictedSessionIDs)).
			Float64("rss_before_mb", data.RSSBeforeMB).
			Float64("rss_after_mb", data.RSSAfterMB).
			Msg("pressure recovery evicted sessions")
	}
}
