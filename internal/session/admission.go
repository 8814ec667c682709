package session

import (
	"context"
	"sort"
	"time"

	"github.com/agentbroker/broker/internal/apierr"
	"github.com/agentbroker/broker/internal/event"
)

// admit runs the three-condition admission check from spec.md section
// 4.4, attempting pressure recovery before rejecting on the
// max_sessions or memory_limit_mb conditions. On success, a slot is
// reserved under userID; the caller must either install the client
// (moving the reservation into a live entry) or call unreserve on
// every failure path afterward.
func (m *Manager) admit(ctx context.Context, userID string) error {
	if err := m.reserve(userID); err != nil {
		if apierr.Code(err) != string(apierr.KindOverloaded) {
			return err
		}
		m.PressureRecover(ctx)
		if err := m.reserve(userID); err != nil {
			return err
		}
	}

	if rss := m.currentRSS(ctx); rss > float64(m.cfg.MemoryLimitMB) {
		m.PressureRecover(ctx)
		if rss := m.currentRSS(ctx); rss > float64(m.cfg.MemoryLimitMB) {
			m.unreserve(userID)
			return apierr.New(apierr.KindOverloaded, "memory_limit_mb exceeded")
		}
	}

	return nil
}

// reserve checks max_sessions and max_sessions_per_user against the
// live count plus any outstanding reservations, and reserves a slot on
// success. Reserving (rather than installing directly) lets the caller
// release clientsLock before the slow subprocess spawn, per spec.md
// section 5's "acquire lock only to check admission and reserve a
// slot; release; spawn; reacquire lock briefly to install".
func (m *Manager) reserve(userID string) error {
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()

	if len(m.clients)+m.reservedTotal >= m.cfg.MaxSessions {
		return apierr.New(apierr.KindOverloaded, "max_sessions reached")
	}
	if m.perUserCounts[userID]+m.reservedPerUser[userID] >= m.cfg.MaxSessionsPerUser {
		return apierr.New(apierr.KindQuotaExceeded, "max_sessions_per_user reached")
	}

	m.reservedTotal++
	m.reservedPerUser[userID]++
	return nil
}

// unreserve releases a reservation taken by reserve that was never
// committed via install/resume (the spawn or the Metadata Store save
// failed).
func (m *Manager) unreserve(userID string) {
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()
	m.reservedTotal--
	m.reservedPerUser[userID]--
	if m.reservedPerUser[userID] <= 0 {
		delete(m.reservedPerUser, userID)
	}
}

// liveSnapshot copies the current live set under clientsLock so RSS
// sampling and LRU sorting never hold the lock across subprocess I/O.
func (m *Manager) liveSnapshot() map[string]*liveClient {
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()
	snap := make(map[string]*liveClient, len(m.clients))
	for id, lc := range m.clients {
		snap[id] = lc
	}
	return snap
}

// currentRSS sums the RSS estimate across every live Agent Client.
func (m *Manager) currentRSS(ctx context.Context) float64 {
	var total float64
	for _, lc := range m.liveSnapshot() {
		total += lc.client.RSSMB(ctx)
	}
	return total
}

// PressureRecover evicts clients in ascending last_used order until
// estimated fleet RSS falls under memory_limit_mb or the fleet is
// empty. It is called from admission (when about to reject on
// max_sessions or memory_limit_mb) and from the Background Maintainer's
// periodic sweep.
func (m *Manager) PressureRecover(ctx context.Context) event.PressureRecoveryData {
	snap := m.liveSnapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}

	before := m.currentRSS(ctx)
	limit := float64(m.cfg.MemoryLimitMB)
	if before <= limit || len(ids) == 0 {
		return event.PressureRecoveryData{RSSBeforeMB: before, RSSAfterMB: before}
	}

	sort.Slice(ids, func(i, j int) bool {
		return snap[ids[i]].client.LastUsed().Before(snap[ids[j]].client.LastUsed())
	})

	current := before
	var evicted []string
	for _, id := range ids {
		if current <= limit {
			break
		}
		rss := snap[id].client.RSSMB(ctx)
		if m.tryEvict(id) {
			current -= rss
			evicted = append(evicted, id)
			publishEvicted(id, "pressure_recovery")
		}
	}

	data := event.PressureRecoveryData{EvictedSessionIDs: evicted, RSSBeforeMB: before, RSSAfterMB: current}
	if len(evicted) > 0 {
		event.PublishSync(event.Event{Type: event.PressureRecovery, Data: data})
	}
	return data
}

// EvictIdle closes every live client whose last_used is older than
// timeout. Called by the Background Maintainer.
func (m *Manager) EvictIdle(timeout time.Duration) []string {
	now := time.Now()
	var candidates []string
	for id, lc := range m.liveSnapshot() {
		if now.Sub(lc.client.LastUsed()) >= timeout {
			candidates = append(candidates, id)
		}
	}

	var evicted []string
	for _, id := range candidates {
		if m.tryEvict(id) {
			evicted = append(evicted, id)
			publishEvicted(id, "idle_timeout")
		}
	}
	return evicted
}

// SweepExpired removes Metadata Store records past their TTL and
// closes any corresponding live client. Called by the Background
// Maintainer.
func (m *Manager) SweepExpired(ctx context.Context) ([]string, error) {
	ids, err := m.store.SweepExpired(ctx, time.Now(), m.cfg.TTL)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		m.tryEvict(id)
		event.PublishSync(event.Event{Type: event.SessionClosed, Data: event.SessionClosedData{SessionID: id}})
	}
	return ids, nil
}

// publishEvicted emits a session.evicted event; kept as a package-level
// function since tryEvict lives in locks.go.
func publishEvicted(sessionID, reason string) {
	event.PublishSync(event.Event{Type: event.SessionEvicted, Data: event.SessionEvictedData{SessionID: sessionID, Reason: reason}})
}
