package session

import (
	"context"
	"sync"
	"time"

	"github.com/agentbroker/broker/internal/apierr"
)

// acquireSessionLock returns sessionID's per-session mutex, locked. It
// fails NotFound if sessionID names no known session, and SessionBusy
// if a chat turn already holds the lock — acquisition is reject-fast,
// never queued, per spec.md section 4.4.
func (m *Manager) acquireSessionLock(sessionID string) (*sync.Mutex, error) {
	m.clientsLock.Lock()
	lock, ok := m.sessionLocks[sessionID]
	m.clientsLock.Unlock()

	if !ok {
		// Unknown to the live set; confirm the session actually exists
		// before minting a lock for it, so hammering a bogus id can't
		// grow sessionLocks unbounded.
		if _, err := m.store.Get(context.Background(), sessionID); err != nil {
			return nil, err
		}
		m.clientsLock.Lock()
		lock, ok = m.sessionLocks[sessionID]
		if !ok {
			lock = &sync.Mutex{}
			m.sessionLocks[sessionID] = lock
		}
		m.clientsLock.Unlock()
	}

	if !lock.TryLock() {
		return nil, apierr.New(apierr.KindSessionBusy, "a chat turn is already in progress for this session")
	}
	return lock, nil
}

// acquirePermit takes one in_flight slot, waiting up to
// admissionPermitWait before failing Overloaded. The returned func
// releases the slot and must be called exactly once.
func (m *Manager) acquirePermit(ctx context.Context) (func(), error) {
	select {
	case m.inFlight <- struct{}{}:
		return func() { <-m.inFlight }, nil
	default:
	}

	timer := time.NewTimer(admissionPermitWait)
	defer timer.Stop()

	select {
	case m.inFlight <- struct{}{}:
		return func() { <-m.inFlight }, nil
	case <-timer.C:
		return nil, apierr.New(apierr.KindOverloaded, "max_concurrent_requests reached")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryEvict removes sessionID from the live set and closes its client,
// unless a chat turn currently holds its session lock — in which case
// it is skipped rather than waited for, since eviction is opportunistic
// (spec.md section 4.7), not a deliberate close. It does not publish
// any event; callers publish the event that matches why they evicted
// (session.evicted for idle/pressure eviction, session.closed for a
// TTL sweep, since the Metadata Store record is already gone by then).
func (m *Manager) tryEvict(sessionID string) bool {
	m.clientsLock.Lock()
	lc, ok := m.clients[sessionID]
	lock := m.sessionLocks[sessionID]
	m.clientsLock.Unlock()
	if !ok {
		return false
	}

	if lock != nil {
		if !lock.TryLock() {
			return false
		}
		defer lock.Unlock()
	}

	m.clientsLock.Lock()
	if _, stillLive := m.clients[sessionID]; !stillLive {
		m.clientsLock.Unlock()
		return false
	}
	delete(m.clients, sessionID)
	delete(m.sessionLocks, sessionID)
	m.perUserCounts[lc.userID]--
	if m.perUserCounts[lc.userID] <= 0 {
		delete(m.perUserCounts, lc.userID)
	}
	m.clientsLock.Unlock()

	lc.client.Close(m.cfg.ShutdownGrace)
	return true
}
