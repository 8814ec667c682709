package storage

import (
	"context"
	"sync"
	"time"

	"github.com/agentbroker/broker/pkg/types"
)

// MemoryStore is the in-memory Metadata Store backend: a mutex-protected
// map, O(1) average per operation, not restart-safe.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.Session)}
}

func (m *MemoryStore) Save(_ context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errNotFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, now time.Time, incrementMessageCount bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.LastActiveAt = now
	if incrementMessageCount {
		s.MessageCount++
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, filter types.ListFilter) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) SweepExpired(_ context.Context, now time.Time, ttl time.Duration) ([]string, error) {
	if ttl == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for id, s := range m.sessions {
		if s.LastActiveAt.Add(ttl).Before(now) {
			removed = append(removed, id)
			delete(m.sessions, id)
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }
