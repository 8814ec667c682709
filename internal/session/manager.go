// Package session implements the Session Manager: it owns the live set
// of Agent Clients, enforces per-session serialization of chat turns,
// admits and evicts sessions under the configured caps, and is the only
// component that mutates a Session record.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentbroker/broker/internal/agentclient"
	"github.com/agentbroker/broker/internal/apierr"
	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/event"
	"github.com/agentbroker/broker/internal/pathguard"
	"github.com/agentbroker/broker/internal/storage"
	"github.com/agentbroker/broker/internal/stream"
	"github.com/agentbroker/broker/pkg/types"
)

// admissionPermitWait bounds how long Chat waits for an in_flight permit
// before failing Overloaded. Acquisition is reject-fast, not queued, so
// this is short.
const admissionPermitWait = 200 * time.Millisecond

// liveClient pairs a running Agent Client with the user_id it belongs
// to, so eviction never needs a Metadata Store round trip to find which
// per_user_counts entry to decrement.
type liveClient struct {
	client *agentclient.Client
	userID string
}

// Manager is the Session Manager. One Manager is constructed per
// process and shared by the HTTP Surface and the Background Maintainer.
type Manager struct {
	cfg   *config.Config
	store storage.Store
	log   zerolog.Logger

	clientsLock     sync.Mutex
	clients         map[string]*liveClient
	sessionLocks    map[string]*sync.Mutex
	perUserCounts   map[string]int
	reservedTotal   int
	reservedPerUser map[string]int

	inFlight chan struct{}

	startedAt time.Time
}

// NewManager builds a Manager with an empty live set.
func NewManager(cfg *config.Config, store storage.Store, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:             cfg,
		store:           store,
		log:             log,
		clients:         make(map[string]*liveClient),
		sessionLocks:    make(map[string]*sync.Mutex),
		perUserCounts:   make(map[string]int),
		reservedPerUser: make(map[string]int),
		inFlight:        make(chan struct{}, cfg.MaxConcurrentRequests),
		startedAt:       time.Now(),
	}
}

// Create admits a new session for user_id, spawns its Agent Client, and
// persists the record.
func (m *Manager) Create(ctx context.Context, userID, subdir string, metadata map[string]any) (*types.SessionInfo, error) {
	cwd, err := pathguard.Resolve(m.cfg.BaseDir, userID, subdir, m.cfg.AutoCreateDir)
	if err != nil {
		return nil, err
	}

	if err := m.admit(ctx, userID); err != nil {
		return nil, err
	}

	addDirs, err := m.resolveAddDirs(cwd, m.cfg.DefaultAgentOptions.AddDirs)
	if err != nil {
		m.unreserve(userID)
		return nil, err
	}

	sessionID := uuid.NewString()
	client, err := agentclient.Start(context.Background(), sessionID, cwd, m.credentials(), m.cfg.DefaultAgentOptions, "", addDirs, m.log)
	if err != nil {
		m.unreserve(userID)
		return nil, err
	}

	now := time.Now().UTC()
	rec := &types.Session{
		SessionID:    sessionID,
		UserID:       userID,
		Cwd:          cwd,
		CreatedAt:    now,
		LastActiveAt: now,
		MessageCount: 0,
		Status:       types.StatusActive,
		Metadata:     metadata,
		ResumeToken:  sessionID,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		client.Close(m.cfg.ShutdownGrace)
		m.unreserve(userID)
		return nil, err
	}

	m.install(userID, sessionID, client)

	event.PublishSync(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: rec}})
	return types.ToSessionInfo(rec), nil
}

// Chat runs one synchronous turn: it serializes on the session, takes
// an in_flight permit, drives the turn to completion, and returns the
// accumulated response.
func (m *Manager) Chat(ctx context.Context, sessionID, message string) (*types.ChatResponse, error) {
	lock, err := m.acquireSessionLock(sessionID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	release, err := m.acquirePermit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	client, err := m.liveOrResume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithTimeout(context.Background(), m.cfg.TurnTimeout)
	defer cancel()

	events, err := client.Ask(turnCtx, message)
	if err != nil {
		return nil, err
	}

	acc := stream.NewAccumulator(sessionID)
	for ev := range events {
		acc.Feed(ev)
	}

	now := time.Now().UTC()
	if err := m.store.Touch(context.Background(), sessionID, now, true); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("touch failed after chat turn")
	}

	return acc.Result(now), nil
}

// ChatStream runs one turn and returns a channel of translated SSE
// records. The turn is driven to completion in a background goroutine
// even if the caller stops reading, so message_count stays consistent
// with what the agent actually did (spec.md section 4.6).
func (m *Manager) ChatStream(ctx context.Context, sessionID, message string) (<-chan stream.Record, error) {
	lock, err := m.acquireSessionLock(sessionID)
	if err != nil {
		return nil, err
	}

	release, err := m.acquirePermit(ctx)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	client, err := m.liveOrResume(ctx, sessionID)
	if err != nil {
		release()
		lock.Unlock()
		return nil, err
	}

	turnCtx, cancel := context.WithTimeout(context.Background(), m.cfg.TurnTimeout)
	events, err := client.Ask(turnCtx, message)
	if err != nil {
		cancel()
		release()
		lock.Unlock()
		return nil, err
	}

	out := make(chan stream.Record, 16)
	go func() {
		defer close(out)
		defer lock.Unlock()
		defer release()
		defer cancel()

		for ev := range events {
			if rec, ok := stream.Translate(ev); ok {
				out <- rec
			}
		}

		now := time.Now().UTC()
		if err := m.store.Touch(context.Background(), sessionID, now, true); err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("touch failed after chat stream")
		}
	}()

	return out, nil
}

// Resume brings a non-live but not-closed session back into the live
// set, seeding the Agent Client with its stored resume token. A session
// that is already live is returned as is.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*types.SessionInfo, error) {
	if _, err := m.liveOrResume(ctx, sessionID); err != nil {
		return nil, err
	}
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return types.ToSessionInfo(rec), nil
}

// Close removes a session from the live set and the Metadata Store. It
// waits for any in-progress chat turn to finish before tearing the
// client down.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.clientsLock.Lock()
	lock, hasLock := m.sessionLocks[sessionID]
	m.clientsLock.Unlock()

	if hasLock {
		lock.Lock()
		defer lock.Unlock()
	}

	m.clientsLock.Lock()
	lc, ok := m.clients[sessionID]
	if ok {
		delete(m.clients, sessionID)
		m.perUserCounts[lc.userID]--
		if m.perUserCounts[lc.userID] <= 0 {
			delete(m.perUserCounts, lc.userID)
		}
	}
	delete(m.sessionLocks, sessionID)
	m.clientsLock.Unlock()

	if ok {
		lc.client.Close(m.cfg.ShutdownGrace)
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	event.PublishSync(event.Event{Type: event.SessionClosed, Data: event.SessionClosedData{SessionID: sessionID}})
	return nil
}

// Get returns one session's current record.
func (m *Manager) Get(ctx context.Context, sessionID string) (*types.SessionInfo, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return types.ToSessionInfo(rec), nil
}

// List enumerates sessions, optionally narrowed to one user_id and/or
// one lifecycle status.
func (m *Manager) List(ctx context.Context, userID string, status types.Status) ([]*types.SessionInfo, error) {
	recs, err := m.store.List(ctx, types.ListFilter{UserID: userID, Status: status})
	if err != nil {
		return nil, err
	}
	infos := make([]*types.SessionInfo, 0, len(recs))
	for _, r := range recs {
		infos = append(infos, types.ToSessionInfo(r))
	}
	return infos, nil
}

// ActiveSessionCount returns the number of live Agent Clients.
func (m *Manager) ActiveSessionCount() int {
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()
	return len(m.clients)
}

// StartedAt returns when this Manager was constructed, for uptime
// reporting.
func (m *Manager) StartedAt() time.Time {
	return m.startedAt
}

// Shutdown closes every live Agent Client in parallel, bounded by
// shutdown_grace, and clears the live set. Intended for process
// termination.
func (m *Manager) Shutdown() {
	m.clientsLock.Lock()
	entries := make([]*liveClient, 0, len(m.clients))
	for _, lc := range m.clients {
		entries = append(entries, lc)
	}
	m.clients = make(map[string]*liveClient)
	m.sessionLocks = make(map[string]*sync.Mutex)
	m.perUserCounts = make(map[string]int)
	m.clientsLock.Unlock()

	var wg sync.WaitGroup
	for _, lc := range entries {
		wg.Add(1)
		go func(c *agentclient.Client) {
			defer wg.Done()
			c.Close(m.cfg.ShutdownGrace)
		}(lc.client)
	}
	wg.Wait()
}

// liveOrResume returns the live client for sessionID, resuming it from
// the Metadata Store if it is not currently live.
func (m *Manager) liveOrResume(ctx context.Context, sessionID string) (*agentclient.Client, error) {
	m.clientsLock.Lock()
	lc, ok := m.clients[sessionID]
	m.clientsLock.Unlock()
	if ok {
		return lc.client, nil
	}
	return m.resume(ctx, sessionID)
}

// resume loads sessionID from the Metadata Store, admits it, and spawns
// a fresh Agent Client seeded with the stored resume token. If another
// goroutine wins the race to install first, this one closes its own
// spawned client and returns the winner's.
func (m *Manager) resume(ctx context.Context, sessionID string) (*agentclient.Client, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == types.StatusClosed {
		return nil, apierr.New(apierr.KindNotFound, "session is closed")
	}

	if err := m.admit(ctx, rec.UserID); err != nil {
		return nil, err
	}

	addDirs, err := m.resolveAddDirs(rec.Cwd, m.cfg.DefaultAgentOptions.AddDirs)
	if err != nil {
		m.unreserve(rec.UserID)
		return nil, err
	}

	client, err := agentclient.Start(context.Background(), sessionID, rec.Cwd, m.credentials(), m.cfg.DefaultAgentOptions, rec.ResumeToken, addDirs, m.log)
	if err != nil {
		m.unreserve(rec.UserID)
		return nil, err
	}

	m.clientsLock.Lock()
	if existing, ok := m.clients[sessionID]; ok {
		m.clientsLock.Unlock()
		m.unreserve(rec.UserID)
		client.Close(m.cfg.ShutdownGrace)
		return existing.client, nil
	}
	m.commitLocked(rec.UserID, sessionID, client)
	m.clientsLock.Unlock()

	event.PublishSync(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: rec}})
	return client, nil
}

// install moves a reservation into a live map entry for a brand new
// session (no installed-by-someone-else race is possible: the
// session_id is freshly generated).
func (m *Manager) install(userID, sessionID string, client *agentclient.Client) {
	m.clientsLock.Lock()
	defer m.clientsLock.Unlock()
	m.commitLocked(userID, sessionID, client)
}

// commitLocked installs client as sessionID's live entry and retires
// its reservation. Caller must hold clientsLock.
func (m *Manager) commitLocked(userID, sessionID string, client *agentclient.Client) {
	m.clients[sessionID] = &liveClient{client: client, userID: userID}
	m.perUserCounts[userID]++
	m.reservedTotal--
	m.reservedPerUser[userID]--
	if m.reservedPerUser[userID] <= 0 {
		delete(m.reservedPerUser, userID)
	}
	if _, ok := m.sessionLocks[sessionID]; !ok {
		m.sessionLocks[sessionID] = &sync.Mutex{}
	}
}

func (m *Manager) credentials() agentclient.Credentials {
	return agentclient.Credentials{
		APIKey:    m.cfg.AnthropicAPIKey,
		BaseURL:   m.cfg.AnthropicBaseURL,
		AuthToken: m.cfg.AnthropicAuthToken,
		Model:     m.cfg.AnthropicModel,
	}
}

func (m *Manager) resolveAddDirs(cwd string, addDirs []string) ([]string, error) {
	resolved := make([]string, 0, len(addDirs))
	for _, d := range addDirs {
		p, err := pathguard.ResolveAddDir(cwd, d)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}
