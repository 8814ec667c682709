package event

import "github.com/agentbroker/broker/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionClosedData is the data for session.closed events: the client
// was closed and the metadata record was deleted (explicit close or
// TTL sweep).
type SessionClosedData struct {
	SessionID string `json:"sessionID"`
}

// SessionEvictedData is the data for session.evicted events: the
// Agent Client was closed but the metadata record survives and the
// session remains resumable (idle timeout or LRU pressure recovery).
type SessionEvictedData struct {
	SessionID string `json:"sessionID"`
	Reason    string `json:"reason"` // "idle_timeout" | "pressure_recovery"
}

// PressureRecoveryData is the data for maintainer.pressure_recovery
// events: emitted once per pressure-recovery pass (from admission or
// from the Background Maintainer's sweep) that had to evict clients to
// bring RSS back under memory_limit_mb.
type PressureRecoveryData struct {
	EvictedSessionIDs []string `json:"evictedSessionIDs"`
	RSSBeforeMB       float64  `json:"rssBeforeMB"`
	RSSAfterMB        float64  `json:"rssAfterMB"`
}
