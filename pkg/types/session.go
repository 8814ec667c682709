// Package types provides the wire-level data types shared between the
// session manager, the HTTP surface, and the metadata store.
package types

import "time"

// Status is the lifecycle state of a Session record.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Session is the durable record the Metadata Store keeps for one
// conversation with an agent subprocess. It is the entity described in
// spec.md section 3; every mutation flows through the Session Manager.
type Session struct {
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	Cwd           string         `json:"cwd"`
	CreatedAt     time.Time      `json:"created_at"`
	LastActiveAt  time.Time      `json:"last_active_at"`
	MessageCount  int            `json:"message_count"`
	Status        Status         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ResumeToken   string         `json:"-"` // opaque prior-session token, never serialized to callers
}

// Clone returns a deep-enough copy safe to hand to a caller without
// aliasing the Metadata Store's internal map.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ListFilter narrows a Metadata Store List call.
type ListFilter struct {
	UserID string
	Status Status // empty means "any"
}
