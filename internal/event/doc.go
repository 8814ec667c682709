/*
Package event provides a type-safe pub/sub bus for session lifecycle
notifications, built on watermill's gochannel transport.

The Session Manager publishes, including from the eviction and sweep
passes the Background Maintainer drives; nothing in the
core depends on a subscriber existing, so the HTTP surface's SSE
endpoints and any future audit sink can listen without coupling back
into session.Manager.

# Event types

  - session.created: a new session was admitted and its Agent Client
    is live.
  - session.closed: a session was explicitly closed or its metadata
    record swept on TTL expiry; the client is gone and so is the
    record.
  - session.evicted: a session's Agent Client was closed for idle
    timeout or LRU pressure recovery, but its metadata record survives
    and the session remains resumable.
  - maintainer.pressure_recovery: a pressure-recovery pass (admission
    or the Background Maintainer's sweep) evicted one or more clients to
    bring RSS back under memory_limit_mb.

# Usage

	unsubscribe := event.Subscribe(event.SessionEvicted, func(e event.Event) {
		data := e.Data.(event.SessionEvictedData)
		log.Info().Str("session_id", data.SessionID).Msg("session evicted")
	})
	defer unsubscribe()

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

# Subscriber safety

PublishSync calls subscribers synchronously in the publisher's
goroutine. Subscribers must return quickly and must never call
Publish/PublishSync re-entrantly or acquire a lock the publisher might
hold.
*/
package event
