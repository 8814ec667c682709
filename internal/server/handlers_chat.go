package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentbroker/broker/internal/apierr"
	"github.com/agentbroker/broker/pkg/types"
)

// chat handles POST /api/v1/chat: one synchronous turn.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "invalid JSON body"))
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "session_id and message are required"))
		return
	}

	resp, err := s.mgr.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// chatStream handles POST /api/v1/chat/stream: the same turn, forwarded
// as SSE records as they arrive.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "invalid JSON body"))
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "session_id and message are required"))
		return
	}

	records, err := s.mgr.ChatStream(r.Context(), req.SessionID, req.Message)
	if err != nil {
		// Headers not yet sent: report the tagged error normally.
		writeAPIError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeAPIError(w, apierr.New(apierr.KindFatal, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sse.flush()

	// The session manager drives the turn to completion regardless of
	// whether this handler keeps reading, so message_count stays
	// consistent even if the client below disconnects (spec.md section
	// 4.6); this loop only stops writing, it never cancels the turn.
	for rec := range records {
		if err := sse.writeEvent(rec); err != nil {
			for range records {
			}
			return
		}
	}
}
