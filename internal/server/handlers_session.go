package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentbroker/broker/internal/apierr"
	"github.com/agentbroker/broker/pkg/types"
)

// createSession handles POST /api/v1/sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeAPIError(w, apierr.New(apierr.KindInvalidInput, "user_id is required"))
		return
	}

	info, err := s.mgr.Create(r.Context(), req.UserID, req.Subdir, req.Metadata)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// listSessions handles GET /api/v1/sessions, optionally narrowed by
// ?user_id= and/or ?status=active|closed.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	status := types.Status(r.URL.Query().Get("status"))
	infos, err := s.mgr.List(r.Context(), userID, status)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if infos == nil {
		infos = []*types.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// getSession handles GET /api/v1/sessions/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	info, err := s.mgr.Get(r.Context(), sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// deleteSession handles DELETE /api/v1/sessions/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.mgr.Close(r.Context(), sessionID); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resumeSession handles POST /api/v1/sessions/{sessionID}/resume.
func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	info, err := s.mgr.Resume(r.Context(), sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
