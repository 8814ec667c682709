package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agentbroker/broker/pkg/types"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func createTestSession(t *testing.T, srv *Server, userID string) *types.SessionInfo {
	t.Helper()
	body, _ := json.Marshal(types.CreateSessionRequest{UserID: userID})
	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.createSession(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("createSession: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var info types.SessionInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decoding createSession response: %v", err)
	}
	return &info
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t)
	info := createTestSession(t, srv, "alice")

	if info.SessionID == "" {
		t.Error("expected a non-empty session_id")
	}
	if info.UserID != "alice" {
		t.Errorf("expected user_id alice, got %s", info.UserID)
	}
	if info.Status != types.StatusActive {
		t.Errorf("expected status active, got %s", info.Status)
	}
}

func TestCreateSession_InvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	srv.createSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateSession_MissingUserID(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(types.CreateSessionRequest{})
	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.createSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	srv := newTestServer(t)
	created := createTestSession(t, srv, "alice")

	req := withURLParam(httptest.NewRequest("GET", "/api/v1/sessions/"+created.SessionID, nil), "sessionID", created.SessionID)
	w := httptest.NewRecorder()

	srv.getSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var info types.SessionInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decoding getSession response: %v", err)
	}
	if info.SessionID != created.SessionID {
		t.Errorf("session_id mismatch: got %s, want %s", info.SessionID, created.SessionID)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	srv := newTestServer(t)

	req := withURLParam(httptest.NewRequest("GET", "/api/v1/sessions/nope", nil), "sessionID", "nope")
	w := httptest.NewRecorder()

	srv.getSession(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Detail == nil {
		t.Error("expected a non-nil detail field")
	}
}

func TestListSessions_FiltersByUserAndStatus(t *testing.T) {
	srv := newTestServer(t)
	alice := createTestSession(t, srv, "alice")
	createTestSession(t, srv, "bob")

	req := httptest.NewRequest("GET", "/api/v1/sessions?user_id=alice", nil)
	w := httptest.NewRecorder()
	srv.listSessions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var infos []*types.SessionInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decoding listSessions response: %v", err)
	}
	if len(infos) != 1 || infos[0].SessionID != alice.SessionID {
		t.Errorf("expected exactly alice's session, got %+v", infos)
	}

	req = httptest.NewRequest("GET", "/api/v1/sessions?status=closed", nil)
	w = httptest.NewRecorder()
	srv.listSessions(w, req)

	infos = nil
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decoding listSessions response: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no closed sessions yet, got %d", len(infos))
	}
}

func TestDeleteSession(t *testing.T) {
	srv := newTestServer(t)
	created := createTestSession(t, srv, "alice")

	req := withURLParam(httptest.NewRequest("DELETE", "/api/v1/sessions/"+created.SessionID, nil), "sessionID", created.SessionID)
	w := httptest.NewRecorder()

	srv.deleteSession(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	getReq := withURLParam(httptest.NewRequest("GET", "/api/v1/sessions/"+created.SessionID, nil), "sessionID", created.SessionID)
	getW := httptest.NewRecorder()
	srv.getSession(getW, getReq)
	if getW.Code != http.StatusNotFound {
		t.Errorf("expected the closed session to 404, got %d", getW.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/sessions?status=active", nil)
	w = httptest.NewRecorder()
	srv.listSessions(w, req)

	var infos []*types.SessionInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decoding listSessions response: %v", err)
	}
	for _, info := range infos {
		if info.SessionID == created.SessionID {
			t.Error("deleted session should not appear under ?status=active")
		}
	}
}

func TestChat(t *testing.T) {
	srv := newTestServer(t)
	created := createTestSession(t, srv, "alice")

	body, _ := json.Marshal(types.ChatRequest{SessionID: created.SessionID, Message: "hello"})
	req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.chat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp types.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding chat response: %v", err)
	}
	if resp.Text == "" {
		t.Error("expected non-empty text from the helper CLI")
	}
}

func TestChat_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(types.ChatRequest{})
	req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.chat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestChat_UnknownSession(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(types.ChatRequest{SessionID: "nope", Message: "hi"})
	req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.chat(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	createTestSession(t, srv, "alice")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	srv.health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var info types.HealthInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if info.Status != "ok" {
		t.Errorf("expected status ok, got %s", info.Status)
	}
	if info.StoredSessions != 1 {
		t.Errorf("expected 1 stored session, got %d", info.StoredSessions)
	}
}
