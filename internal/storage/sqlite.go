package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentbroker/broker/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	cwd             TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	last_active_at  TEXT NOT NULL,
	message_count   INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	metadata        TEXT,
	resume_token    TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON sessions(user_id, last_active_at);
`

// SQLiteStore is the embedded-file-backed Metadata Store backend: one
// persistent connection, write-ahead logging, relaxed synchronous
// commit, and a process-wide FileLock serializing mutating statements
// so a single writer is guaranteed even if multiple broker processes
// share the same file.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	lock *FileLock
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// applies its schema. Returns a fatal apierr.Error tagged StorageBroken
// if the schema cannot be applied.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_pragma=cache_size(-20000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapBroken("sqlite: open", err)
	}
	db.SetMaxOpenConns(1) // single persistent connection, never reopened per call

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, wrapBroken("sqlite: applying schema", err)
	}

	return &SQLiteStore{db: db, lock: NewFileLock(path)}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session *types.Session) error {
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshaling metadata: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return wrapUnavailable("sqlite: save lock", err)
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			cwd = excluded.cwd,
			last_active_at = excluded.last_active_at,
			message_count = excluded.message_count,
			status = excluded.status,
			metadata = excluded.metadata,
			resume_token = excluded.resume_token
	`,
		session.SessionID, session.UserID, session.Cwd,
		session.CreatedAt.Format(time.RFC3339Nano), session.LastActiveAt.Format(time.RFC3339Nano),
		session.MessageCount, session.Status, string(meta), session.ResumeToken,
	)
	if err != nil {
		return wrapUnavailable("sqlite: save", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Session, error) {
	s.mu.Lock()
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token
		FROM sessions WHERE session_id = ?`, id)
	session, err := scanSession(row)
	s.mu.Unlock()
	if err == sql.ErrNoRows {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, wrapUnavailable("sqlite: get", err)
	}
	return session, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.lock.Lock(); err != nil {
		return wrapUnavailable("sqlite: delete lock", err)
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return wrapUnavailable("sqlite: delete", err)
	}
	return nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string, now time.Time, incrementMessageCount bool) error {
	if err := s.lock.Lock(); err != nil {
		return wrapUnavailable("sqlite: touch lock", err)
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE sessions SET last_active_at = ? WHERE session_id = ?`
	args := []any{now.Format(time.RFC3339Nano), id}
	if incrementMessageCount {
		query = `UPDATE sessions SET last_active_at = ?, message_count = message_count + 1 WHERE session_id = ?`
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrapUnavailable("sqlite: touch", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter types.ListFilter) ([]*types.Session, error) {
	query := `SELECT session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token FROM sessions WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.mu.Unlock()
		return nil, wrapUnavailable("sqlite: list", err)
	}
	var out []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, wrapUnavailable("sqlite: list scan", err)
		}
		out = append(out, session)
	}
	rows.Close()
	s.mu.Unlock()
	return out, nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) ([]string, error) {
	if ttl == 0 {
		return nil, nil
	}
	cutoff := now.Add(-ttl).Format(time.RFC3339Nano)

	if err := s.lock.Lock(); err != nil {
		return nil, wrapUnavailable("sqlite: sweep lock", err)
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return nil, wrapUnavailable("sqlite: sweep select", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapUnavailable("sqlite: sweep scan", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, cutoff); err != nil {
		return nil, wrapUnavailable("sqlite: sweep delete", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts over *sql.Row and *sql.Rows, which share a Scan
// signature but not an interface in database/sql.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var (
		s                        types.Session
		createdAt, lastActiveAt  string
		metaJSON, resumeToken    sql.NullString
	)
	if err := row.Scan(&s.SessionID, &s.UserID, &s.Cwd, &createdAt, &lastActiveAt, &s.MessageCount, &s.Status, &metaJSON, &resumeToken); err != nil {
		return nil, err
	}
	var err error
	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	s.LastActiveAt, err = time.Parse(time.RFC3339Nano, lastActiveAt)
	if err != nil {
		return nil, err
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &s.Metadata); err != nil {
			return nil, err
		}
	}
	s.ResumeToken = resumeToken.String
	return &s, nil
}
