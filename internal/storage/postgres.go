package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/pkg/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	cwd             TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	last_active_at  TIMESTAMPTZ NOT NULL,
	message_count   INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	metadata        JSONB,
	resume_token    TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON sessions(user_id, last_active_at);
`

// PostgresStore is the external SQL Metadata Store backend: a
// connection pool, same logical schema as SQLiteStore, upsert-based
// writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the configured PostgreSQL instance and
// applies its schema. Returns a fatal apierr.Error tagged StorageBroken
// if the connection or schema application fails.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, wrapBroken("postgres: connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapBroken("postgres: ping", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, wrapBroken("postgres: applying schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Save(ctx context.Context, session *types.Session) error {
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshaling metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = excluded.user_id,
			cwd = excluded.cwd,
			last_active_at = excluded.last_active_at,
			message_count = excluded.message_count,
			status = excluded.status,
			metadata = excluded.metadata,
			resume_token = excluded.resume_token
	`, session.SessionID, session.UserID, session.Cwd, session.CreatedAt, session.LastActiveAt,
		session.MessageCount, session.Status, meta, session.ResumeToken)
	if err != nil {
		return wrapUnavailable("postgres: save", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*types.Session, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token
		FROM sessions WHERE session_id = $1`, id)

	var (
		s        types.Session
		metaJSON []byte
	)
	err := row.Scan(&s.SessionID, &s.UserID, &s.Cwd, &s.CreatedAt, &s.LastActiveAt, &s.MessageCount, &s.Status, &metaJSON, &s.ResumeToken)
	if err == pgx.ErrNoRows {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, wrapUnavailable("postgres: get", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &s.Metadata); err != nil {
			return nil, wrapUnavailable("postgres: decoding metadata", err)
		}
	}
	return &s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id); err != nil {
		return wrapUnavailable("postgres: delete", err)
	}
	return nil
}

func (p *PostgresStore) Touch(ctx context.Context, id string, now time.Time, incrementMessageCount bool) error {
	query := `UPDATE sessions SET last_active_at = $1 WHERE session_id = $2`
	if incrementMessageCount {
		query = `UPDATE sessions SET last_active_at = $1, message_count = message_count + 1 WHERE session_id = $2`
	}
	if _, err := p.pool.Exec(ctx, query, now, id); err != nil {
		return wrapUnavailable("postgres: touch", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, filter types.ListFilter) ([]*types.Session, error) {
	query := `SELECT session_id, user_id, cwd, created_at, last_active_at, message_count, status, metadata, resume_token FROM sessions WHERE TRUE`
	var args []any
	argN := 1
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argN)
		args = append(args, filter.UserID)
		argN++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, string(filter.Status))
		argN++
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("postgres: list", err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		var (
			s        types.Session
			metaJSON []byte
		)
		if err := rows.Scan(&s.SessionID, &s.UserID, &s.Cwd, &s.CreatedAt, &s.LastActiveAt, &s.MessageCount, &s.Status, &metaJSON, &s.ResumeToken); err != nil {
			return nil, wrapUnavailable("postgres: list scan", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &s.Metadata); err != nil {
				return nil, wrapUnavailable("postgres: decoding metadata", err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) ([]string, error) {
	if ttl == 0 {
		return nil, nil
	}
	cutoff := now.Add(-ttl)

	rows, err := p.pool.Query(ctx, `SELECT session_id FROM sessions WHERE last_active_at < $1`, cutoff)
	if err != nil {
		return nil, wrapUnavailable("postgres: sweep select", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapUnavailable("postgres: sweep scan", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE last_active_at < $1`, cutoff); err != nil {
		return nil, wrapUnavailable("postgres: sweep delete", err)
	}
	return ids, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
