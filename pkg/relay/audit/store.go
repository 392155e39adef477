// Package audit journals relay sessions and security events in sqlite.
// Message bodies are never stored.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Journal receives relay lifecycle records. Implementations must be safe for
// concurrent use.
type Journal interface {
	SessionOpened(ctx context.Context, s Session) error
	SessionClosed(ctx context.Context, id string, at time.Time) error
	SecurityEvent(ctx context.Context, e SecurityEvent) error
}

type Session struct {
	ID             string
	Role           string
	Name           string
	Email          string
	Remote         string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
}

// Open reports whether the session has not been closed yet.
func (s Session) Open() bool {
	return s.DisconnectedAt.IsZero()
}

// SecurityEvent records stripped markup or a rejected identity. SessionID is
// empty for rejected handshakes.
type SecurityEvent struct {
	SessionID string
	Remote    string
	Field     string
	Kind      string
	At        time.Time
}

const (
	KindHostileMarkup    = "hostile_markup"
	KindRejectedIdentity = "rejected_identity"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Journal = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("audit store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "audit store: open")
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			remote TEXT NOT NULL,
			connected_at_ms INTEGER NOT NULL,
			disconnected_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_connected ON sessions(connected_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			remote TEXT NOT NULL,
			field TEXT NOT NULL,
			kind TEXT NOT NULL,
			at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS security_events_by_at ON security_events(at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "audit store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) SessionOpened(ctx context.Context, sess Session) error {
	if s == nil || s.db == nil {
		return errors.New("audit store: db is nil")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return errors.New("audit store: session id is empty")
	}
	at := sess.ConnectedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, role, name, email, remote, connected_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Role, sess.Name, sess.Email, sess.Remote, at.UnixMilli())
	return errors.Wrap(err, "audit store: insert session")
}

// SessionClosed stamps the disconnect time. Closing an unknown or already
// closed session is not an error.
func (s *SQLiteStore) SessionClosed(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("audit store: db is nil")
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET disconnected_at_ms = ?
		WHERE id = ? AND disconnected_at_ms = 0
	`, at.UnixMilli(), id)
	return errors.Wrap(err, "audit store: close session")
}

func (s *SQLiteStore) SecurityEvent(ctx context.Context, e SecurityEvent) error {
	if s == nil || s.db == nil {
		return errors.New("audit store: db is nil")
	}
	if strings.TrimSpace(e.Kind) == "" {
		return errors.New("audit store: security event kind is empty")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events(session_id, remote, field, kind, at_ms)
		VALUES(?, ?, ?, ?, ?)
	`, e.SessionID, e.Remote, e.Field, e.Kind, at.UnixMilli())
	return errors.Wrap(err, "audit store: insert security event")
}

// Sessions lists sessions, newest first. limit <= 0 means 100.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("audit store: db is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, name, email, remote, connected_at_ms, disconnected_at_ms
		FROM sessions
		ORDER BY connected_at_ms DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "audit store: query sessions")
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var (
			sess         Session
			connected    int64
			disconnected int64
		)
		if err := rows.Scan(&sess.ID, &sess.Role, &sess.Name, &sess.Email, &sess.Remote, &connected, &disconnected); err != nil {
			return nil, errors.Wrap(err, "audit store: scan session")
		}
		sess.ConnectedAt = time.UnixMilli(connected)
		if disconnected > 0 {
			sess.DisconnectedAt = time.UnixMilli(disconnected)
		}
		out = append(out, sess)
	}
	return out, errors.Wrap(rows.Err(), "audit store: iterate sessions")
}

// SecurityEvents lists security events, newest first. limit <= 0 means 100.
func (s *SQLiteStore) SecurityEvents(ctx context.Context, limit int) ([]SecurityEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("audit store: db is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, remote, field, kind, at_ms
		FROM security_events
		ORDER BY at_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "audit store: query security events")
	}
	defer func() { _ = rows.Close() }()

	var out []SecurityEvent
	for rows.Next() {
		var (
			e  SecurityEvent
			at int64
		)
		if err := rows.Scan(&e.SessionID, &e.Remote, &e.Field, &e.Kind, &at); err != nil {
			return nil, errors.Wrap(err, "audit store: scan security event")
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "audit store: iterate security events")
}

// DSNForFile builds a DSN for a journal file with WAL and a busy timeout.
func DSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("audit store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

// Nop discards every record.
type Nop struct{}

var _ Journal = Nop{}

func (Nop) SessionOpened(context.Context, Session) error         { return nil }
func (Nop) SessionClosed(context.Context, string, time.Time) error { return nil }
func (Nop) SecurityEvent(context.Context, SecurityEvent) error     { return nil }
