package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datastep-labs/datastep/pkg/core"
)

// CreateSession creates a new analysis session bound to a source dataset.
func (s *SQLiteStore) CreateSession(name, sourcePath string) (*core.Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	session := &core.Session{
		ID:         generateID(),
		Name:       name,
		SourcePath: sourcePath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, name, source_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Name, session.SourcePath, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(id string) (*core.Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	session := &core.Session{}
	err := s.db.QueryRow(
		`SELECT id, name, source_path, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.Name, &session.SourcePath, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListSessions returns all sessions, newest first.
func (s *SQLiteStore) ListSessions() ([]*core.Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, name, source_path, created_at, updated_at FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		session := &core.Session{}
		if err := rows.Scan(&session.ID, &session.Name, &session.SourcePath, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// DeleteSession removes a session along with its steps and snapshots.
func (s *SQLiteStore) DeleteSession(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// touchSession bumps a session's updated_at after a step mutation.
func touchSession(e execer, id string) error {
	_, err := e.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}
