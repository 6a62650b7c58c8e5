package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/datastep-labs/datastep/pkg/core"
)

// SaveSnapshot stores an immutable copy of the given step definitions under
// the next sequence number for the session.
func (s *SQLiteStore) SaveSnapshot(sessionID string, defs []core.StepDefinition) (*core.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Seq assignment and insert share the transaction so concurrent saves
	// cannot claim the same number.
	var seq int64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots WHERE session_id = ?`,
		sessionID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("failed to assign snapshot seq: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(
		`INSERT INTO snapshots (session_id, seq, definitions, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, seq, string(raw), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return &core.Snapshot{
		Seq:         seq,
		SessionID:   sessionID,
		Definitions: defs,
		CreatedAt:   now,
	}, nil
}

// GetSnapshot retrieves one snapshot by session and sequence number.
func (s *SQLiteStore) GetSnapshot(sessionID string, seq int64) (*core.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	snap := &core.Snapshot{SessionID: sessionID, Seq: seq}
	var raw string
	err := s.db.QueryRow(
		`SELECT definitions, created_at FROM snapshots WHERE session_id = ? AND seq = ?`,
		sessionID, seq,
	).Scan(&raw, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot not found: session %s seq %d", sessionID, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &snap.Definitions); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a session's snapshots in ascending seq order.
func (s *SQLiteStore) ListSnapshots(sessionID string) ([]*core.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT seq, definitions, created_at FROM snapshots WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*core.Snapshot
	for rows.Next() {
		snap := &core.Snapshot{SessionID: sessionID}
		var raw string
		if err := rows.Scan(&snap.Seq, &raw, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &snap.Definitions); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}
