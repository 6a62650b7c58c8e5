package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/datastep-labs/datastep/pkg/core"
)

const stepColumns = `id, session_id, position, step_type, name, source, config, status, error, result, created_at, updated_at`

// CreateStep persists a new step. ID and timestamps are assigned here when
// the caller left them zero.
func (s *SQLiteStore) CreateStep(step *core.Step) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if step.ID == "" {
		step.ID = generateID()
	}
	now := time.Now().UTC()
	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}
	step.UpdatedAt = now
	if step.Status == "" {
		step.Status = core.StepStatusPending
	}

	cfg, err := json.Marshal(step.Config)
	if err != nil {
		return fmt.Errorf("failed to encode step config: %w", err)
	}
	result, err := encodeResult(step.Result)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.SessionID, step.Position, string(step.Type), step.Name, step.Source,
		string(cfg), string(step.Status), step.Error, result, step.CreatedAt, step.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	return touchSession(s.db, step.SessionID)
}

// GetStep retrieves a step by ID.
func (s *SQLiteStore) GetStep(id string) (*core.Step, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(`SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)
	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// ListSteps returns a session's steps ordered by position.
func (s *SQLiteStore) ListSteps(sessionID string) ([]*core.Step, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT `+stepColumns+` FROM steps WHERE session_id = ? ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*core.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// UpdateStepConfig replaces a step's configuration.
func (s *SQLiteStore) UpdateStepConfig(id string, cfg core.StepConfig) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode step config: %w", err)
	}
	return s.updateStep(id, `UPDATE steps SET config = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC(), id)
}

// UpdateStepStatus transitions a step's lifecycle status. errMsg is stored
// verbatim; pass "" to clear a previous failure.
func (s *SQLiteStore) UpdateStepStatus(id string, status core.StepStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return s.updateStep(id, `UPDATE steps SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id)
}

// UpdateStepResult stores the output of a step's last successful execution.
// A nil result clears the stored one.
func (s *SQLiteStore) UpdateStepResult(id string, result *core.StepResult) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	raw, err := encodeResult(result)
	if err != nil {
		return err
	}
	return s.updateStep(id, `UPDATE steps SET result = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().UTC(), id)
}

// UpdateStepSource re-points a step at a different upstream source.
func (s *SQLiteStore) UpdateStepSource(id string, source string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return s.updateStep(id, `UPDATE steps SET source = ?, updated_at = ? WHERE id = ?`,
		source, time.Now().UTC(), id)
}

// UpdateStepPosition moves a step to a new position within its session.
func (s *SQLiteStore) UpdateStepPosition(id string, position int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return s.updateStep(id, `UPDATE steps SET position = ?, updated_at = ? WHERE id = ?`,
		position, time.Now().UTC(), id)
}

// DeleteStep removes a step.
func (s *SQLiteStore) DeleteStep(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`DELETE FROM steps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step not found: %s", id)
	}
	return nil
}

// ReplaceSteps atomically swaps a session's step list for the given
// definitions. Every restored step comes back pending with no result.
func (s *SQLiteStore) ReplaceSteps(sessionID string, defs []core.StepDefinition) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM steps WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	now := time.Now().UTC()
	for _, def := range defs {
		cfg, err := json.Marshal(def.Config)
		if err != nil {
			return fmt.Errorf("failed to encode step config: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, sessionID, def.Position, string(def.Type), def.Name, def.Source,
			string(cfg), string(core.StepStatusPending), "", nil, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to restore step %s: %w", def.ID, err)
		}
	}

	if err := touchSession(tx, sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) updateStep(id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step not found: %s", id)
	}
	return nil
}

func encodeResult(result *core.StepResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step result: %w", err)
	}
	return string(raw), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*core.Step, error) {
	step := &core.Step{}
	var (
		stepType string
		status   string
		cfg      string
		result   sql.NullString
	)
	err := row.Scan(
		&step.ID, &step.SessionID, &step.Position, &stepType, &step.Name, &step.Source,
		&cfg, &status, &step.Error, &result, &step.CreatedAt, &step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Type = core.StepType(stepType)
	step.Status = core.StepStatus(status)
	if err := json.Unmarshal([]byte(cfg), &step.Config); err != nil {
		return nil, fmt.Errorf("failed to decode step config: %w", err)
	}
	if result.Valid {
		step.Result = &core.StepResult{}
		if err := json.Unmarshal([]byte(result.String), step.Result); err != nil {
			return nil, fmt.Errorf("failed to decode step result: %w", err)
		}
	}
	return step, nil
}
