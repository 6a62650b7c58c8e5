package engine

import (
	"context"
	"fmt"

	"github.com/datastep-labs/datastep/pkg/core"
)

// CreateSession creates a new analysis session bound to a source dataset.
// The source must be loadable up front so later steps never discover a
// missing file mid-cascade.
func (e *Engine) CreateSession(ctx context.Context, name, sourcePath string) (*core.Session, error) {
	if name == "" {
		return nil, fmt.Errorf("session name is required")
	}
	if sourcePath == "" {
		return nil, fmt.Errorf("session source path is required")
	}

	if _, err := e.frames.Load(ctx, sourcePath); err != nil {
		return nil, fmt.Errorf("source dataset not loadable: %w", err)
	}

	session, err := e.store.CreateSession(name, sourcePath)
	if err != nil {
		return nil, err
	}

	e.logger.Info("session created", "session_id", session.ID, "name", name, "source", sourcePath)
	return session, nil
}

// ListSessions returns all sessions.
func (e *Engine) ListSessions(ctx context.Context) ([]*core.Session, error) {
	return e.store.ListSessions()
}

// DeleteSession removes a session along with its steps and snapshots.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return e.store.DeleteSession(sessionID)
}

// Overview is the read-only introspection payload: source dataset shape
// and the ordered step list with statuses.
type Overview struct {
	SessionID   string        `json:"session_id"`
	SessionName string        `json:"session_name"`
	SourcePath  string        `json:"source_path"`
	RowCount    int           `json:"row_count"`
	ColumnCount int           `json:"column_count"`
	Columns     []string      `json:"columns"`
	Steps       []StepSummary `json:"steps"`
}

// StepSummary is one step line in an overview.
type StepSummary struct {
	ID       string          `json:"id"`
	Position int             `json:"position"`
	Type     core.StepType   `json:"type"`
	Name     string          `json:"name"`
	Source   string          `json:"source"`
	Status   core.StepStatus `json:"status"`
	Error    string          `json:"error,omitempty"`
}

// Overview describes the session's source dataset and step list. It has
// no side effects.
func (e *Engine) Overview(ctx context.Context, sessionID string) (*Overview, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	ds, err := e.frames.Load(ctx, session.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load source dataset: %w", err)
	}

	steps, err := e.store.ListSteps(sessionID)
	if err != nil {
		return nil, err
	}

	rows, cols := ds.Shape()
	ov := &Overview{
		SessionID:   session.ID,
		SessionName: session.Name,
		SourcePath:  session.SourcePath,
		RowCount:    rows,
		ColumnCount: cols,
		Columns:     ds.Columns,
	}
	for _, s := range steps {
		ov.Steps = append(ov.Steps, StepSummary{
			ID:       s.ID,
			Position: s.Position,
			Type:     s.Type,
			Name:     s.Name,
			Source:   s.Source,
			Status:   s.Status,
			Error:    s.Error,
		})
	}
	return ov, nil
}
