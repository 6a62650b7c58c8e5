package engine

import (
	"context"

	"github.com/datastep-labs/datastep/pkg/core"
)

// SaveSnapshot appends an immutable copy of the session's current ordered
// step definitions to the snapshot history. Results are not captured.
func (e *Engine) SaveSnapshot(ctx context.Context, sessionID string) (*core.Snapshot, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.store.GetSession(sessionID); err != nil {
		return nil, err
	}
	steps, err := e.store.ListSteps(sessionID)
	if err != nil {
		return nil, err
	}

	defs := make([]core.StepDefinition, 0, len(steps))
	for _, s := range steps {
		defs = append(defs, s.Definition())
	}

	snap, err := e.store.SaveSnapshot(sessionID, defs)
	if err != nil {
		return nil, err
	}

	e.logger.Info("snapshot saved", "session_id", sessionID, "seq", snap.Seq, "steps", len(defs))
	return snap, nil
}

// Revert replaces the session's step list with the definitions stored at
// the given snapshot. All restored steps come back pending; results are
// not restored and require re-execution. The session lock guarantees a
// revert never lands mid-cascade.
func (e *Engine) Revert(ctx context.Context, sessionID string, seq int64) error {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.store.GetSnapshot(sessionID, seq)
	if err != nil {
		return err
	}
	if err := e.store.ReplaceSteps(sessionID, snap.Definitions); err != nil {
		return err
	}

	e.logger.Info("session reverted", "session_id", sessionID, "seq", seq, "steps", len(snap.Definitions))
	return nil
}

// ListSnapshots returns a session's snapshot history in ascending order.
func (e *Engine) ListSnapshots(ctx context.Context, sessionID string) ([]*core.Snapshot, error) {
	return e.store.ListSnapshots(sessionID)
}
