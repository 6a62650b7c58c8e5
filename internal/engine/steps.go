package engine

import (
	"context"
	"fmt"

	"github.com/datastep-labs/datastep/internal/dag"
	"github.com/datastep-labs/datastep/pkg/core"
)

// AddStepRequest describes a step to append to a session's pipeline.
type AddStepRequest struct {
	Type   core.StepType
	Name   string
	Source string // SourceOriginal or an earlier step's ID
	Config core.StepConfig
}

// AddStep validates and appends a step at the next position.
func (e *Engine) AddStep(ctx context.Context, sessionID string, req AddStepRequest) (*core.Step, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := core.ParseStepType(string(req.Type)); err != nil {
		return nil, &core.ConfigError{Field: "type", Reason: err.Error()}
	}
	if req.Name == "" {
		return nil, &core.ConfigError{Field: "name", Reason: "step name is required"}
	}
	if err := req.Config.Validate(req.Type); err != nil {
		return nil, err
	}

	if _, err := e.store.GetSession(sessionID); err != nil {
		return nil, err
	}
	steps, err := e.store.ListSteps(sessionID)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = core.SourceOriginal
	}
	// Appending at the tail, so any existing step satisfies the
	// forward-reference invariant.
	if source != core.SourceOriginal {
		if findStep(steps, source) == nil {
			return nil, &core.ConfigError{Field: "source", Reason: fmt.Sprintf("unknown source step %q", source)}
		}
	}

	step := &core.Step{
		SessionID: sessionID,
		Position:  len(steps),
		Type:      req.Type,
		Name:      req.Name,
		Source:    source,
		Config:    req.Config,
		Status:    core.StepStatusPending,
	}
	if err := e.store.CreateStep(step); err != nil {
		return nil, err
	}

	e.logger.Info("step added", "session_id", sessionID, "step_id", step.ID,
		"type", step.Type, "position", step.Position)
	return step, nil
}

// UpdateStepConfig replaces a step's configuration. The step and every
// transitive dependent are demoted to pending with their stale results
// retained. With cascade=true the step and its dependents are re-executed
// eagerly; without it they wait for an explicit run. Re-execution is never
// implicit.
func (e *Engine) UpdateStepConfig(ctx context.Context, stepID string, cfg core.StepConfig, cascade bool) (*core.ExecutionResult, error) {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return nil, err
	}

	lock := e.sessionLock(step.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := cfg.Validate(step.Type); err != nil {
		return nil, err
	}
	if err := e.store.UpdateStepConfig(stepID, cfg); err != nil {
		return nil, err
	}

	steps, err := e.store.ListSteps(step.SessionID)
	if err != nil {
		return nil, err
	}
	graph := dag.Build(steps)

	if err := e.store.UpdateStepStatus(stepID, core.StepStatusPending, ""); err != nil {
		return nil, err
	}
	for _, dep := range graph.Affected(stepID) {
		if err := e.store.UpdateStepStatus(dep.ID, core.StepStatusPending, ""); err != nil {
			return nil, err
		}
	}

	e.logger.Info("step config updated", "session_id", step.SessionID, "step_id", stepID, "cascade", cascade)

	if !cascade {
		return nil, nil
	}
	return e.executeLocked(ctx, step.SessionID, stepID, true)
}

// DeleteStep removes a step and renumbers the tail contiguously. Direct
// dependents are re-pointed at the deleted step's own source; they and
// their transitive dependents are demoted to pending with results retained
// and an annotation naming the cause. With cascade=true the re-pointed
// dependents are re-executed immediately.
func (e *Engine) DeleteStep(ctx context.Context, stepID string, cascade bool) (*core.ExecutionResult, error) {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return nil, err
	}

	lock := e.sessionLock(step.SessionID)
	lock.Lock()
	defer lock.Unlock()

	steps, err := e.store.ListSteps(step.SessionID)
	if err != nil {
		return nil, err
	}
	graph := dag.Build(steps)

	direct := graph.Dependents(stepID)
	affected := graph.Affected(stepID)

	for _, depID := range direct {
		if err := e.store.UpdateStepSource(depID, step.Source); err != nil {
			return nil, err
		}
	}
	for _, dep := range affected {
		if err := e.store.UpdateStepStatus(dep.ID, core.StepStatusPending,
			fmt.Sprintf("source step %q deleted", step.Name)); err != nil {
			return nil, err
		}
	}

	if err := e.store.DeleteStep(stepID); err != nil {
		return nil, err
	}
	for _, s := range steps {
		if s.Position > step.Position {
			if err := e.store.UpdateStepPosition(s.ID, s.Position-1); err != nil {
				return nil, err
			}
		}
	}

	e.logger.Info("step deleted", "session_id", step.SessionID, "step_id", stepID,
		"dependents", len(direct), "cascade", cascade)

	if !cascade || len(direct) == 0 {
		return nil, nil
	}

	// Re-execute each former direct dependent with its own downstream.
	result := &core.ExecutionResult{SessionID: step.SessionID}
	for _, depID := range direct {
		res, err := e.executeLocked(ctx, step.SessionID, depID, true)
		if res != nil {
			result.Outcomes = append(result.Outcomes, res.Outcomes...)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// MoveStep moves a step to a new 0-based position, shifting the steps in
// between. Placements that would break the forward-reference invariant for
// the moved step or any of its dependents are rejected.
func (e *Engine) MoveStep(ctx context.Context, stepID string, newPosition int) error {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return err
	}

	lock := e.sessionLock(step.SessionID)
	lock.Lock()
	defer lock.Unlock()

	steps, err := e.store.ListSteps(step.SessionID)
	if err != nil {
		return err
	}
	if newPosition < 0 || newPosition >= len(steps) {
		return &core.ConfigError{StepID: stepID, Field: "position",
			Reason: fmt.Sprintf("position %d out of range [0,%d]", newPosition, len(steps)-1)}
	}
	if newPosition == step.Position {
		return nil
	}

	// Simulate the reorder on copies, then validate before persisting.
	reordered := make([]*core.Step, 0, len(steps))
	for _, s := range steps {
		if s.ID != stepID {
			reordered = append(reordered, s)
		}
	}
	reordered = append(reordered[:newPosition],
		append([]*core.Step{step}, reordered[newPosition:]...)...)

	copies := make([]*core.Step, len(reordered))
	for i, s := range reordered {
		c := *s
		c.Position = i
		copies[i] = &c
	}
	if err := dag.Build(copies).Validate(); err != nil {
		return &core.ConfigError{StepID: stepID, Field: "position", Reason: err.Error()}
	}

	for i, c := range copies {
		if c.Position != positionOf(steps, c.ID) {
			if err := e.store.UpdateStepPosition(c.ID, i); err != nil {
				return err
			}
		}
	}

	e.logger.Info("step moved", "session_id", step.SessionID, "step_id", stepID,
		"from", step.Position, "to", newPosition)
	return nil
}

// ListSteps returns a session's steps ordered by position.
func (e *Engine) ListSteps(ctx context.Context, sessionID string) ([]*core.Step, error) {
	return e.store.ListSteps(sessionID)
}

func findStep(steps []*core.Step, id string) *core.Step {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func positionOf(steps []*core.Step, id string) int {
	if s := findStep(steps, id); s != nil {
		return s.Position
	}
	return -1
}
