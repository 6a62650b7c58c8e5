package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datastep-labs/datastep/internal/aggregate"
	"github.com/datastep-labs/datastep/internal/dag"
	"github.com/datastep-labs/datastep/internal/dataset"
	"github.com/datastep-labs/datastep/internal/filter"
	"github.com/datastep-labs/datastep/internal/summary"
	"github.com/datastep-labs/datastep/internal/transform"
	"github.com/datastep-labs/datastep/pkg/core"
)

// ExecuteStep runs one step and, when includeFollowing is set, every step
// transitively sourcing from it in ascending position order. Partial
// success within a cascade is surfaced, never hidden: completed steps stay
// completed when a later dependent fails, and the returned CascadeError
// names them.
func (e *Engine) ExecuteStep(ctx context.Context, stepID string, includeFollowing bool) (*core.ExecutionResult, error) {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return nil, err
	}

	lock := e.sessionLock(step.SessionID)
	lock.Lock()
	defer lock.Unlock()

	return e.executeLocked(ctx, step.SessionID, stepID, includeFollowing)
}

// executeLocked runs the execution while the caller holds the session
// lock. The timeout covers the whole cascade.
func (e *Engine) executeLocked(ctx context.Context, sessionID, stepID string, includeFollowing bool) (*core.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	steps, err := e.store.ListSteps(sessionID)
	if err != nil {
		return nil, err
	}
	graph := dag.Build(steps)
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline invalid: %w", err)
	}

	step, ok := graph.Step(stepID)
	if !ok {
		return nil, fmt.Errorf("step not found: %s", stepID)
	}

	targets := []*core.Step{step}
	if includeFollowing {
		targets = append(targets, graph.Affected(stepID)...)
	}

	e.logger.Info("executing", "session_id", sessionID, "step_id", stepID,
		"cascade", includeFollowing, "steps", len(targets))

	result := &core.ExecutionResult{SessionID: sessionID}
	for i, target := range targets {
		// Cooperative checkpoint: a cascade is cancellable between
		// steps, a single step runs to completion.
		if err := ctx.Err(); err != nil {
			return result, e.timeoutOr(err, target.ID)
		}

		outcome, err := e.runStep(ctx, session, graph, target)
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			err = e.timeoutOr(err, target.ID)
			if i > 0 {
				return result, &core.CascadeError{
					FailedStepID: target.ID,
					Completed:    result.Completed(),
					Err:          err,
				}
			}
			return result, err
		}
	}

	return result, nil
}

// runStep executes one step: resolve input, dispatch on type, persist the
// result dataset, and advance the status machine. The returned outcome is
// recorded even when the step fails.
func (e *Engine) runStep(ctx context.Context, session *core.Session, graph *dag.Graph, step *core.Step) (core.StepOutcome, error) {
	outcome := core.StepOutcome{StepID: step.ID, Name: step.Name}

	if err := e.store.UpdateStepStatus(step.ID, core.StepStatusRunning, ""); err != nil {
		outcome.Status = core.StepStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	stepResult, err := e.computeStep(ctx, session, graph, step)
	if err != nil {
		outcome.Status = core.StepStatusFailed
		outcome.Error = err.Error()
		step.Status = core.StepStatusFailed
		_ = e.store.UpdateStepStatus(step.ID, core.StepStatusFailed, err.Error())
		e.logger.Error("step failed", "step_id", step.ID, "error", err.Error())
		return outcome, err
	}

	if err := e.store.UpdateStepResult(step.ID, stepResult); err != nil {
		outcome.Status = core.StepStatusFailed
		outcome.Error = err.Error()
		_ = e.store.UpdateStepStatus(step.ID, core.StepStatusFailed, err.Error())
		return outcome, err
	}
	if err := e.store.UpdateStepStatus(step.ID, core.StepStatusCompleted, ""); err != nil {
		outcome.Status = core.StepStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	// The graph shares these step structs, so downstream cascade members
	// resolve their source against the fresh result.
	step.Status = core.StepStatusCompleted
	step.Result = stepResult

	outcome.Status = core.StepStatusCompleted
	outcome.RowCount = stepResult.RowCount
	e.logger.Debug("step completed", "step_id", step.ID, "rows", stepResult.RowCount)
	return outcome, nil
}

// computeStep resolves the input dataset, dispatches to the matching
// engine, and saves the output dataset under the step's ID.
func (e *Engine) computeStep(ctx context.Context, session *core.Session, graph *dag.Graph, step *core.Step) (*core.StepResult, error) {
	input, err := e.resolveSource(ctx, session, graph, step)
	if err != nil {
		return nil, err
	}

	var (
		output *dataset.Dataset
		chart  *core.ChartPayload
		forms  []core.FormulaResult
	)

	switch step.Type {
	case core.StepTypeFilter:
		lookup, err := e.resolveLookup(ctx, graph, step)
		if err != nil {
			return nil, err
		}
		output, err = filter.Apply(input, step.Config.Filter, lookup)
		if err != nil {
			return nil, tagStep(err, step.ID)
		}
	case core.StepTypeAggregate:
		output, err = aggregate.Apply(input, step.Config.Aggregate)
		if err != nil {
			return nil, tagStep(err, step.ID)
		}
	case core.StepTypeTransform:
		output, err = transform.Apply(input, step.Config.Transform)
		if err != nil {
			return nil, tagStep(err, step.ID)
		}
	case core.StepTypeSummary:
		out, err := summary.Apply(input, step.Config.Summary)
		if err != nil {
			return nil, tagStep(err, step.ID)
		}
		// Summary passes the dataset through unchanged.
		output = input
		chart = out.Chart
		forms = out.Formulas
	default:
		return nil, &core.ConfigError{StepID: step.ID, Reason: fmt.Sprintf("unknown step type %q", step.Type)}
	}

	path, err := e.frames.Save(ctx, session.ID, step.ID, output)
	if err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	rows, cols := output.Shape()
	return &core.StepResult{
		ResultPath:  path,
		RowCount:    rows,
		ColumnCount: cols,
		Columns:     output.Columns,
		Chart:       chart,
		Formulas:    forms,
		ExecutedAt:  time.Now().UTC(),
	}, nil
}

// resolveSource loads the step's input: the session's original dataset or
// the completed result of the referenced step.
func (e *Engine) resolveSource(ctx context.Context, session *core.Session, graph *dag.Graph, step *core.Step) (*dataset.Dataset, error) {
	if step.Source == core.SourceOriginal {
		ds, err := e.frames.Load(ctx, session.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load source dataset: %w", err)
		}
		return ds, nil
	}

	src, ok := graph.Step(step.Source)
	if !ok {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: step.Source, Reason: "source step does not exist"}
	}
	if src.Status != core.StepStatusCompleted || src.Result == nil {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: step.Source,
			Reason: fmt.Sprintf("source step is %s, not completed", src.Status)}
	}

	ds, err := e.frames.Load(ctx, src.Result.ResultPath)
	if err != nil {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: step.Source,
			Reason: fmt.Sprintf("failed to load source result: %v", err)}
	}
	return ds, nil
}

// resolveLookup loads the reference dataset of an enabled table filter.
func (e *Engine) resolveLookup(ctx context.Context, graph *dag.Graph, step *core.Step) (*dataset.Dataset, error) {
	cfg := step.Config.Filter
	if cfg == nil || cfg.Table == nil || !cfg.Table.Enabled {
		return nil, nil
	}

	ref, ok := graph.Step(cfg.Table.SourceStep)
	if !ok {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: cfg.Table.SourceStep,
			Reason: "table filter reference step does not exist"}
	}
	if ref.Status != core.StepStatusCompleted || ref.Result == nil {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: cfg.Table.SourceStep,
			Reason: fmt.Sprintf("table filter reference step is %s, not completed", ref.Status)}
	}

	ds, err := e.frames.Load(ctx, ref.Result.ResultPath)
	if err != nil {
		return nil, &core.SourceNotResolvedError{StepID: step.ID, Source: cfg.Table.SourceStep,
			Reason: fmt.Sprintf("failed to load reference result: %v", err)}
	}
	return ds, nil
}

// timeoutOr converts a deadline expiry into a TimeoutError, leaving other
// errors untouched.
func (e *Engine) timeoutOr(err error, stepID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.TimeoutError{StepID: stepID, Limit: e.timeout}
	}
	return err
}

// tagStep stamps the step ID onto a ConfigError raised by an engine, which
// validates configs without knowing which step owns them.
func tagStep(err error, stepID string) error {
	var cfgErr *core.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.StepID == "" {
		cfgErr.StepID = stepID
	}
	return err
}
