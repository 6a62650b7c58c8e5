package core

import (
	"fmt"
	"time"
)

// StepType identifies which engine executes a step. The set is closed:
// new step kinds are a change to this package, not a runtime registration.
type StepType string

// Step type constants.
const (
	StepTypeFilter    StepType = "filter"
	StepTypeAggregate StepType = "aggregate"
	StepTypeTransform StepType = "transform"
	StepTypeSummary   StepType = "summary"
)

// ParseStepType validates a raw string against the closed step-type set.
func ParseStepType(s string) (StepType, error) {
	switch StepType(s) {
	case StepTypeFilter, StepTypeAggregate, StepTypeTransform, StepTypeSummary:
		return StepType(s), nil
	}
	return "", fmt.Errorf("unknown step type: %q", s)
}

// StepStatus represents the lifecycle state of a step.
type StepStatus string

// Step status constants.
const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// SourceOriginal is the sentinel source value that resolves to the
// session's originating dataset rather than another step's result.
const SourceOriginal = "original"

// Step is one unit of the analysis pipeline.
//
// Position is the 0-based, contiguous position within the session. Source
// is either SourceOriginal or the ID of a step with a strictly smaller
// Position; the executor enforces that invariant on every mutation, so the
// step list always forms a forward-only dependency tree.
type Step struct {
	ID        string
	SessionID string
	Position  int
	Type      StepType
	Name      string
	Source    string
	Config    StepConfig
	Status    StepStatus
	Result    *StepResult
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Definition strips a step down to the structural fields captured by
// snapshots: everything needed to rebuild the pipeline, nothing about
// execution state or results.
func (s *Step) Definition() StepDefinition {
	return StepDefinition{
		ID:       s.ID,
		Position: s.Position,
		Type:     s.Type,
		Name:     s.Name,
		Source:   s.Source,
		Config:   s.Config,
	}
}

// StepDefinition is the snapshot form of a step: type, config, position
// and source reference, without status or results.
type StepDefinition struct {
	ID       string     `json:"id"`
	Position int        `json:"position"`
	Type     StepType   `json:"type"`
	Name     string     `json:"name"`
	Source   string     `json:"source"`
	Config   StepConfig `json:"config"`
}

// StepResult holds the output of a step's last successful execution.
type StepResult struct {
	ResultPath  string          `json:"result_path"`
	RowCount    int             `json:"row_count"`
	ColumnCount int             `json:"column_count"`
	Columns     []string        `json:"columns,omitempty"`
	Chart       *ChartPayload   `json:"chart,omitempty"`
	Formulas    []FormulaResult `json:"formulas,omitempty"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// FormulaResult is one computed scalar from a summary step.
type FormulaResult struct {
	Formula string  `json:"formula"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
}

// ChartPayload is the render-ready chart contract emitted by a summary
// step. DataStep never renders pixels; an external renderer consumes this.
type ChartPayload struct {
	GraphType  string   `json:"graph_type"`
	Title      string   `json:"title,omitempty"`
	XAxisTitle string   `json:"x_axis_title"`
	YAxisTitle string   `json:"y_axis_title,omitempty"`
	Series     []Series `json:"series"`
}

// Series is one data series in a chart payload.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Point is a single labelled value in a series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Session owns an ordered step list, a snapshot history, and a pointer to
// the originating dataset.
type Session struct {
	ID         string
	Name       string
	SourcePath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Snapshot is an immutable copy of a session's step definitions at a point
// in time. Seq increases monotonically per session.
type Snapshot struct {
	Seq         int64
	SessionID   string
	Definitions []StepDefinition
	CreatedAt   time.Time
}

// ExecutionResult reports the outcome of ExecuteStep, including every
// cascaded dependent, in execution order. Partial success is surfaced
// here rather than hidden: completed outcomes stay completed even when a
// later dependent fails.
type ExecutionResult struct {
	SessionID string
	Outcomes  []StepOutcome
}

// StepOutcome is the per-step entry in an ExecutionResult.
type StepOutcome struct {
	StepID   string
	Name     string
	Status   StepStatus
	RowCount int
	Error    string
}

// Completed returns the IDs of all steps that completed in this execution.
func (r *ExecutionResult) Completed() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Status == StepStatusCompleted {
			ids = append(ids, o.StepID)
		}
	}
	return ids
}
