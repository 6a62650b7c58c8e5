package core

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError reports a caller-fixable configuration problem: a missing or
// malformed field, an unknown column, contradictory bounds. It is never
// retried automatically.
type ConfigError struct {
	StepID string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid config")
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.StepID != "" {
		fmt.Fprintf(&b, " (step %s)", e.StepID)
	}
	return b.String()
}

// SourceNotResolvedError reports that a step's source reference could not
// be resolved to a completed result: the referenced step has not been
// executed, has failed, or has been deleted.
type SourceNotResolvedError struct {
	StepID string
	Source string
	Reason string
}

func (e *SourceNotResolvedError) Error() string {
	return fmt.Sprintf("source %q not resolved for step %s: %s", e.Source, e.StepID, e.Reason)
}

// TimeoutError reports that an execution (including its cascade) exceeded
// the configured time bound. Steps completed before the bound remain
// completed.
type TimeoutError struct {
	StepID string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution of step %s exceeded timeout of %s", e.StepID, e.Limit)
}

// CascadeError reports a dependent-step failure during a cascade.
// Completed lists the step IDs that finished before the failure; those are
// not rolled back (explicit at-least-once semantics).
type CascadeError struct {
	FailedStepID string
	Completed    []string
	Err          error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade failed at step %s after %d completed step(s): %v",
		e.FailedStepID, len(e.Completed), e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }
