package core

// Store defines the durable repository for sessions, steps, and snapshots.
// The engine only requires get/list/create/update semantics; the concrete
// persistence technology lives behind this interface.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Session operations
	CreateSession(name, sourcePath string) (*Session, error)
	GetSession(id string) (*Session, error)
	ListSessions() ([]*Session, error)
	DeleteSession(id string) error

	// Step operations. ListSteps returns steps ordered by position.
	CreateStep(step *Step) error
	GetStep(id string) (*Step, error)
	ListSteps(sessionID string) ([]*Step, error)
	UpdateStepConfig(id string, cfg StepConfig) error
	UpdateStepStatus(id string, status StepStatus, errMsg string) error
	UpdateStepResult(id string, result *StepResult) error
	UpdateStepPosition(id string, position int) error
	// UpdateStepSource re-points a step at a different upstream, used when
	// its original source step is deleted.
	UpdateStepSource(id string, source string) error
	DeleteStep(id string) error
	// ReplaceSteps atomically swaps a session's step list for the given
	// definitions, used by snapshot revert. All steps come back pending.
	ReplaceSteps(sessionID string, defs []StepDefinition) error

	// Snapshot operations. Seq is assigned monotonically per session.
	SaveSnapshot(sessionID string, defs []StepDefinition) (*Snapshot, error)
	GetSnapshot(sessionID string, seq int64) (*Snapshot, error)
	ListSnapshots(sessionID string) ([]*Snapshot, error)
}
