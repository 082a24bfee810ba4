package model

// StepStatus represents the current status of a workflow step.
type StepStatus string

const (
	StepStatusPending         StepStatus = "pending"
	StepStatusWaitingApproval StepStatus = "waitingApproval"
	StepStatusApproved        StepStatus = "approved"
	StepStatusExecuting       StepStatus = "executing"
	StepStatusCompleted       StepStatus = "completed"
	StepStatusSkipped         StepStatus = "skipped"
	StepStatusFailed          StepStatus = "failed"

	// StepStatusPaused is reserved for per-step pausing; the engine never
	// assigns it.
	StepStatusPaused StepStatus = "paused"
)

// IsTerminal reports whether the status is final for a step.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped || s == StepStatusFailed
}

// AutomationMode controls how much human supervision a workflow expects.
// The mode is recorded on the workflow and surfaced in status projections;
// it does not currently alter confirmation behaviour.
type AutomationMode string

const (
	ModeManual        AutomationMode = "manual"
	ModeSemiAutomatic AutomationMode = "semiAutomatic"
	ModeAutomatic     AutomationMode = "automatic"
)
