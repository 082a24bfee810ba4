package messenger

import (
	"time"

	"github.com/stepflow/stepflow/model"
)

// EventType identifies an outbound session lifecycle event.
type EventType string

const (
	EventWorkflowStarted          EventType = "start_workflow"
	EventStepConfirmationRequired EventType = "step_confirmation_required"
	EventStepRejected             EventType = "step_rejected_by_judge"
	EventStepFailed               EventType = "step_failed"
	EventWorkflowCompleted        EventType = "workflow_completed"
	EventWorkflowCancelled        EventType = "workflow_cancelled"
)

// Event is the envelope delivered to the session transport. Data holds one of
// the payload structs below, matching Type.
type Event struct {
	Type       EventType   `json:"type"`
	WorkflowID string      `json:"workflow_id"`
	SessionID  string      `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
	Data       interface{} `json:"data,omitempty"`
}

// StepSummary describes one step in a workflow start announcement.
type StepSummary struct {
	ID                   string `json:"id"`
	Command              string `json:"command"`
	Description          string `json:"description,omitempty"`
	RiskLevel            string `json:"risk_level,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

// WorkflowStarted lists all steps of a freshly started workflow.
type WorkflowStarted struct {
	Name  string        `json:"name"`
	Steps []StepSummary `json:"steps"`
}

// StepConfirmationRequired asks the session to approve or skip the current step.
type StepConfirmationRequired struct {
	StepID            string `json:"step_id"`
	StepNumber        int    `json:"step_number"`
	TotalSteps        int    `json:"total_steps"`
	Command           string `json:"command"`
	Description       string `json:"description,omitempty"`
	RiskLevel         string `json:"risk_level,omitempty"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
}

// StepRejected reports a policy gate rejection.
type StepRejected struct {
	StepID      string   `json:"step_id"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// StepFailed reports a command execution failure.
type StepFailed struct {
	StepID string                 `json:"step_id"`
	Error  string                 `json:"error"`
	Result *model.ExecutionResult `json:"result,omitempty"`
}

// WorkflowCompleted reports terminal step counts on natural completion.
type WorkflowCompleted struct {
	Counts   model.StepCounts `json:"counts"`
	Duration time.Duration    `json:"duration"`
}

// WorkflowCancelled reports a forced termination.
type WorkflowCancelled struct {
	CancelledAtStep int `json:"cancelled_at_step"`
	TotalSteps      int `json:"total_steps"`
}
