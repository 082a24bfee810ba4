package model

import (
	"sync"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
)

// ExecutionResult captures the outcome of a single command run.
type ExecutionResult struct {
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// WorkflowStep is one unit of work, typically a shell command, with the
// approval and risk metadata needed to gate it.
type WorkflowStep struct {
	ID                   string           `json:"id"`
	Command              string           `json:"command"`
	Description          string           `json:"description,omitempty"`
	Explanation          string           `json:"explanation,omitempty"`
	RequiresConfirmation bool             `json:"requiresConfirmation"`
	RiskLevel            string           `json:"riskLevel,omitempty"`
	EstimatedDuration    string           `json:"estimatedDuration,omitempty"`
	DependsOn            []string         `json:"dependsOn,omitempty"`
	Status               StepStatus       `json:"status"`
	Result               *ExecutionResult `json:"result,omitempty"`
	StartedAt            *time.Time       `json:"startedAt,omitempty"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
}

// Start marks the step as awaiting approval and stamps its start time.
func (s *WorkflowStep) Start() {
	now := clock.Now()
	s.StartedAt = &now
	s.Status = StepStatusWaitingApproval
}

// Complete marks the step as completed with the supplied result.
func (s *WorkflowStep) Complete(result *ExecutionResult) {
	now := clock.Now()
	s.CompletedAt = &now
	s.Result = result
	s.Status = StepStatusCompleted
}

// Fail marks the step as failed, keeping any partial result.
func (s *WorkflowStep) Fail(result *ExecutionResult) {
	now := clock.Now()
	s.CompletedAt = &now
	if result != nil {
		s.Result = result
	}
	s.Status = StepStatusFailed
}

// Skip marks the step as skipped.
func (s *WorkflowStep) Skip() {
	now := clock.Now()
	s.CompletedAt = &now
	s.Status = StepStatusSkipped
}

// StepDefinition is the caller-facing shape used to declare a step before the
// workflow is created. Planner and template bridges both produce it.
type StepDefinition struct {
	ID                   string   `json:"id,omitempty" yaml:"id,omitempty"`
	Command              string   `json:"command" yaml:"command"`
	Description          string   `json:"description,omitempty" yaml:"description,omitempty"`
	Explanation          string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	RequiresConfirmation bool     `json:"requiresConfirmation" yaml:"requiresConfirmation"`
	RiskLevel            string   `json:"riskLevel,omitempty" yaml:"riskLevel,omitempty"`
	EstimatedDuration    string   `json:"estimatedDuration,omitempty" yaml:"estimatedDuration,omitempty"`
	DependsOn            []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

// Intervention records a single user control action taken against a workflow.
type Intervention struct {
	Action    string    `json:"action"`
	StepID    string    `json:"stepId,omitempty"`
	UserInput string    `json:"userInput,omitempty"`
	At        time.Time `json:"at"`
}

// ActiveWorkflow is one in-flight instance of a step sequence executing for a
// session. Steps execute in insertion order; CurrentStepIndex is a monotonic
// cursor while the workflow is neither paused nor cancelled.
//
// All mutation must happen while holding the workflow lock so that control
// actions and step completions arriving on different goroutines cannot race.
type ActiveWorkflow struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	SessionID        string          `json:"sessionId"`
	Steps            []*WorkflowStep `json:"steps"`
	CurrentStepIndex int             `json:"currentStepIndex"`
	AutomationMode   AutomationMode  `json:"automationMode"`
	Paused           bool            `json:"paused"`
	Cancelled        bool            `json:"cancelled"`
	CreatedAt        time.Time       `json:"createdAt"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Interventions    []Intervention  `json:"interventions,omitempty"`

	mux sync.Mutex
}

// NewActiveWorkflow builds a workflow with all steps pending and the cursor
// at the first step.
func NewActiveWorkflow(id, name, description, sessionID string, mode AutomationMode, definitions []StepDefinition) *ActiveWorkflow {
	steps := make([]*WorkflowStep, 0, len(definitions))
	for _, def := range definitions {
		steps = append(steps, &WorkflowStep{
			ID:                   def.ID,
			Command:              def.Command,
			Description:          def.Description,
			Explanation:          def.Explanation,
			RequiresConfirmation: def.RequiresConfirmation,
			RiskLevel:            def.RiskLevel,
			EstimatedDuration:    def.EstimatedDuration,
			DependsOn:            append([]string(nil), def.DependsOn...),
			Status:               StepStatusPending,
		})
	}
	return &ActiveWorkflow{
		ID:             id,
		Name:           name,
		Description:    description,
		SessionID:      sessionID,
		AutomationMode: mode,
		Steps:          steps,
		CreatedAt:      clock.Now(),
	}
}

// Lock acquires the per-workflow mutex serialising control and execution paths.
func (w *ActiveWorkflow) Lock() { w.mux.Lock() }

// Unlock releases the per-workflow mutex.
func (w *ActiveWorkflow) Unlock() { w.mux.Unlock() }

// CurrentStep returns the step under the cursor, or nil when the cursor has
// moved past the last step.
func (w *ActiveWorkflow) CurrentStep() *WorkflowStep {
	if w.CurrentStepIndex < 0 || w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return w.Steps[w.CurrentStepIndex]
}

// Step returns the step with the supplied id, or nil when absent.
func (w *ActiveWorkflow) Step(id string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// Advance moves the cursor to the next step.
func (w *ActiveWorkflow) Advance() {
	if w.CurrentStepIndex < len(w.Steps) {
		w.CurrentStepIndex++
	}
}

// Finished reports whether the cursor moved past the last step.
func (w *ActiveWorkflow) Finished() bool {
	return w.CurrentStepIndex >= len(w.Steps)
}

// AddIntervention appends a user control action to the intervention log.
func (w *ActiveWorkflow) AddIntervention(action, stepID, userInput string) {
	w.Interventions = append(w.Interventions, Intervention{
		Action:    action,
		StepID:    stepID,
		UserInput: userInput,
		At:        clock.Now(),
	})
}

// StepCounts aggregates terminal step statuses for completion reporting.
type StepCounts struct {
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Counts tallies terminal step statuses.
func (w *ActiveWorkflow) Counts() StepCounts {
	var counts StepCounts
	for _, step := range w.Steps {
		switch step.Status {
		case StepStatusCompleted:
			counts.Completed++
		case StepStatusSkipped:
			counts.Skipped++
		case StepStatusFailed:
			counts.Failed++
		}
	}
	return counts
}

// Elapsed returns the wall-clock duration since the workflow started, or zero
// when it has not started yet. When the workflow finished the duration is
// anchored at CompletedAt.
func (w *ActiveWorkflow) Elapsed() time.Duration {
	if w.StartedAt == nil {
		return 0
	}
	if w.CompletedAt != nil {
		return w.CompletedAt.Sub(*w.StartedAt)
	}
	return clock.Now().Sub(*w.StartedAt)
}

// StepView is the per-step slice of a status projection.
type StepView struct {
	ID          string           `json:"id"`
	Command     string           `json:"command"`
	Description string           `json:"description,omitempty"`
	RiskLevel   string           `json:"riskLevel,omitempty"`
	Status      StepStatus       `json:"status"`
	Result      *ExecutionResult `json:"result,omitempty"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// WorkflowStatus is a pure read projection of a workflow and its steps.
// CurrentStep is 1-based; it equals TotalSteps+1 once the workflow drained.
type WorkflowStatus struct {
	WorkflowID     string         `json:"workflowId"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	SessionID      string         `json:"sessionId"`
	AutomationMode AutomationMode `json:"automationMode"`
	CurrentStep    int            `json:"currentStep"`
	TotalSteps     int            `json:"totalSteps"`
	Counts         StepCounts     `json:"counts"`
	Paused         bool           `json:"paused"`
	Cancelled      bool           `json:"cancelled"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	Steps          []StepView     `json:"steps"`
	Interventions  []Intervention `json:"interventions,omitempty"`
}

// Snapshot projects the workflow into a WorkflowStatus. Callers must hold the
// workflow lock; the returned value shares no mutable state with the workflow.
func (w *ActiveWorkflow) Snapshot() *WorkflowStatus {
	steps := make([]StepView, 0, len(w.Steps))
	for _, step := range w.Steps {
		view := StepView{
			ID:          step.ID,
			Command:     step.Command,
			Description: step.Description,
			RiskLevel:   step.RiskLevel,
			Status:      step.Status,
			StartedAt:   copyTime(step.StartedAt),
			CompletedAt: copyTime(step.CompletedAt),
		}
		if step.Result != nil {
			result := *step.Result
			view.Result = &result
		}
		steps = append(steps, view)
	}
	return &WorkflowStatus{
		WorkflowID:     w.ID,
		Name:           w.Name,
		Description:    w.Description,
		SessionID:      w.SessionID,
		AutomationMode: w.AutomationMode,
		CurrentStep:    w.CurrentStepIndex + 1,
		TotalSteps:     len(w.Steps),
		Counts:         w.Counts(),
		Paused:         w.Paused,
		Cancelled:      w.Cancelled,
		CreatedAt:      w.CreatedAt,
		StartedAt:      copyTime(w.StartedAt),
		CompletedAt:    copyTime(w.CompletedAt),
		Steps:          steps,
		Interventions:  append([]Intervention(nil), w.Interventions...),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
