package messenger

import (
	"context"
	"log"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/model"
)

// Service pushes workflow lifecycle events to the session transport. Every
// terminal or blocking transition goes through here so the operator always
// receives a reason string. Delivery failures are logged, never propagated;
// a broken transport must not halt the engine.
type Service struct {
	transport Transport
}

// New creates a messenger backed by the supplied transport.
func New(transport Transport) *Service {
	return &Service{transport: transport}
}

// WorkflowStarted announces the workflow with a summary of all its steps.
func (s *Service) WorkflowStarted(ctx context.Context, w *model.ActiveWorkflow) {
	steps := make([]StepSummary, 0, len(w.Steps))
	for _, step := range w.Steps {
		steps = append(steps, StepSummary{
			ID:                   step.ID,
			Command:              step.Command,
			Description:          step.Description,
			RiskLevel:            step.RiskLevel,
			RequiresConfirmation: step.RequiresConfirmation,
		})
	}
	s.send(ctx, w, EventWorkflowStarted, &WorkflowStarted{Name: w.Name, Steps: steps})
}

// StepConfirmationRequired asks the session to approve or skip the step.
func (s *Service) StepConfirmationRequired(ctx context.Context, w *model.ActiveWorkflow, step *model.WorkflowStep) {
	s.send(ctx, w, EventStepConfirmationRequired, &StepConfirmationRequired{
		StepID:            step.ID,
		StepNumber:        w.CurrentStepIndex + 1,
		TotalSteps:        len(w.Steps),
		Command:           step.Command,
		Description:       step.Description,
		RiskLevel:         step.RiskLevel,
		EstimatedDuration: step.EstimatedDuration,
	})
}

// StepRejected reports a policy gate rejection for the step.
func (s *Service) StepRejected(ctx context.Context, w *model.ActiveWorkflow, step *model.WorkflowStep, reason string, suggestions []string) {
	s.send(ctx, w, EventStepRejected, &StepRejected{
		StepID:      step.ID,
		Reason:      reason,
		Suggestions: suggestions,
	})
}

// StepFailed reports a command execution failure for the step.
func (s *Service) StepFailed(ctx context.Context, w *model.ActiveWorkflow, step *model.WorkflowStep, execErr error) {
	payload := &StepFailed{StepID: step.ID, Result: step.Result}
	if execErr != nil {
		payload.Error = execErr.Error()
	}
	s.send(ctx, w, EventStepFailed, payload)
}

// WorkflowCompleted reports natural completion with terminal step counts.
func (s *Service) WorkflowCompleted(ctx context.Context, w *model.ActiveWorkflow) {
	s.send(ctx, w, EventWorkflowCompleted, &WorkflowCompleted{
		Counts:   w.Counts(),
		Duration: w.Elapsed(),
	})
}

// WorkflowCancelled reports a forced termination.
func (s *Service) WorkflowCancelled(ctx context.Context, w *model.ActiveWorkflow) {
	s.send(ctx, w, EventWorkflowCancelled, &WorkflowCancelled{
		CancelledAtStep: w.CurrentStepIndex + 1,
		TotalSteps:      len(w.Steps),
	})
}

func (s *Service) send(ctx context.Context, w *model.ActiveWorkflow, eventType EventType, data interface{}) {
	if s == nil || s.transport == nil {
		return
	}
	event := &Event{
		Type:       eventType,
		WorkflowID: w.ID,
		SessionID:  w.SessionID,
		CreatedAt:  clock.Now(),
		Data:       data,
	}
	if err := s.transport.Send(ctx, w.SessionID, event); err != nil {
		log.Printf("messenger: failed to send %v for workflow %v: %v", eventType, w.ID, err)
	}
}
