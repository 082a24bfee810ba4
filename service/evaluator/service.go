package evaluator

import (
	"context"
	"fmt"
	"log"

	"github.com/stepflow/stepflow/model"
)

// FailMode controls the gate's behaviour when an evaluator is unavailable or
// returns an error.
type FailMode string

const (
	// FailOpen lets the step proceed with a diagnostic reason when an
	// evaluator errors. Availability over strictness; the historical default.
	FailOpen FailMode = "open"

	// FailClosed blocks the step when an evaluator errors. For deployments
	// where an unreviewed step is worse than a stalled workflow.
	FailClosed FailMode = "closed"
)

// defaultSafetyScore is assumed when a result carries no safety dimension.
const defaultSafetyScore = 0.8

// defaultSafetyThreshold is the floor the lowest safety score must clear.
const defaultSafetyThreshold = 0.7

// Decision is the gate's combined verdict for a step.
type Decision struct {
	ShouldProceed bool               `json:"shouldProceed"`
	Reason        string             `json:"reason,omitempty"`
	Suggestions   []string           `json:"suggestions,omitempty"`
	Scores        map[string]float64 `json:"scores,omitempty"`
}

// Option customises the gate service.
type Option func(*Service)

// WithEvaluators registers the external policy evaluators to consult.
func WithEvaluators(evaluators ...Evaluator) Option {
	return func(s *Service) {
		s.evaluators = append(s.evaluators, evaluators...)
	}
}

// WithFailMode selects the behaviour on evaluator error.
func WithFailMode(mode FailMode) Option {
	return func(s *Service) {
		s.failMode = mode
	}
}

// WithSafetyThreshold overrides the minimum safety score.
func WithSafetyThreshold(threshold float64) Option {
	return func(s *Service) {
		s.safetyThreshold = threshold
	}
}

// Service combines evaluator verdicts into step gate decisions. It is pure
// and advisory: no workflow state is mutated here.
type Service struct {
	evaluators      []Evaluator
	failMode        FailMode
	safetyThreshold float64
}

// New creates a gate service. With no evaluators configured every step
// proceeds.
func New(options ...Option) *Service {
	s := &Service{
		failMode:        FailOpen,
		safetyThreshold: defaultSafetyThreshold,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Evaluate reviews the step against all configured evaluators.
//
// The step proceeds when every evaluator recommends approve or conditional
// and the lowest safety score clears the threshold. Evaluator errors resolve
// according to the fail mode: open keeps the workflow available and flags the
// step for manual review, closed blocks it.
func (s *Service) Evaluate(ctx context.Context, workflow *model.ActiveWorkflow, step *model.WorkflowStep) *Decision {
	if len(s.evaluators) == 0 {
		return &Decision{ShouldProceed: true, Reason: "no policy evaluators configured"}
	}

	stepCtx := &StepContext{
		ID:                   step.ID,
		Command:              step.Command,
		Description:          step.Description,
		RiskLevel:            step.RiskLevel,
		RequiresConfirmation: step.RequiresConfirmation,
		DependsOn:            append([]string(nil), step.DependsOn...),
	}
	var completed []string
	for _, prior := range workflow.Steps {
		if prior.Status == model.StepStatusCompleted {
			completed = append(completed, prior.ID)
		}
	}
	workflowCtx := &WorkflowContext{
		Name:           workflow.Name,
		StepNumber:     workflow.CurrentStepIndex + 1,
		TotalSteps:     len(workflow.Steps),
		CompletedSteps: completed,
		AutomationMode: string(workflow.AutomationMode),
	}
	userCtx := &UserContext{SessionID: workflow.SessionID}

	decision := &Decision{ShouldProceed: true, Scores: map[string]float64{}}
	minSafety := 1.0
	for _, evaluator := range s.evaluators {
		result, err := evaluator.Evaluate(ctx, stepCtx, workflowCtx, userCtx)
		if err != nil {
			return s.decideOnError(evaluator, err)
		}
		safety := defaultSafetyScore
		if result.Scores != nil {
			if score, ok := result.Scores["safety"]; ok {
				safety = score
			}
		}
		decision.Scores[evaluator.Name()] = safety
		if safety < minSafety {
			minSafety = safety
		}
		if !result.Recommendation.Allows() {
			decision.ShouldProceed = false
			decision.Reason = fmt.Sprintf("%v rejected step %v: %v", evaluator.Name(), step.ID, result.Reasoning)
			decision.Suggestions = append(decision.Suggestions, result.Suggestions...)
			return decision
		}
		decision.Suggestions = append(decision.Suggestions, result.Suggestions...)
	}
	if minSafety <= s.safetyThreshold {
		decision.ShouldProceed = false
		decision.Reason = fmt.Sprintf("safety score %.2f at or below threshold %.2f", minSafety, s.safetyThreshold)
		return decision
	}
	decision.Reason = "approved by all policy evaluators"
	return decision
}

func (s *Service) decideOnError(evaluator Evaluator, err error) *Decision {
	log.Printf("evaluator %v unavailable: %v", evaluator.Name(), err)
	if s.failMode == FailClosed {
		return &Decision{
			ShouldProceed: false,
			Reason:        fmt.Sprintf("policy evaluation unavailable (%v), failing closed: %v", evaluator.Name(), err),
		}
	}
	return &Decision{
		ShouldProceed: true,
		Reason:        fmt.Sprintf("policy evaluation unavailable (%v), proceeding: %v", evaluator.Name(), err),
		Suggestions:   []string{"manual review recommended"},
	}
}
