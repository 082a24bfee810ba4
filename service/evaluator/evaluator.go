// Package evaluator implements the policy gate consulted before a step is
// offered for approval. Zero or more external policy evaluators review the
// step; their recommendations and safety scores are combined into a single
// go / no-go decision.
package evaluator

import "context"

// Recommendation is the verdict an external policy evaluator returns.
type Recommendation string

const (
	RecommendationApprove     Recommendation = "approve"
	RecommendationConditional Recommendation = "conditional"
	RecommendationReject      Recommendation = "reject"
)

// Allows reports whether the recommendation permits execution.
func (r Recommendation) Allows() bool {
	return r == RecommendationApprove || r == RecommendationConditional
}

// StepContext describes the step under review.
type StepContext struct {
	ID                   string   `json:"id"`
	Command              string   `json:"command"`
	Description          string   `json:"description,omitempty"`
	RiskLevel            string   `json:"riskLevel,omitempty"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	DependsOn            []string `json:"dependsOn,omitempty"`
}

// WorkflowContext describes where in the workflow the step sits.
type WorkflowContext struct {
	Name           string   `json:"name"`
	StepNumber     int      `json:"stepNumber"`
	TotalSteps     int      `json:"totalSteps"`
	CompletedSteps []string `json:"completedSteps,omitempty"`
	AutomationMode string   `json:"automationMode,omitempty"`
}

// UserContext identifies the requesting session. Kept minimal on purpose;
// richer identity is an integration concern.
type UserContext struct {
	SessionID string `json:"sessionId"`
}

// Result is one evaluator's review of a step.
type Result struct {
	Recommendation Recommendation     `json:"recommendation"`
	OverallScore   float64            `json:"overallScore"`
	Reasoning      string             `json:"reasoning,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Suggestions    []string           `json:"suggestions,omitempty"`
}

// Evaluator is an external safety-review component.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, step *StepContext, workflow *WorkflowContext, user *UserContext) (*Result, error)
}
