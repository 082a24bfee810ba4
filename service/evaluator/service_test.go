package evaluator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stepflow/stepflow/model"
)

// stubEvaluator returns a fixed result or error.
type stubEvaluator struct {
	name   string
	result *Result
	err    error
}

func (s *stubEvaluator) Name() string { return s.name }

func (s *stubEvaluator) Evaluate(_ context.Context, _ *StepContext, _ *WorkflowContext, _ *UserContext) (*Result, error) {
	return s.result, s.err
}

func testWorkflow() (*model.ActiveWorkflow, *model.WorkflowStep) {
	workflow := model.NewActiveWorkflow("wf-1", "cleanup", "", "session-1", model.ModeManual, []model.StepDefinition{
		{ID: "step-1", Command: "rm -rf /tmp/cache", RiskLevel: "high"},
	})
	return workflow, workflow.Steps[0]
}

func TestService_Evaluate(t *testing.T) {
	testCases := []struct {
		name            string
		options         []Option
		expectProceed   bool
		expectSuggested string
	}{
		{
			name:          "no evaluators configured proceeds",
			expectProceed: true,
		},
		{
			name: "all approve with high safety proceeds",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "workflow", result: &Result{Recommendation: RecommendationApprove, Scores: map[string]float64{"safety": 0.9}}},
				&stubEvaluator{name: "security", result: &Result{Recommendation: RecommendationConditional, Scores: map[string]float64{"safety": 0.8}}},
			)},
			expectProceed: true,
		},
		{
			name: "missing safety score defaults to 0.8 and proceeds",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "workflow", result: &Result{Recommendation: RecommendationApprove}},
			)},
			expectProceed: true,
		},
		{
			name: "rejection blocks",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "workflow", result: &Result{Recommendation: RecommendationApprove, Scores: map[string]float64{"safety": 0.9}}},
				&stubEvaluator{name: "security", result: &Result{
					Recommendation: RecommendationReject,
					Reasoning:      "destructive command",
					Suggestions:    []string{"narrow the path"},
				}},
			)},
			expectProceed:   false,
			expectSuggested: "narrow the path",
		},
		{
			name: "low safety score blocks even when approved",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "workflow", result: &Result{Recommendation: RecommendationApprove, Scores: map[string]float64{"safety": 0.9}}},
				&stubEvaluator{name: "security", result: &Result{Recommendation: RecommendationApprove, Scores: map[string]float64{"safety": 0.5}}},
			)},
			expectProceed: false,
		},
		{
			name: "safety score exactly at threshold blocks",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "security", result: &Result{Recommendation: RecommendationApprove, Scores: map[string]float64{"safety": 0.7}}},
			)},
			expectProceed: false,
		},
		{
			name: "evaluator error fails open by default",
			options: []Option{WithEvaluators(
				&stubEvaluator{name: "security", err: fmt.Errorf("backend unavailable")},
			)},
			expectProceed:   true,
			expectSuggested: "manual review recommended",
		},
		{
			name: "evaluator error fails closed when configured",
			options: []Option{
				WithEvaluators(&stubEvaluator{name: "security", err: fmt.Errorf("backend unavailable")}),
				WithFailMode(FailClosed),
			},
			expectProceed: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			workflow, step := testWorkflow()
			decision := New(tc.options...).Evaluate(context.Background(), workflow, step)
			assert.Equal(t, tc.expectProceed, decision.ShouldProceed)
			assert.NotEmpty(t, decision.Reason)
			if tc.expectSuggested != "" {
				assert.Contains(t, decision.Suggestions, tc.expectSuggested)
			}
		})
	}
}

func TestRecommendation_Allows(t *testing.T) {
	assert.True(t, RecommendationApprove.Allows())
	assert.True(t, RecommendationConditional.Allows())
	assert.False(t, RecommendationReject.Allows())
}
