package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/command"
	"github.com/stepflow/stepflow/service/dao"
	wfmemory "github.com/stepflow/stepflow/service/dao/workflow/memory"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/service/messaging/memory"
	"github.com/stepflow/stepflow/service/messenger"
)

type okRunner struct{}

func (okRunner) Execute(context.Context, string, string) (*model.ExecutionResult, error) {
	return &model.ExecutionResult{ExitCode: 0}, nil
}

var _ command.Runner = okRunner{}

func newController(t *testing.T) (*Service, dao.Service[string, model.ActiveWorkflow]) {
	hub := messenger.NewHub(memory.DefaultConfig())
	exec, err := executor.New(evaluator.New(), okRunner{}, messenger.New(hub))
	require.NoError(t, err)
	workflows := wfmemory.New()
	return New(exec, workflows), workflows
}

func TestParseRequest(t *testing.T) {
	testCases := []struct {
		description string
		payload     string
		expectError bool
		expected    *Request
	}{
		{
			description: "full control message",
			payload:     `{"type":"automation_control","workflow_id":"wf-1","action":"approve_step","step_id":"step-1"}`,
			expected:    &Request{Type: MessageType, WorkflowID: "wf-1", Action: ActionApproveStep, StepID: "step-1"},
		},
		{
			description: "type field optional",
			payload:     `{"workflow_id":"wf-1","action":"pause"}`,
			expected:    &Request{WorkflowID: "wf-1", Action: ActionPause},
		},
		{
			description: "wrong message type",
			payload:     `{"type":"chat","workflow_id":"wf-1","action":"pause"}`,
			expectError: true,
		},
		{
			description: "malformed json",
			payload:     `{"workflow_id":`,
			expectError: true,
		},
	}
	for _, testCase := range testCases {
		actual, err := ParseRequest([]byte(testCase.payload))
		if testCase.expectError {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expected, actual, testCase.description)
	}
}

func TestRequest_Validate(t *testing.T) {
	testCases := []struct {
		description string
		request     *Request
		expectError bool
	}{
		{
			description: "valid pause",
			request:     &Request{WorkflowID: "wf-1", Action: ActionPause},
		},
		{
			description: "missing workflow id",
			request:     &Request{Action: ActionPause},
			expectError: true,
		},
		{
			description: "unknown action",
			request:     &Request{WorkflowID: "wf-1", Action: "restart"},
			expectError: true,
		},
		{
			description: "approve without step id",
			request:     &Request{WorkflowID: "wf-1", Action: ActionApproveStep},
			expectError: true,
		},
		{
			description: "skip with step id",
			request:     &Request{WorkflowID: "wf-1", Action: ActionSkipStep, StepID: "step-2"},
		},
	}
	for _, testCase := range testCases {
		err := testCase.request.Validate()
		if testCase.expectError {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
}

func TestService_Handle(t *testing.T) {
	ctx := context.Background()
	service, workflows := newController(t)
	workflow := model.NewActiveWorkflow("wf-1", "ops", "", "session-1", model.ModeManual, []model.StepDefinition{
		{ID: "step-1", Command: "echo one"},
	})
	require.NoError(t, workflows.Save(ctx, workflow))

	err := service.Handle(ctx, &Request{WorkflowID: "missing", Action: ActionPause})
	assert.ErrorIs(t, err, dao.ErrNotFound)

	require.NoError(t, service.Handle(ctx, &Request{WorkflowID: "wf-1", Action: ActionPause, UserInput: "hold on"}))
	assert.True(t, workflow.Paused)

	require.NoError(t, service.Handle(ctx, &Request{WorkflowID: "wf-1", Action: ActionResume}))
	assert.False(t, workflow.Paused)

	require.NoError(t, service.Handle(ctx, &Request{WorkflowID: "wf-1", Action: ActionCancel}))
	assert.True(t, workflow.Cancelled)

	// Pause after cancellation is recorded but changes nothing.
	require.NoError(t, service.Handle(ctx, &Request{WorkflowID: "wf-1", Action: ActionPause}))
	assert.False(t, workflow.Paused)

	require.Len(t, workflow.Interventions, 4)
	assert.Equal(t, "pause", workflow.Interventions[0].Action)
	assert.Equal(t, "hold on", workflow.Interventions[0].UserInput)
	assert.Equal(t, "cancel", workflow.Interventions[2].Action)
}
