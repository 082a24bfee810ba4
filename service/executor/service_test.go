package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/messaging/memory"
	"github.com/stepflow/stepflow/service/messenger"
	"github.com/stepflow/stepflow/service/metrics"
)

// stubRunner succeeds unless the command is listed in failures.
type stubRunner struct {
	failures map[string]error
	executed []string
}

func (r *stubRunner) Execute(_ context.Context, _ string, command string) (*model.ExecutionResult, error) {
	r.executed = append(r.executed, command)
	if err, ok := r.failures[command]; ok {
		return &model.ExecutionResult{ExitCode: 1, Stderr: err.Error()}, err
	}
	return &model.ExecutionResult{ExitCode: 0, Stdout: "ok"}, nil
}

// rejectingEvaluator rejects commands listed in rejected.
type rejectingEvaluator struct {
	rejected map[string]bool
}

func (e *rejectingEvaluator) Name() string { return "security" }

func (e *rejectingEvaluator) Evaluate(_ context.Context, step *evaluator.StepContext, _ *evaluator.WorkflowContext, _ *evaluator.UserContext) (*evaluator.Result, error) {
	if e.rejected[step.Command] {
		return &evaluator.Result{
			Recommendation: evaluator.RecommendationReject,
			Reasoning:      "command is too dangerous",
			Suggestions:    []string{"add a --dry-run flag"},
		}, nil
	}
	return &evaluator.Result{Recommendation: evaluator.RecommendationApprove, Scores: map[string]float64{"safety": 0.95}}, nil
}

type fixture struct {
	service *Service
	runner  *stubRunner
	hub     *messenger.Hub
	sink    *metrics.Memory
}

func newFixture(t *testing.T, gateOptions ...evaluator.Option) *fixture {
	runner := &stubRunner{failures: map[string]error{}}
	hub := messenger.NewHub(memory.DefaultConfig())
	sink := metrics.NewMemory()
	service, err := New(evaluator.New(gateOptions...), runner, messenger.New(hub), WithMetrics(sink))
	require.NoError(t, err)
	return &fixture{service: service, runner: runner, hub: hub, sink: sink}
}

func (f *fixture) receive(t *testing.T, sessionID string) *messenger.Event {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, err := f.hub.Receive(ctx, sessionID)
	require.NoError(t, err)
	return event
}

func workflowOf(definitions ...model.StepDefinition) *model.ActiveWorkflow {
	return model.NewActiveWorkflow("wf-1", "maintenance", "", "session-1", model.ModeSemiAutomatic, definitions)
}

func TestService_ApproveAndSkipFlow(t *testing.T) {
	f := newFixture(t)
	workflow := workflowOf(
		model.StepDefinition{ID: "step-1", Command: "echo one", RequiresConfirmation: true},
		model.StepDefinition{ID: "step-2", Command: "echo two", RequiresConfirmation: true},
		model.StepDefinition{ID: "step-3", Command: "echo three", RequiresConfirmation: true},
	)
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))

	started := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventWorkflowStarted, started.Type)
	assert.Equal(t, 3, len(started.Data.(*messenger.WorkflowStarted).Steps))

	confirmation := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventStepConfirmationRequired, confirmation.Type)
	assert.Equal(t, "step-1", confirmation.Data.(*messenger.StepConfirmationRequired).StepID)

	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-1"))
	assert.Equal(t, model.StepStatusCompleted, workflow.Steps[0].Status)

	confirmation = f.receive(t, "session-1")
	assert.Equal(t, "step-2", confirmation.Data.(*messenger.StepConfirmationRequired).StepID)

	require.NoError(t, f.service.SkipStep(ctx, workflow, "step-2"))
	assert.Equal(t, model.StepStatusSkipped, workflow.Steps[1].Status)

	confirmation = f.receive(t, "session-1")
	assert.Equal(t, "step-3", confirmation.Data.(*messenger.StepConfirmationRequired).StepID)

	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-3"))

	completed := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventWorkflowCompleted, completed.Type)
	counts := completed.Data.(*messenger.WorkflowCompleted).Counts
	assert.Equal(t, model.StepCounts{Completed: 2, Skipped: 1, Failed: 0}, counts)

	// Conservation: all steps accounted for, cursor drained.
	assert.Equal(t, len(workflow.Steps), counts.Completed+counts.Skipped+counts.Failed)
	assert.True(t, workflow.Finished())
	assert.NotNil(t, workflow.CompletedAt)
	assert.Equal(t, 0, f.sink.ActiveWorkflows("automated"))
	assert.Equal(t, 1, f.sink.WorkflowCount("automated", "success"))
}

func TestService_SkipsStepWithUnmetDependency(t *testing.T) {
	f := newFixture(t)
	f.runner.failures["exit 1"] = fmt.Errorf("exit status 1")
	workflow := workflowOf(
		model.StepDefinition{ID: "step-a", Command: "exit 1"},
		model.StepDefinition{ID: "step-b", Command: "echo b", DependsOn: []string{"step-a"}},
	)
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))
	f.receive(t, "session-1") // start_workflow
	f.receive(t, "session-1") // confirmation for step-a

	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-a"))
	assert.Equal(t, model.StepStatusFailed, workflow.Steps[0].Status)
	assert.True(t, workflow.Paused)

	failed := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventStepFailed, failed.Type)

	// Resume re-enters at step-a, still failed; it goes back through the
	// gate and waits for approval again.
	workflow.Lock()
	workflow.Paused = false
	workflow.Unlock()
	f.service.ProcessNextStep(ctx, workflow)

	confirmation := f.receive(t, "session-1")
	assert.Equal(t, "step-a", confirmation.Data.(*messenger.StepConfirmationRequired).StepID)

	// Skipping the failed step moves the cursor to step-b, whose dependency
	// never completed: it is skipped without execution.
	require.NoError(t, f.service.SkipStep(ctx, workflow, "step-a"))
	assert.Equal(t, model.StepStatusSkipped, workflow.Steps[1].Status)
	assert.Equal(t, []string{"exit 1"}, f.runner.executed)

	completed := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventWorkflowCompleted, completed.Type)
}

func TestService_PolicyRejectionPausesWorkflow(t *testing.T) {
	f := newFixture(t, evaluator.WithEvaluators(&rejectingEvaluator{rejected: map[string]bool{"rm -rf /": true}}))
	workflow := workflowOf(
		model.StepDefinition{ID: "step-1", Command: "rm -rf /", RiskLevel: "critical"},
		model.StepDefinition{ID: "step-2", Command: "echo after"},
	)
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))
	f.receive(t, "session-1") // start_workflow

	rejected := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventStepRejected, rejected.Type)
	payload := rejected.Data.(*messenger.StepRejected)
	assert.Equal(t, "step-1", payload.StepID)
	assert.Contains(t, payload.Reason, "too dangerous")
	assert.Contains(t, payload.Suggestions, "add a --dry-run flag")

	assert.Equal(t, model.StepStatusFailed, workflow.Steps[0].Status)
	assert.True(t, workflow.Paused)
	// Fail closed on reject: nothing past the rejected step leaves pending.
	assert.Equal(t, model.StepStatusPending, workflow.Steps[1].Status)
	assert.Equal(t, 0, workflow.CurrentStepIndex)
	assert.Empty(t, f.runner.executed)
	assert.Equal(t, 1, f.sink.StepCount("automated", "rejected"))
}

func TestService_ApproveMismatchedStepIsIgnored(t *testing.T) {
	f := newFixture(t)
	workflow := workflowOf(
		model.StepDefinition{ID: "step-1", Command: "echo one"},
		model.StepDefinition{ID: "step-2", Command: "echo two"},
	)
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))
	f.receive(t, "session-1")
	f.receive(t, "session-1")

	// Stale client state: approving a step that is not under the cursor has
	// no effect.
	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-2"))
	assert.Equal(t, model.StepStatusWaitingApproval, workflow.Steps[0].Status)
	assert.Equal(t, model.StepStatusPending, workflow.Steps[1].Status)
	assert.Empty(t, f.runner.executed)
}

func TestService_CancellationIsFinal(t *testing.T) {
	f := newFixture(t)
	definitions := make([]model.StepDefinition, 0, 5)
	for i := 1; i <= 5; i++ {
		definitions = append(definitions, model.StepDefinition{ID: fmt.Sprintf("step-%d", i), Command: fmt.Sprintf("echo %d", i)})
	}
	workflow := workflowOf(definitions...)
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))
	f.receive(t, "session-1")
	f.receive(t, "session-1")
	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-1"))
	f.receive(t, "session-1") // confirmation for step-2

	require.NoError(t, f.service.CancelWorkflow(ctx, workflow))
	cancelled := f.receive(t, "session-1")
	assert.Equal(t, messenger.EventWorkflowCancelled, cancelled.Type)
	assert.NotNil(t, workflow.CompletedAt)
	completedAt := *workflow.CompletedAt

	// No approve or skip changes anything afterwards.
	require.NoError(t, f.service.ApproveAndExecuteStep(ctx, workflow, "step-2"))
	require.NoError(t, f.service.SkipStep(ctx, workflow, "step-2"))
	require.NoError(t, f.service.CancelWorkflow(ctx, workflow))

	assert.Equal(t, model.StepStatusWaitingApproval, workflow.Steps[1].Status)
	for _, step := range workflow.Steps[2:] {
		assert.Equal(t, model.StepStatusPending, step.Status)
	}
	assert.Equal(t, completedAt, *workflow.CompletedAt)
	assert.Equal(t, []string{"echo 1"}, f.runner.executed)
	assert.Equal(t, 1, f.sink.WorkflowCount("automated", "cancelled"))
}

func TestService_StartTwiceFails(t *testing.T) {
	f := newFixture(t)
	workflow := workflowOf(model.StepDefinition{ID: "step-1", Command: "echo one"})
	ctx := context.Background()

	require.NoError(t, f.service.StartExecution(ctx, workflow))
	assert.Error(t, f.service.StartExecution(ctx, workflow))
}
