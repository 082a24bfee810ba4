package stepflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/dao"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/template"
)

func TestService_CreateWorkflowValidation(t *testing.T) {
	svc, err := stepflow.New()
	require.NoError(t, err)
	ctx := context.Background()
	step := model.StepDefinition{Command: "true"}

	testCases := []struct {
		description string
		name        string
		definitions []model.StepDefinition
		sessionID   string
		expectError string
	}{
		{
			description: "empty session",
			definitions: []model.StepDefinition{step},
			expectError: "session id",
		},
		{
			description: "no steps",
			sessionID:   "session-1",
			expectError: "at least one step",
		},
		{
			description: "step without command",
			definitions: []model.StepDefinition{{Description: "noop"}},
			sessionID:   "session-1",
			expectError: "no command",
		},
		{
			description: "duplicate step ids",
			definitions: []model.StepDefinition{{ID: "a", Command: "true"}, {ID: "a", Command: "true"}},
			sessionID:   "session-1",
			expectError: "duplicate step id",
		},
		{
			description: "dependency on later step",
			definitions: []model.StepDefinition{{ID: "a", Command: "true", DependsOn: []string{"b"}}, {ID: "b", Command: "true"}},
			sessionID:   "session-1",
			expectError: "unknown or later step",
		},
		{
			description: "valid workflow",
			definitions: []model.StepDefinition{step},
			sessionID:   "session-1",
		},
	}
	for _, testCase := range testCases {
		id, err := svc.CreateWorkflow(ctx, testCase.name, "", testCase.definitions, testCase.sessionID, model.ModeManual)
		if testCase.expectError != "" {
			require.Error(t, err, testCase.description)
			assert.Contains(t, err.Error(), testCase.expectError, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.NotEmpty(t, id, testCase.description)
	}
}

func TestService_StartUnknownWorkflow(t *testing.T) {
	svc, err := stepflow.New()
	require.NoError(t, err)
	assert.ErrorIs(t, svc.StartWorkflow(context.Background(), "no-such-id"), dao.ErrNotFound)
}

func TestService_CreateWorkflowFromTemplate(t *testing.T) {
	templates := template.New("mem://localhost/unused")
	templates.Upsert("restart", &template.Template{
		Name:        "restart",
		Description: "restart the app",
		Steps: []model.StepDefinition{
			{ID: "step-1", Command: "systemctl restart app"},
		},
	})
	svc, err := stepflow.New(stepflow.WithTemplateService(templates))
	require.NoError(t, err)
	ctx := context.Background()

	workflowID, err := svc.CreateWorkflowFromTemplate(ctx, "restart", "session-1", model.ModeManual)
	require.NoError(t, err)

	status, err := svc.WorkflowStatus(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, "restart", status.Name)
	assert.Nil(t, status.StartedAt, "template instantiation does not start execution")
	require.Len(t, status.Steps, 1)
	assert.Equal(t, model.StepStatusPending, status.Steps[0].Status)

	names, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "restart")

	_, err = svc.CreateWorkflowFromTemplate(ctx, "absent", "session-1", model.ModeManual)
	assert.Error(t, err)
}

func TestService_NoPlannerConfigured(t *testing.T) {
	svc, err := stepflow.New()
	require.NoError(t, err)
	_, err = svc.CreateWorkflowFromNaturalLanguage(context.Background(), "do things", "session-1")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, stepflow.DefaultConfig().Validate())

	config := stepflow.DefaultConfig()
	config.Executor.CommandTimeout = -1
	assert.Error(t, config.Validate())

	config = stepflow.DefaultConfig()
	config.Evaluator.FailMode = "sometimes"
	assert.Error(t, config.Validate())

	config = stepflow.DefaultConfig()
	config.Evaluator.SafetyThreshold = 1.5
	assert.Error(t, config.Validate())

	config = stepflow.DefaultConfig()
	config.Evaluator.FailMode = evaluator.FailClosed
	assert.NoError(t, config.Validate())

	_, err := stepflow.New(stepflow.WithConfig(&stepflow.Config{
		Evaluator: stepflow.EvaluatorConfig{SafetyThreshold: 2},
	}))
	assert.Error(t, err)
}
