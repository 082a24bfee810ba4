package stepflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepflow/stepflow/internal/idgen"
	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/command"
	"github.com/stepflow/stepflow/service/controller"
	"github.com/stepflow/stepflow/service/dao"
	wfmemory "github.com/stepflow/stepflow/service/dao/workflow/memory"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/service/messaging/memory"
	"github.com/stepflow/stepflow/service/messenger"
	"github.com/stepflow/stepflow/service/metrics"
	"github.com/stepflow/stepflow/service/planner"
	"github.com/stepflow/stepflow/service/template"
)

// Service is the engine composition root. It owns the workflow registry and
// exposes creation, start, status and control operations.
type Service struct {
	config     *Config
	workflows  dao.Service[string, model.ActiveWorkflow]
	evaluators []evaluator.Evaluator
	gate       *evaluator.Service
	runner     command.Runner
	transport  messenger.Transport
	messenger  *messenger.Service
	metrics    metrics.Sink
	executor   *executor.Service
	controller *controller.Service
	planner    planner.Service
	templates  *template.Service
}

// New creates an engine service. Unset collaborators get in-process defaults:
// a memory workflow registry, a local shell runner, an in-process event hub
// and an in-memory metrics sink.
func New(options ...Option) (*Service, error) {
	s := &Service{}
	for _, option := range options {
		option(s)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.workflows == nil {
		s.workflows = wfmemory.New()
	}
	if s.runner == nil {
		s.runner = command.NewShell()
	}
	if s.transport == nil {
		s.transport = messenger.NewHub(memory.DefaultConfig())
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMemory()
	}
	s.messenger = messenger.New(s.transport)

	gateOptions := []evaluator.Option{evaluator.WithEvaluators(s.evaluators...)}
	if s.config.Evaluator.FailMode != "" {
		gateOptions = append(gateOptions, evaluator.WithFailMode(s.config.Evaluator.FailMode))
	}
	if s.config.Evaluator.SafetyThreshold > 0 {
		gateOptions = append(gateOptions, evaluator.WithSafetyThreshold(s.config.Evaluator.SafetyThreshold))
	}
	s.gate = evaluator.New(gateOptions...)

	var err error
	s.executor, err = executor.New(s.gate, s.runner, s.messenger,
		executor.WithConfig(s.config.Executor),
		executor.WithMetrics(s.metrics))
	if err != nil {
		return err
	}
	s.controller = controller.New(s.executor, s.workflows)
	return nil
}

// CreateWorkflow registers a new workflow with all steps pending and returns
// its id. Execution does not start until StartWorkflow is called.
func (s *Service) CreateWorkflow(ctx context.Context, name, description string, definitions []model.StepDefinition, sessionID string, mode model.AutomationMode) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}
	if len(definitions) == 0 {
		return "", fmt.Errorf("workflow needs at least one step")
	}
	if name == "" {
		name = "workflow-" + idgen.New()[:8]
	}
	if mode == "" {
		mode = model.ModeManual
	}

	normalized, err := normalizeSteps(definitions)
	if err != nil {
		return "", err
	}
	workflowID := idgen.New()
	workflow := model.NewActiveWorkflow(workflowID, name, description, sessionID, mode, normalized)
	if err := s.workflows.Save(ctx, workflow); err != nil {
		return "", err
	}
	return workflowID, nil
}

// StartWorkflow begins executing a previously created workflow. Unknown ids
// surface as dao.ErrNotFound.
func (s *Service) StartWorkflow(ctx context.Context, workflowID string) error {
	workflow, err := s.workflows.Load(ctx, workflowID)
	if err != nil {
		return err
	}
	return s.executor.StartExecution(ctx, workflow)
}

// ControlWorkflow applies a control request (pause, resume, cancel,
// approve_step, skip_step) to its workflow.
func (s *Service) ControlWorkflow(ctx context.Context, request *controller.Request) error {
	return s.controller.Handle(ctx, request)
}

// WorkflowStatus projects the workflow and its steps into a status DTO.
func (s *Service) WorkflowStatus(ctx context.Context, workflowID string) (*model.WorkflowStatus, error) {
	workflow, err := s.workflows.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	workflow.Lock()
	defer workflow.Unlock()
	return workflow.Snapshot(), nil
}

// ListActiveWorkflows projects all registered workflows. Retention of
// finished workflows is the caller's concern.
func (s *Service) ListActiveWorkflows(ctx context.Context) ([]*model.WorkflowStatus, error) {
	workflows, err := s.workflows.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.WorkflowStatus, 0, len(workflows))
	for _, workflow := range workflows {
		workflow.Lock()
		out = append(out, workflow.Snapshot())
		workflow.Unlock()
	}
	return out, nil
}

// CreateWorkflowFromNaturalLanguage delegates planning to the configured
// planner, registers the resulting workflow and starts it immediately.
func (s *Service) CreateWorkflowFromNaturalLanguage(ctx context.Context, request, sessionID string) (string, error) {
	if s.planner == nil {
		return "", fmt.Errorf("no planner configured")
	}
	definitions, err := s.planner.Plan(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to plan workflow: %w", err)
	}
	name := workflowNameFromRequest(request)
	workflowID, err := s.CreateWorkflow(ctx, name, request, definitions, sessionID, model.ModeSemiAutomatic)
	if err != nil {
		return "", err
	}
	if err := s.StartWorkflow(ctx, workflowID); err != nil {
		return "", err
	}
	return workflowID, nil
}

// CreateWorkflowFromTemplate instantiates a named template as a new workflow
// for the session. The workflow is registered but not started.
func (s *Service) CreateWorkflowFromTemplate(ctx context.Context, templateName, sessionID string, mode model.AutomationMode) (string, error) {
	if s.templates == nil {
		return "", fmt.Errorf("no template service configured")
	}
	tpl, err := s.templates.Template(ctx, templateName)
	if err != nil {
		return "", err
	}
	return s.CreateWorkflow(ctx, tpl.Name, tpl.Description, tpl.Steps, sessionID, mode)
}

// ListTemplates returns the names of all known templates.
func (s *Service) ListTemplates(ctx context.Context) ([]string, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("no template service configured")
	}
	return s.templates.Names(ctx)
}

// Hub returns the in-process event hub, or nil when a custom transport is
// configured.
func (s *Service) Hub() *messenger.Hub {
	hub, _ := s.transport.(*messenger.Hub)
	return hub
}

// Metrics returns the engine's metrics sink.
func (s *Service) Metrics() metrics.Sink {
	return s.metrics
}

// normalizeSteps assigns positional ids to unnamed steps and verifies that
// ids are unique and dependencies reference earlier steps.
func normalizeSteps(definitions []model.StepDefinition) ([]model.StepDefinition, error) {
	out := make([]model.StepDefinition, len(definitions))
	copy(out, definitions)
	seen := map[string]bool{}
	for i := range out {
		step := &out[i]
		if step.Command == "" {
			return nil, fmt.Errorf("step %d has no command", i+1)
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		if seen[step.ID] {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("step %q depends on unknown or later step %q", step.ID, dep)
			}
		}
		seen[step.ID] = true
	}
	return out, nil
}

// workflowNameFromRequest derives a short workflow name from a
// natural-language request.
func workflowNameFromRequest(request string) string {
	name := strings.TrimSpace(request)
	if len(name) > 60 {
		name = strings.TrimSpace(name[:60])
	}
	if name == "" {
		name = "automated-workflow"
	}
	return name
}
