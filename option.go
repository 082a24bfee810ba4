package stepflow

import (
	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/command"
	"github.com/stepflow/stepflow/service/dao"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/messenger"
	"github.com/stepflow/stepflow/service/metrics"
	"github.com/stepflow/stepflow/service/planner"
	"github.com/stepflow/stepflow/service/template"
)

// Option customises the engine service.
type Option func(*Service)

// WithConfig overrides the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithEvaluators registers external policy evaluators consulted by the gate.
func WithEvaluators(evaluators ...evaluator.Evaluator) Option {
	return func(s *Service) {
		s.evaluators = append(s.evaluators, evaluators...)
	}
}

// WithCommandRunner overrides the command executor (default: local shell).
func WithCommandRunner(runner command.Runner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

// WithTransport overrides the session transport (default: in-process hub).
func WithTransport(transport messenger.Transport) Option {
	return func(s *Service) {
		s.transport = transport
	}
}

// WithMetrics overrides the metrics sink (default: in-memory).
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Service) {
		s.metrics = sink
	}
}

// WithPlanner wires the natural-language planner collaborator.
func WithPlanner(p planner.Service) Option {
	return func(s *Service) {
		s.planner = p
	}
}

// WithTemplates wires a template service rooted at the given base URL.
func WithTemplates(baseURL string) Option {
	return func(s *Service) {
		s.templates = template.New(baseURL)
	}
}

// WithTemplateService wires a pre-built template service.
func WithTemplateService(templates *template.Service) Option {
	return func(s *Service) {
		s.templates = templates
	}
}

// WithWorkflowDAO overrides the workflow registry.
func WithWorkflowDAO(workflows dao.Service[string, model.ActiveWorkflow]) Option {
	return func(s *Service) {
		s.workflows = workflows
	}
}
