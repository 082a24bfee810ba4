// Package executor drives the per-workflow step state machine: dependency
// checks, the policy gate, command dispatch and completion bookkeeping.
//
// A workflow advances strictly sequentially. The engine suspends after
// emitting a confirmation-required event (awaiting approve/skip) and after a
// rejection or execution failure (awaiting resume or cancel); control
// messages re-enter through the same methods. All state transitions happen
// under the per-workflow lock so a control message and a step completion
// racing on different goroutines cannot lose updates.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/command"
	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/messenger"
	"github.com/stepflow/stepflow/service/metrics"
	"github.com/stepflow/stepflow/tracing"
)

// workflowType tags all metrics emitted by this executor.
const workflowType = "automated"

// Config represents executor configuration.
type Config struct {
	// CommandTimeout bounds a single command execution.
	CommandTimeout time.Duration `json:"commandTimeout" yaml:"commandTimeout"`

	// EvaluationTimeout bounds a single policy gate evaluation.
	EvaluationTimeout time.Duration `json:"evaluationTimeout" yaml:"evaluationTimeout"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:    5 * time.Minute,
		EvaluationTimeout: 30 * time.Second,
	}
}

// Service owns the step-stepping state machine.
type Service struct {
	config    Config
	gate      *evaluator.Service
	runner    command.Runner
	messenger *messenger.Service
	metrics   metrics.Sink
	active    int64
}

// Option customises the executor service.
type Option func(*Service)

// WithConfig overrides the executor configuration.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Service) {
		s.metrics = sink
	}
}

// New creates an executor service.
func New(gate *evaluator.Service, runner command.Runner, msn *messenger.Service, options ...Option) (*Service, error) {
	if gate == nil {
		return nil, fmt.Errorf("evaluator gate is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("command runner is required")
	}
	if msn == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	s := &Service{
		config:    DefaultConfig(),
		gate:      gate,
		runner:    runner,
		messenger: msn,
		metrics:   metrics.Noop{},
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// StartExecution begins driving the workflow: stamps its start time,
// announces all steps to the session and processes the first step.
func (s *Service) StartExecution(ctx context.Context, w *model.ActiveWorkflow) error {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("executor.StartExecution %s", w.Name))
	defer tracing.EndSpan(span, nil)
	span.WithAttributes(map[string]string{"workflow.id": w.ID})

	w.Lock()
	defer w.Unlock()
	if w.Cancelled {
		return fmt.Errorf("workflow %v is cancelled", w.ID)
	}
	if w.StartedAt != nil {
		return fmt.Errorf("workflow %v already started", w.ID)
	}
	now := clock.Now()
	w.StartedAt = &now
	s.metrics.SetActiveWorkflows(workflowType, int(atomic.AddInt64(&s.active, 1)))
	s.messenger.WorkflowStarted(ctx, w)
	s.processNextStepLocked(ctx, w)
	return nil
}

// ProcessNextStep examines the step under the cursor and advances the
// workflow as far as it can without external input.
func (s *Service) ProcessNextStep(ctx context.Context, w *model.ActiveWorkflow) {
	w.Lock()
	defer w.Unlock()
	s.processNextStepLocked(ctx, w)
}

// processNextStepLocked is the cursor loop; callers must hold the workflow
// lock. A paused or cancelled workflow is left untouched. Steps with unmet
// dependencies are skipped without consulting the policy gate; a gate
// rejection fails the step and pauses the workflow; an approved gate leaves
// the step waiting for an explicit approve/skip control.
func (s *Service) processNextStepLocked(ctx context.Context, w *model.ActiveWorkflow) {
	for {
		if w.Paused || w.Cancelled {
			return
		}
		if w.Finished() {
			s.finalizeLocked(ctx, w)
			return
		}
		step := w.CurrentStep()
		if step.Status == model.StepStatusApproved || step.Status == model.StepStatusExecuting {
			// Execution in flight; its completion path resumes the cursor.
			return
		}

		if unmet := s.unmetDependencies(w, step); len(unmet) > 0 {
			log.Printf("executor: skipping step %v of workflow %v, dependencies not completed: %v", step.ID, w.ID, unmet)
			step.Skip()
			w.Advance()
			continue
		}

		decision := s.evaluate(ctx, w, step)
		if !decision.ShouldProceed {
			step.Fail(nil)
			w.Paused = true
			s.metrics.RecordStep(workflowType, "rejected")
			s.messenger.StepRejected(ctx, w, step, decision.Reason, decision.Suggestions)
			return
		}

		step.Start()
		s.messenger.StepConfirmationRequired(ctx, w, step)
		return
	}
}

// ApproveAndExecuteStep runs the current step's command after an explicit
// approval. A stale step id (client raced the cursor) is logged and ignored.
// On success the cursor advances and processing continues; on failure the
// step fails and the workflow pauses awaiting resume or cancel.
func (s *Service) ApproveAndExecuteStep(ctx context.Context, w *model.ActiveWorkflow, stepID string) error {
	w.Lock()
	if w.Cancelled {
		w.Unlock()
		log.Printf("executor: ignoring approval for step %v, workflow %v is cancelled", stepID, w.ID)
		return nil
	}
	step := w.CurrentStep()
	if step == nil || step.ID != stepID {
		current := currentStepID(w)
		w.Unlock()
		log.Printf("executor: ignoring approval for step %v, current step of workflow %v is %v", stepID, w.ID, current)
		return nil
	}
	if step.Status != model.StepStatusWaitingApproval {
		status := step.Status
		w.Unlock()
		log.Printf("executor: ignoring approval for step %v of workflow %v in status %v", stepID, w.ID, status)
		return nil
	}
	// Approval transitions straight into dispatch; any status projection
	// taken while the command runs sees the step as executing.
	step.Status = model.StepStatusExecuting
	// Release the lock for the duration of the command so control actions
	// (pause, cancel) can still reach the workflow while it runs.
	w.Unlock()

	result, err := s.execute(ctx, w, step)

	w.Lock()
	defer w.Unlock()
	if w.Cancelled {
		// Terminal state already reported; leave statuses untouched.
		return nil
	}
	if err != nil {
		step.Fail(result)
		w.Paused = true
		s.metrics.RecordStep(workflowType, "failed")
		s.messenger.StepFailed(ctx, w, step, err)
		return nil
	}
	step.Complete(result)
	s.metrics.RecordStep(workflowType, "success")
	w.Advance()
	s.processNextStepLocked(ctx, w)
	return nil
}

// SkipStep skips the current step on explicit user request. A stale step id
// is logged and ignored.
func (s *Service) SkipStep(ctx context.Context, w *model.ActiveWorkflow, stepID string) error {
	w.Lock()
	defer w.Unlock()
	if w.Cancelled {
		log.Printf("executor: ignoring skip for step %v, workflow %v is cancelled", stepID, w.ID)
		return nil
	}
	step := w.CurrentStep()
	if step == nil || step.ID != stepID {
		log.Printf("executor: ignoring skip for step %v, current step of workflow %v is %v", stepID, w.ID, currentStepID(w))
		return nil
	}
	if step.Status == model.StepStatusApproved || step.Status == model.StepStatusExecuting {
		log.Printf("executor: ignoring skip for step %v of workflow %v, command in flight", stepID, w.ID)
		return nil
	}
	step.Skip()
	s.metrics.RecordStep(workflowType, "skipped")
	w.Advance()
	s.processNextStepLocked(ctx, w)
	return nil
}

// CancelWorkflow force-terminates the workflow. Cancellation is cooperative:
// flags are flipped and a terminal event is emitted, but an in-flight command
// is not interrupted beyond its context timeout.
func (s *Service) CancelWorkflow(ctx context.Context, w *model.ActiveWorkflow) error {
	w.Lock()
	defer w.Unlock()
	if w.Cancelled || w.CompletedAt != nil {
		return nil
	}
	w.Cancelled = true
	now := clock.Now()
	w.CompletedAt = &now
	if w.StartedAt != nil {
		s.metrics.RecordWorkflow(workflowType, "cancelled", w.Elapsed())
		s.metrics.SetActiveWorkflows(workflowType, int(atomic.AddInt64(&s.active, -1)))
	}
	s.messenger.WorkflowCancelled(ctx, w)
	return nil
}

// finalizeLocked records natural completion once the cursor drained all steps.
func (s *Service) finalizeLocked(ctx context.Context, w *model.ActiveWorkflow) {
	if w.CompletedAt != nil {
		return
	}
	now := clock.Now()
	w.CompletedAt = &now
	status := "success"
	if w.Counts().Failed > 0 {
		status = "failed"
	}
	s.metrics.RecordWorkflow(workflowType, status, w.Elapsed())
	s.metrics.SetActiveWorkflows(workflowType, int(atomic.AddInt64(&s.active, -1)))
	s.messenger.WorkflowCompleted(ctx, w)
}

// unmetDependencies returns dependency ids that did not complete. An id that
// does not resolve to a step in the same workflow counts as unmet.
func (s *Service) unmetDependencies(w *model.ActiveWorkflow, step *model.WorkflowStep) []string {
	var unmet []string
	for _, id := range step.DependsOn {
		dependency := w.Step(id)
		if dependency == nil || dependency.Status != model.StepStatusCompleted {
			unmet = append(unmet, id)
		}
	}
	return unmet
}

// evaluate consults the policy gate under the configured timeout.
func (s *Service) evaluate(ctx context.Context, w *model.ActiveWorkflow, step *model.WorkflowStep) *evaluator.Decision {
	if s.config.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.EvaluationTimeout)
		defer cancel()
	}
	return s.gate.Evaluate(ctx, w, step)
}

// execute dispatches the command under the configured timeout.
func (s *Service) execute(ctx context.Context, w *model.ActiveWorkflow, step *model.WorkflowStep) (result *model.ExecutionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("executor.execute %s/%s", w.ID, step.ID))
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"step.command": step.Command})

	if s.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CommandTimeout)
		defer cancel()
	}
	return s.runner.Execute(ctx, w.SessionID, step.Command)
}

func currentStepID(w *model.ActiveWorkflow) string {
	if step := w.CurrentStep(); step != nil {
		return step.ID
	}
	return "<none>"
}
