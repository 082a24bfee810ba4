// Package controller maps inbound control actions onto executor and workflow
// operations. Actions are a closed, typed set dispatched with an exhaustive
// switch.
package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/dao"
	"github.com/stepflow/stepflow/service/executor"
)

// MessageType identifies an inbound automation control message on the wire.
const MessageType = "automation_control"

// Action is a control operation against an active workflow.
type Action string

const (
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
	ActionCancel      Action = "cancel"
	ActionApproveStep Action = "approve_step"
	ActionSkipStep    Action = "skip_step"
)

// Valid reports whether the action is one of the known control operations.
func (a Action) Valid() bool {
	switch a {
	case ActionPause, ActionResume, ActionCancel, ActionApproveStep, ActionSkipStep:
		return true
	}
	return false
}

// Request is a decoded control message.
type Request struct {
	Type       string `json:"type,omitempty"`
	WorkflowID string `json:"workflow_id"`
	Action     Action `json:"action"`
	StepID     string `json:"step_id,omitempty"`
	UserInput  string `json:"user_input,omitempty"`
}

// Validate rejects malformed requests before any lookup happens.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("control request cannot be nil")
	}
	if r.WorkflowID == "" {
		return fmt.Errorf("control request has no workflow id")
	}
	if !r.Action.Valid() {
		return fmt.Errorf("unknown control action %q", r.Action)
	}
	if (r.Action == ActionApproveStep || r.Action == ActionSkipStep) && r.StepID == "" {
		return fmt.Errorf("control action %v requires a step id", r.Action)
	}
	return nil
}

// ParseRequest decodes an inbound automation control message.
func ParseRequest(data []byte) (*Request, error) {
	request := &Request{}
	if err := json.Unmarshal(data, request); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if request.Type != "" && request.Type != MessageType {
		return nil, fmt.Errorf("unexpected control message type %q", request.Type)
	}
	return request, nil
}

// Service translates control requests into executor calls.
type Service struct {
	executor  *executor.Service
	workflows dao.Service[string, model.ActiveWorkflow]
}

// New creates a controller over the workflow registry.
func New(exec *executor.Service, workflows dao.Service[string, model.ActiveWorkflow]) *Service {
	return &Service{executor: exec, workflows: workflows}
}

// Handle applies one control request. Unknown workflows surface as
// dao.ErrNotFound; every accepted action is appended to the workflow's
// intervention log.
func (s *Service) Handle(ctx context.Context, request *Request) error {
	if err := request.Validate(); err != nil {
		return err
	}
	workflow, err := s.workflows.Load(ctx, request.WorkflowID)
	if err != nil {
		return err
	}

	workflow.Lock()
	workflow.AddIntervention(string(request.Action), request.StepID, request.UserInput)
	workflow.Unlock()

	switch request.Action {
	case ActionPause:
		workflow.Lock()
		if !workflow.Cancelled {
			workflow.Paused = true
		}
		workflow.Unlock()
		return nil
	case ActionResume:
		workflow.Lock()
		if !workflow.Cancelled {
			workflow.Paused = false
		}
		workflow.Unlock()
		// Re-examines the step under the current cursor; after a rejection
		// this is still the failed step.
		s.executor.ProcessNextStep(ctx, workflow)
		return nil
	case ActionCancel:
		return s.executor.CancelWorkflow(ctx, workflow)
	case ActionApproveStep:
		return s.executor.ApproveAndExecuteStep(ctx, workflow, request.StepID)
	case ActionSkipStep:
		return s.executor.SkipStep(ctx, workflow, request.StepID)
	}
	return fmt.Errorf("unknown control action %q", request.Action)
}
