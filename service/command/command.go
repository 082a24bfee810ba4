// Package command defines the executor the engine dispatches approved step
// commands to, plus a default implementation running them through a local or
// SSH shell session.
package command

import (
	"context"

	"github.com/stepflow/stepflow/model"
)

// Runner executes one command on behalf of a session and reports its outcome.
// A non-nil error means the command could not complete successfully; the
// returned result, when present, still carries captured output.
type Runner interface {
	Execute(ctx context.Context, sessionID, command string) (*model.ExecutionResult, error)
}
