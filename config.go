package stepflow

import (
	"fmt"

	"github.com/stepflow/stepflow/service/evaluator"
	"github.com/stepflow/stepflow/service/executor"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON or YAML; the zero value inherits package defaults.
type Config struct {
	Executor  executor.Config `json:"executor" yaml:"executor"`
	Evaluator EvaluatorConfig `json:"evaluator" yaml:"evaluator"`
}

// EvaluatorConfig configures the policy gate.
type EvaluatorConfig struct {
	// FailMode selects behaviour when a policy evaluator errors:
	// "open" (default) proceeds with a manual-review suggestion,
	// "closed" blocks the step.
	FailMode evaluator.FailMode `json:"failMode" yaml:"failMode"`

	// SafetyThreshold is the floor the lowest safety score must clear.
	SafetyThreshold float64 `json:"safetyThreshold" yaml:"safetyThreshold"`
}

// DefaultConfig returns a Config populated with package defaults.
func DefaultConfig() *Config {
	return &Config{
		Executor: executor.DefaultConfig(),
		Evaluator: EvaluatorConfig{
			FailMode:        evaluator.FailOpen,
			SafetyThreshold: 0.7,
		},
	}
}

// Validate returns an error describing invalid settings, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Executor.CommandTimeout < 0 {
		return fmt.Errorf("executor.commandTimeout must not be negative")
	}
	if c.Executor.EvaluationTimeout < 0 {
		return fmt.Errorf("executor.evaluationTimeout must not be negative")
	}
	switch c.Evaluator.FailMode {
	case "", evaluator.FailOpen, evaluator.FailClosed:
	default:
		return fmt.Errorf("evaluator.failMode must be %q or %q", evaluator.FailOpen, evaluator.FailClosed)
	}
	if c.Evaluator.SafetyThreshold < 0 || c.Evaluator.SafetyThreshold > 1 {
		return fmt.Errorf("evaluator.safetyThreshold must be within [0, 1]")
	}
	return nil
}
