// Package planner defines the natural-language planning collaborator and the
// bridge turning its loosely-typed step payloads into step definitions.
package planner

import (
	"context"
	"fmt"

	"github.com/viant/structology/conv"

	"github.com/stepflow/stepflow/model"
)

// Service plans an ordered step list from a natural-language request. The
// returned steps carry approval flags and dependency references to earlier
// step ids.
type Service interface {
	Plan(ctx context.Context, request string) ([]model.StepDefinition, error)
}

// Bridge converts loosely-typed planner payloads (commonly decoded LLM JSON:
// map slices with string, bool and json.Number values) into typed step
// definitions.
type Bridge struct {
	converter *conv.Converter
}

// NewBridge creates a bridge with lenient conversion options.
func NewBridge() *Bridge {
	options := conv.DefaultOptions()
	options.IgnoreUnmapped = true
	return &Bridge{converter: conv.NewConverter(options)}
}

// Steps converts each raw payload into a step definition. Entries without a
// command are rejected; missing ids get positional defaults so that later
// steps can be referenced by dependency.
func (b *Bridge) Steps(raw []map[string]interface{}) ([]model.StepDefinition, error) {
	steps := make([]model.StepDefinition, 0, len(raw))
	for i, item := range raw {
		var step model.StepDefinition
		if err := b.converter.Convert(item, &step); err != nil {
			return nil, fmt.Errorf("failed to convert planned step %d: %w", i+1, err)
		}
		if step.Command == "" {
			return nil, fmt.Errorf("planned step %d has no command", i+1)
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
