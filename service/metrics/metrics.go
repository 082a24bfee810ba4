// Package metrics defines the sink consumed by the engine for step and
// workflow level counters. The default in-memory sink keeps aggregated
// counters for a running engine; production deployments plug their own
// backend behind the Sink interface.
package metrics

import (
	"sync"
	"time"
)

// Sink receives engine counters. Implementations must be safe for concurrent
// use; the engine calls them while holding per-workflow locks.
type Sink interface {
	// RecordStep counts one step reaching a terminal-ish status
	// (success, failure, rejected, skipped).
	RecordStep(workflowType, status string)

	// RecordWorkflow counts one workflow finishing with the given status
	// (success, failed, cancelled) and wall-clock duration.
	RecordWorkflow(workflowType, status string, duration time.Duration)

	// SetActiveWorkflows records the current active workflow gauge.
	SetActiveWorkflows(workflowType string, count int)
}

// Noop discards all counters.
type Noop struct{}

func (Noop) RecordStep(string, string) {}
func (Noop) RecordWorkflow(string, string, time.Duration) {}
func (Noop) SetActiveWorkflows(string, int) {}

var _ Sink = Noop{}

// Memory aggregates counters in process. It is safe for concurrent use. An
// optional onChange callback observes every update with a copy of the
// aggregated state, taken outside the critical section so slow observers
// (JSON encoding, I/O) do not block engine internals.
type Memory struct {
	mux      sync.Mutex
	steps    map[string]int
	flows    map[string]int
	duration map[string]time.Duration
	active   map[string]int
	onChange func(Summary)
}

// Summary is a copy of the aggregated counters.
type Summary struct {
	Steps     map[string]int
	Workflows map[string]int
	Duration  map[string]time.Duration
	Active    map[string]int
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		steps:    map[string]int{},
		flows:    map[string]int{},
		duration: map[string]time.Duration{},
		active:   map[string]int{},
	}
}

// OnChange registers a callback invoked after every update.
func (m *Memory) OnChange(fn func(Summary)) {
	m.mux.Lock()
	m.onChange = fn
	m.mux.Unlock()
}

func (m *Memory) RecordStep(workflowType, status string) {
	m.mux.Lock()
	m.steps[workflowType+"/"+status]++
	fn, summary := m.onChange, m.summary()
	m.mux.Unlock()
	if fn != nil {
		fn(summary)
	}
}

func (m *Memory) RecordWorkflow(workflowType, status string, duration time.Duration) {
	m.mux.Lock()
	key := workflowType + "/" + status
	m.flows[key]++
	m.duration[key] += duration
	fn, summary := m.onChange, m.summary()
	m.mux.Unlock()
	if fn != nil {
		fn(summary)
	}
}

func (m *Memory) SetActiveWorkflows(workflowType string, count int) {
	m.mux.Lock()
	m.active[workflowType] = count
	fn, summary := m.onChange, m.summary()
	m.mux.Unlock()
	if fn != nil {
		fn(summary)
	}
}

// StepCount returns the counter for a workflowType/status pair.
func (m *Memory) StepCount(workflowType, status string) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.steps[workflowType+"/"+status]
}

// WorkflowCount returns the counter for a workflowType/status pair.
func (m *Memory) WorkflowCount(workflowType, status string) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.flows[workflowType+"/"+status]
}

// ActiveWorkflows returns the last recorded gauge value.
func (m *Memory) ActiveWorkflows(workflowType string) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.active[workflowType]
}

// summary snapshots all counters; callers must hold the lock.
func (m *Memory) summary() Summary {
	out := Summary{
		Steps:     make(map[string]int, len(m.steps)),
		Workflows: make(map[string]int, len(m.flows)),
		Duration:  make(map[string]time.Duration, len(m.duration)),
		Active:    make(map[string]int, len(m.active)),
	}
	for k, v := range m.steps {
		out.Steps[k] = v
	}
	for k, v := range m.flows {
		out.Workflows[k] = v
	}
	for k, v := range m.duration {
		out.Duration[k] = v
	}
	for k, v := range m.active {
		out.Active[k] = v
	}
	return out
}

var _ Sink = (*Memory)(nil)
