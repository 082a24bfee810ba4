// Package stepflow implements a workflow automation and approval engine: it
// executes multi-step operational procedures (typically shell commands) under
// combined human and automated safety oversight.
//
// A workflow is created from explicit step definitions, a named template or a
// natural-language plan, then driven step by step: every step passes a
// dependency check and a policy gate before the session is asked to approve
// or skip it. Approved commands run through a pluggable command runner; every
// terminal or blocking transition is pushed to the session transport so an
// operator always has a reason string. Control messages (pause, resume,
// cancel, approve_step, skip_step) re-enter the engine through the
// controller.
//
// The engine is single-process with in-memory state. Steps within a workflow
// are strictly sequential; mutation is serialised per workflow, so many
// workflows can run concurrently against the shared registry.
package stepflow
