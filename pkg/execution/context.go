package execution

import (
	"github.com/google/uuid"
)

// Context is the mutable state of one run. It is created at run start,
// owned exclusively by the engine executing that run, and never shared
// across concurrent runs, so it needs no synchronization.
type Context struct {
	// RunID identifies this execution. Generated when the caller supplies
	// none.
	RunID string

	// TenantID identifies the tenant charged for this run.
	TenantID string

	// PrimaryInput is the external payload fed to start nodes.
	PrimaryInput []Item

	// NodeResults maps node name to that node's raw output. Append-only
	// during a run; read by downstream nodes needing upstream data.
	NodeResults map[string]Output

	// CompletedNodes holds the names of nodes that finished without error.
	CompletedNodes map[string]bool

	// Trace is the run-scoped handle into the tracing collaborator,
	// propagated to every node-level span. Never nil; defaults to a no-op.
	Trace RunTrace

	// EmitProgress enables per-node progress events for this run. Error
	// events are offered regardless.
	EmitProgress bool
}

// NewContext creates a run context. An empty runID is replaced with a
// generated UUID; a nil trace degrades to a no-op handle.
func NewContext(runID, tenantID string, primaryInput []Item, trace RunTrace) *Context {
	if runID == "" {
		runID = uuid.New().String()
	}
	if trace == nil {
		trace = NopTrace()
	}
	return &Context{
		RunID:          runID,
		TenantID:       tenantID,
		PrimaryInput:   primaryInput,
		NodeResults:    make(map[string]Output),
		CompletedNodes: make(map[string]bool),
		Trace:          trace,
	}
}

// RecordResult stores a node's output and marks it completed.
func (c *Context) RecordResult(nodeName string, out Output) {
	c.NodeResults[nodeName] = out
	c.CompletedNodes[nodeName] = true
}

// Completed reports whether the named node finished without error.
func (c *Context) Completed(nodeName string) bool {
	return c.CompletedNodes[nodeName]
}

// Result returns the recorded output for a node, or nil if it has not run.
func (c *Context) Result(nodeName string) Output {
	return c.NodeResults[nodeName]
}
