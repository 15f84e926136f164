package execution

import "context"

// RunTrace is the explicit handle into the tracing collaborator for one run.
// Implementations wrap a run-level span; the no-op implementation is used
// when tracing is unconfigured, so callers never branch on its presence.
type RunTrace interface {
	// StartNode opens a node-level span nested under the run span and
	// returns the context carrying it along with a handle for updates.
	StartNode(ctx context.Context, nodeName, nodeType string) (context.Context, NodeTrace)

	// End closes the run span, recording err when non-nil.
	End(err error)
}

// NodeTrace is the handle for one node invocation's span.
type NodeTrace interface {
	// SetBranchSizes records how many items each output branch produced.
	SetBranchSizes(sizes []int)

	// End closes the node span, recording err when non-nil.
	End(err error)
}

type nopRunTrace struct{}

type nopNodeTrace struct{}

// NopTrace returns a RunTrace that records nothing. It is the degradation
// path when no tracing collaborator is configured.
func NopTrace() RunTrace {
	return nopRunTrace{}
}

func (nopRunTrace) StartNode(ctx context.Context, _, _ string) (context.Context, NodeTrace) {
	return ctx, nopNodeTrace{}
}

func (nopRunTrace) End(error) {}

func (nopNodeTrace) SetBranchSizes([]int) {}

func (nopNodeTrace) End(error) {}
