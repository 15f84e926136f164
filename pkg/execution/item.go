// Package execution holds the per-run state threaded through a workflow
// execution: the items flowing along edges, the run context accumulating
// node results, and the trace handles wrapping observability spans.
package execution

// Item is the atomic unit of data flowing along a connection: an opaque
// structured payload plus an optional binary attachment. The engine never
// inspects item contents.
type Item struct {
	Data   map[string]any
	Binary []byte
}

// Output is a node's raw result: one list of items per declared output
// branch, index-aligned with the node's outputs. A branch with zero items
// does not activate its downstream connections.
type Output = [][]Item

// SingleItem wraps one payload into the common single-branch, single-item
// output shape.
func SingleItem(data map[string]any) Output {
	return Output{{Item{Data: data}}}
}

// EmptyOutput is the canonical "nothing to pass on" shape: one branch with
// zero items. A node producing it does not overwrite the run's final result.
func EmptyOutput() Output {
	return Output{{}}
}

// IsEmptyOutput reports whether out is exactly one branch with zero items.
func IsEmptyOutput(out Output) bool {
	return len(out) == 1 && len(out[0]) == 0
}

// BranchSizes returns the number of items on each branch, used for progress
// events and span attributes.
func BranchSizes(out Output) []int {
	sizes := make([]int, len(out))
	for i, branch := range out {
		sizes[i] = len(branch)
	}
	return sizes
}
