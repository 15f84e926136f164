// Package inject provides a node executor that emits items configured in
// the node's parameters. It is the natural executor for workflow entry
// points that seed a run with constant data.
package inject

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/execution"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Type is the node type this executor handles.
const Type = "inject"

// Executor emits the items configured under the node's "items" parameter:
// a list of payload maps, each becoming one item on the single output
// branch. With no configured items it passes its input through unchanged,
// so injected starts can also relay the run's primary input.
type Executor struct{}

// NewExecutor creates an inject executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Invoke implements engine.NodeExecutor.
func (e *Executor) Invoke(_ context.Context, node *workflow.Node, _ *execution.Context, input []execution.Item) (execution.Output, error) {
	raw, ok := node.Parameters["items"]
	if !ok {
		// Pass-through: relay whatever arrived.
		return execution.Output{input}, nil
	}

	configured, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a list of objects", "items")
	}

	items := make([]execution.Item, 0, len(configured))
	for i, entry := range configured {
		data, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d must be an object", i)
		}
		items = append(items, execution.Item{Data: data})
	}

	return execution.Output{items}, nil
}
