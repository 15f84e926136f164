package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/execution"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// NodeExecutor performs the work of one node type. Implementations receive
// the node definition, the run context for upstream lookups, and the items
// assembled from the node's incoming connections; they return one item list
// per output branch. The engine treats every node type uniformly through
// this single capability.
type NodeExecutor interface {
	Invoke(ctx context.Context, node *workflow.Node, execCtx *execution.Context, input []execution.Item) (execution.Output, error)
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node *workflow.Node, execCtx *execution.Context, input []execution.Item) (execution.Output, error)

// Invoke implements NodeExecutor.
func (f ExecutorFunc) Invoke(ctx context.Context, node *workflow.Node, execCtx *execution.Context, input []execution.Item) (execution.Output, error) {
	return f(ctx, node, execCtx, input)
}

// Registry maps node types to their executors. Populate it at startup;
// lookups for unregistered types are configuration errors, distinct from a
// node's own runtime failure.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]NodeExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]NodeExecutor)}
}

// Register binds a node type to an executor. Registering the same type
// twice replaces the earlier binding.
func (r *Registry) Register(nodeType string, executor NodeExecutor) error {
	if nodeType == "" {
		return errors.New("node type cannot be empty")
	}
	if executor == nil {
		return errors.New("executor cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = executor
	return nil
}

// Lookup returns the executor for a node type.
func (r *Registry) Lookup(nodeType string) (NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sdkerrors.ErrUnknownNodeType, nodeType)
	}
	return executor, nil
}

// Types returns the registered node types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
