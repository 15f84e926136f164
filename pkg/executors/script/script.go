// Package script provides a node executor that runs user-supplied
// JavaScript in a sandboxed goja runtime. The script receives the node's
// input payloads and returns the payloads for one or more output branches,
// which makes it the general-purpose filtering and routing node.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Daedalus/pkg/execution"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Type is the node type this executor handles.
const Type = "script"

// hostGlobals are Node.js-style globals removed from every runtime before
// user code executes.
var hostGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// Executor runs the node's "script" parameter as the body of a JavaScript
// function `function(items) { ... }` where items is the list of input
// payload objects. The return value may be:
//   - an array of objects: one output branch with those items
//   - an array of arrays of objects: one list per output branch
//
// Returning an empty array yields the canonical empty output, so scripts
// can filter a branch shut.
type Executor struct{}

// NewExecutor creates a script executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Invoke implements engine.NodeExecutor.
func (e *Executor) Invoke(ctx context.Context, node *workflow.Node, _ *execution.Context, input []execution.Item) (execution.Output, error) {
	source, _ := node.Parameters["script"].(string)
	if source == "" {
		return nil, fmt.Errorf("parameter %q is required", "script")
	}

	vm := goja.New()
	if err := sandbox(vm); err != nil {
		return nil, fmt.Errorf("failed to sandbox runtime: %w", err)
	}

	// Interrupt the runtime if the caller gives up; scripts otherwise run
	// unbounded.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()

	payloads := make([]map[string]any, len(input))
	for i, item := range input {
		payloads[i] = item.Data
	}
	if err := vm.Set("items", payloads); err != nil {
		return nil, fmt.Errorf("failed to bind input items: %w", err)
	}

	value, err := vm.RunString(fmt.Sprintf("(function(items) {\n%s\n})(items)", source))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("script interrupted: %v", interrupted.Value())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	return convertResult(value.Export())
}

func sandbox(vm *goja.Runtime) error {
	for _, name := range hostGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove global %q: %w", name, err)
		}
	}
	return nil
}

// convertResult normalizes the script's exported return value into branch
// lists of items.
func convertResult(exported any) (execution.Output, error) {
	if exported == nil {
		return execution.EmptyOutput(), nil
	}

	list, ok := exported.([]any)
	if !ok {
		return nil, fmt.Errorf("script must return an array, got %T", exported)
	}
	if len(list) == 0 {
		return execution.EmptyOutput(), nil
	}

	// Array of arrays: one list per output branch.
	if _, nested := list[0].([]any); nested {
		output := make(execution.Output, 0, len(list))
		for i, entry := range list {
			branch, ok := entry.([]any)
			if !ok {
				return nil, fmt.Errorf("branch %d is not an array", i)
			}
			items, err := convertBranch(branch)
			if err != nil {
				return nil, fmt.Errorf("branch %d: %w", i, err)
			}
			output = append(output, items)
		}
		return output, nil
	}

	items, err := convertBranch(list)
	if err != nil {
		return nil, err
	}
	return execution.Output{items}, nil
}

func convertBranch(branch []any) ([]execution.Item, error) {
	items := make([]execution.Item, 0, len(branch))
	for i, entry := range branch {
		data, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object, got %T", i, entry)
		}
		items = append(items, execution.Item{Data: data})
	}
	return items, nil
}
