// Package transform provides a node executor for per-field string
// transformations on the items flowing through a node.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/execution"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type is the node type this executor handles.
const Type = "transform"

// Supported operations.
const (
	OpUppercase = "uppercase"
	OpLowercase = "lowercase"
	OpTitle     = "titlecase"
	OpTrim      = "trim"
)

// Executor applies a string operation to one field of every input item.
// Parameters: "field" names the payload key, "operation" selects one of the
// supported operations. Items are copied, not mutated in place; upstream
// results stay untouched.
type Executor struct{}

// NewExecutor creates a transform executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Invoke implements engine.NodeExecutor.
func (e *Executor) Invoke(_ context.Context, node *workflow.Node, _ *execution.Context, input []execution.Item) (execution.Output, error) {
	field, _ := node.Parameters["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("parameter %q is required", "field")
	}
	operation, _ := node.Parameters["operation"].(string)
	if operation == "" {
		return nil, fmt.Errorf("parameter %q is required", "operation")
	}

	out := make([]execution.Item, 0, len(input))
	for i, item := range input {
		value, ok := item.Data[field]
		if !ok {
			return nil, fmt.Errorf("item %d has no field %q", i, field)
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("item %d field %q is not a string", i, field)
		}

		transformed, err := apply(operation, text)
		if err != nil {
			return nil, err
		}

		data := make(map[string]any, len(item.Data))
		for k, v := range item.Data {
			data[k] = v
		}
		data[field] = transformed
		out = append(out, execution.Item{Data: data, Binary: item.Binary})
	}

	return execution.Output{out}, nil
}

func apply(operation, text string) (string, error) {
	switch operation {
	case OpUppercase:
		return strings.ToUpper(text), nil
	case OpLowercase:
		return strings.ToLower(text), nil
	case OpTitle:
		return cases.Title(language.Und).String(text), nil
	case OpTrim:
		return strings.TrimSpace(text), nil
	default:
		return "", fmt.Errorf("unsupported operation %q", operation)
	}
}
