// Package workflow defines the immutable in-memory representation of a
// workflow graph and computes topological execution plans over it.
package workflow

import (
	"fmt"
	"sort"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// CategoryMain is the connection category that carries node-to-node data and
// participates in execution ordering. Other categories are side-channel
// wiring interpreted by subsystems outside this core.
const CategoryMain = "main"

// Node is one step of a workflow graph. Nodes are constructed once when the
// workflow is built and are immutable for the life of a run.
type Node struct {
	// Name uniquely identifies the node within its workflow and is used as
	// the graph vertex key.
	Name string

	// Type selects which registered executor handles this node.
	Type string

	// IsStart marks the node as a workflow entry point. Start nodes are
	// always execution-eligible, even when they have incoming connections.
	IsStart bool

	// IsEnd marks the node as a terminal step. Informational only; the
	// engine derives nothing from it.
	IsEnd bool

	// Parameters is opaque configuration passed through to the node's
	// executor. The core never interprets it.
	Parameters map[string]any
}

// Connection is a directed data edge from one node's output branch to
// another node's input.
type Connection struct {
	Source       string
	SourceOutput int
	Target       string
	TargetInput  int

	// Category defaults to CategoryMain when empty.
	Category string
}

// Workflow is an immutable graph of nodes joined by categorized connections.
// Build one with New; the zero value is not usable.
type Workflow struct {
	Name  string
	nodes map[string]*Node
	order []string

	// connections indexed source -> category -> output index.
	connections map[string]map[string]map[int][]Connection

	// incoming indexed target -> category, preserving declaration order.
	incoming map[string]map[string][]Connection
}

// New validates nodes and connections and assembles a Workflow.
// Node names must be unique and every connection endpoint must reference a
// declared node; violations are construction-time errors.
func New(name string, nodes []Node, connections []Connection) (*Workflow, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: workflow %q has no nodes", sdkerrors.ErrInvalidWorkflow, name)
	}

	wf := &Workflow{
		Name:        name,
		nodes:       make(map[string]*Node, len(nodes)),
		order:       make([]string, 0, len(nodes)),
		connections: make(map[string]map[string]map[int][]Connection),
		incoming:    make(map[string]map[string][]Connection),
	}

	for i := range nodes {
		n := nodes[i]
		if n.Name == "" {
			return nil, fmt.Errorf("%w: node at index %d has no name", sdkerrors.ErrInvalidWorkflow, i)
		}
		if _, exists := wf.nodes[n.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate node name %q", sdkerrors.ErrInvalidWorkflow, n.Name)
		}
		wf.nodes[n.Name] = &n
		wf.order = append(wf.order, n.Name)
	}

	for _, c := range connections {
		if c.Category == "" {
			c.Category = CategoryMain
		}
		if _, ok := wf.nodes[c.Source]; !ok {
			return nil, fmt.Errorf("%w: connection references unknown source node %q", sdkerrors.ErrInvalidWorkflow, c.Source)
		}
		if _, ok := wf.nodes[c.Target]; !ok {
			return nil, fmt.Errorf("%w: connection references unknown target node %q", sdkerrors.ErrInvalidWorkflow, c.Target)
		}
		if c.SourceOutput < 0 || c.TargetInput < 0 {
			return nil, fmt.Errorf("%w: connection %s -> %s has a negative branch index", sdkerrors.ErrInvalidWorkflow, c.Source, c.Target)
		}

		byCategory, ok := wf.connections[c.Source]
		if !ok {
			byCategory = make(map[string]map[int][]Connection)
			wf.connections[c.Source] = byCategory
		}
		byOutput, ok := byCategory[c.Category]
		if !ok {
			byOutput = make(map[int][]Connection)
			byCategory[c.Category] = byOutput
		}
		byOutput[c.SourceOutput] = append(byOutput[c.SourceOutput], c)

		in, ok := wf.incoming[c.Target]
		if !ok {
			in = make(map[string][]Connection)
			wf.incoming[c.Target] = in
		}
		in[c.Category] = append(in[c.Category], c)
	}

	return wf, nil
}

// Node returns the node with the given name, or nil if absent.
func (w *Workflow) Node(name string) *Node {
	return w.nodes[name]
}

// Nodes returns the workflow's nodes in declaration order.
func (w *Workflow) Nodes() []*Node {
	out := make([]*Node, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.nodes[name])
	}
	return out
}

// NodeCount returns the total number of nodes. The admission gate charges
// this amount, all-or-nothing, for every run of the workflow.
func (w *Workflow) NodeCount() int {
	return len(w.nodes)
}

// ConnectionsFrom returns the connections leaving a node's output branch in
// the given category, in declaration order.
func (w *Workflow) ConnectionsFrom(source, category string, output int) []Connection {
	byCategory, ok := w.connections[source]
	if !ok {
		return nil
	}
	byOutput, ok := byCategory[category]
	if !ok {
		return nil
	}
	return byOutput[output]
}

// OutputsFrom returns the output branch indexes of a node that have at least
// one connection in the given category.
func (w *Workflow) OutputsFrom(source, category string) []int {
	byCategory, ok := w.connections[source]
	if !ok {
		return nil
	}
	byOutput, ok := byCategory[category]
	if !ok {
		return nil
	}
	outputs := make([]int, 0, len(byOutput))
	for idx := range byOutput {
		outputs = append(outputs, idx)
	}
	sort.Ints(outputs)
	return outputs
}

// ConnectionsTo returns the connections entering a node in the given
// category, in declaration order.
func (w *Workflow) ConnectionsTo(target, category string) []Connection {
	in, ok := w.incoming[target]
	if !ok {
		return nil
	}
	return in[category]
}

// StartNodes returns the nodes flagged IsStart, in declaration order.
func (w *Workflow) StartNodes() []*Node {
	var starts []*Node
	for _, name := range w.order {
		if w.nodes[name].IsStart {
			starts = append(starts, w.nodes[name])
		}
	}
	return starts
}
