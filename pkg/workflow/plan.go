package workflow

import (
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Plan is one valid topological ordering of a workflow's nodes. Plans are
// not unique; any ordering where every node follows its non-start
// main-category predecessors is acceptable.
type Plan struct {
	workflow *Workflow
	nodes    []*Node
}

// Workflow returns the graph the plan was built from.
func (p *Plan) Workflow() *Workflow {
	return p.workflow
}

// Nodes returns the nodes in execution order.
func (p *Plan) Nodes() []*Node {
	return p.nodes
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int {
	return len(p.nodes)
}

// BuildPlan computes a topological execution order using Kahn's algorithm.
// Only main-category connections contribute to in-degrees and ordering;
// side-channel categories are ignored entirely.
//
// Nodes flagged IsStart are seeded into the ready queue regardless of their
// in-degree: they are externally-triggered entry points whose incoming edges
// are advisory. A start node with real predecessors may therefore be ordered
// before those predecessors; callers that need strict dependency ordering
// for a node must not both flag it as a start and give it incoming edges.
//
// If no valid order covers every node, BuildPlan returns a
// *errors.CycleError naming the nodes that could not be scheduled.
func BuildPlan(w *Workflow) (*Plan, error) {
	indegree := make(map[string]int, len(w.nodes))
	for _, name := range w.order {
		indegree[name] = 0
	}
	for _, name := range w.order {
		for _, output := range w.OutputsFrom(name, CategoryMain) {
			for _, conn := range w.ConnectionsFrom(name, CategoryMain, output) {
				indegree[conn.Target]++
			}
		}
	}

	queue := make([]string, 0, len(w.nodes))
	queued := make(map[string]bool, len(w.nodes))
	for _, name := range w.order {
		if indegree[name] == 0 || w.nodes[name].IsStart {
			queue = append(queue, name)
			queued[name] = true
		}
	}

	ordered := make([]*Node, 0, len(w.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, w.nodes[name])

		for _, output := range w.OutputsFrom(name, CategoryMain) {
			for _, conn := range w.ConnectionsFrom(name, CategoryMain, output) {
				indegree[conn.Target]--
				if indegree[conn.Target] == 0 && !queued[conn.Target] {
					queue = append(queue, conn.Target)
					queued[conn.Target] = true
				}
			}
		}
	}

	if len(ordered) < len(w.nodes) {
		remaining := make([]string, 0, len(w.nodes)-len(ordered))
		for _, name := range w.order {
			if !queued[name] {
				remaining = append(remaining, name)
			}
		}
		return nil, sdkerrors.NewCycleError(remaining)
	}

	return &Plan{workflow: w, nodes: ordered}, nil
}

// InitialActiveNodes returns the names of the nodes that are eligible to run
// before any node has produced output: the declared start nodes, or, when
// none are declared, every node with zero main-category in-degree.
func InitialActiveNodes(w *Workflow) map[string]bool {
	active := make(map[string]bool)
	for _, n := range w.StartNodes() {
		active[n.Name] = true
	}
	if len(active) > 0 {
		return active
	}

	indegree := make(map[string]int, len(w.nodes))
	for _, name := range w.order {
		indegree[name] = 0
	}
	for _, name := range w.order {
		for _, output := range w.OutputsFrom(name, CategoryMain) {
			for _, conn := range w.ConnectionsFrom(name, CategoryMain, output) {
				indegree[conn.Target]++
			}
		}
	}
	for _, name := range w.order {
		if indegree[name] == 0 {
			active[name] = true
		}
	}
	return active
}
