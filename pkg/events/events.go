// Package events defines the outbound progress events a run offers to the
// pub/sub collaborator and a NATS-backed publisher for them. Publishing is
// best-effort everywhere: a failed publish is logged by the caller and never
// affects the run's outcome.
package events

import "time"

// NodeCompleted is offered after each successful node when live progress is
// enabled for the run.
type NodeCompleted struct {
	RunID       string    `json:"runId"`
	TenantID    string    `json:"tenantId,omitempty"`
	Workflow    string    `json:"workflow"`
	Node        string    `json:"node"`
	NodeType    string    `json:"nodeType"`
	BranchSizes []int     `json:"branchSizes"`
	CompletedAt time.Time `json:"completedAt"`
}

// RunCompleted is offered once when a run finishes without error.
type RunCompleted struct {
	RunID      string    `json:"runId"`
	TenantID   string    `json:"tenantId,omitempty"`
	Workflow   string    `json:"workflow"`
	NodesRun   int       `json:"nodesRun"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunFailed is offered unconditionally when a run terminates with an error,
// regardless of whether live progress is enabled.
type RunFailed struct {
	RunID    string    `json:"runId"`
	TenantID string    `json:"tenantId,omitempty"`
	Workflow string    `json:"workflow"`
	Node     string    `json:"node"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}
