// Package storage persists terminal run records: the accumulated per-node
// results plus the outcome of a run, written on both the success and the
// failure path so a crashed caller can resume debugging without re-running
// the workflow.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/execution"
)

// RunRecord is the terminal state of one run.
type RunRecord struct {
	RunID        string                      `json:"runId"`
	TenantID     string                      `json:"tenantId,omitempty"`
	Workflow     string                      `json:"workflow"`
	Status       string                      `json:"status"`
	Finished     bool                        `json:"finished"`
	NodeResults  map[string]execution.Output `json:"nodeResults"`
	ErrorNode    string                      `json:"errorNode,omitempty"`
	ErrorMessage string                      `json:"errorMessage,omitempty"`
	RecordedAt   time.Time                   `json:"recordedAt"`
}

// Store is the persistence collaborator contract: one write per run
// outcome. Implementations must tolerate being called with partial results
// on the failure path.
type Store interface {
	RecordStatus(ctx context.Context, record RunRecord) error
}

// MemoryStore keeps records in process, most recent write wins per run ID.
// Suitable for embedding and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]RunRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]RunRecord)}
}

// RecordStatus implements Store.
func (s *MemoryStore) RecordStatus(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = record
	return nil
}

// Record returns the stored record for a run, if any.
func (s *MemoryStore) Record(runID string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[runID]
	return record, ok
}

// Records returns every stored record in unspecified order.
func (s *MemoryStore) Records() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]RunRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records
}
