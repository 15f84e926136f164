package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCycle indicates that the workflow graph contains at least one cycle
	ErrCycle = errors.New("workflow graph contains a cycle")

	// ErrQuotaExceeded indicates that the tenant's execution quota is exhausted
	ErrQuotaExceeded = errors.New("execution quota exceeded")

	// ErrUnknownNodeType indicates that no executor is registered for a node type
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrNodeExecution indicates that a node's own execution failed
	ErrNodeExecution = errors.New("node execution failed")

	// ErrInvalidWorkflow indicates that a workflow failed construction-time validation
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrNotConnected indicates that a NATS-backed collaborator has no live connection
	ErrNotConnected = errors.New("not connected to NATS")
)

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured engine error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CycleError reports the nodes left unordered when plan building fails.
// Remaining holds the names of every node that participates in, or depends
// on, a cycle; it is sorted for stable reporting.
type CycleError struct {
	Remaining []string
}

// NewCycleError builds a CycleError from the unordered node names.
func NewCycleError(remaining []string) *CycleError {
	sorted := make([]string, len(remaining))
	copy(sorted, remaining)
	sort.Strings(sorted)
	return &CycleError{Remaining: sorted}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle involving nodes: %s", strings.Join(e.Remaining, ", "))
}

// Unwrap makes errors.Is(err, ErrCycle) work for CycleError values.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// QuotaExceededError reports a denied admission check together with the
// tenant's remaining balance at the time of denial.
type QuotaExceededError struct {
	TenantID  string
	Requested int64
	Remaining int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tenant %s: requested %d execution units, %d remaining", e.TenantID, e.Requested, e.Remaining)
}

// Unwrap makes errors.Is(err, ErrQuotaExceeded) work for QuotaExceededError values.
func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// IsCycle checks if an error indicates a graph cycle
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}

// IsQuotaExceeded checks if an error indicates an exhausted quota
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsUnknownNodeType checks if an error indicates a missing executor registration
func IsUnknownNodeType(err error) bool {
	return errors.Is(err, ErrUnknownNodeType)
}
