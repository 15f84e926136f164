package execution

import (
	"context"
	"reflect"
	"testing"
)

func TestNewContextGeneratesRunID(t *testing.T) {
	ctx := NewContext("", "tenant-a", nil, nil)
	if ctx.RunID == "" {
		t.Fatal("expected a generated run ID")
	}
	if ctx.Trace == nil {
		t.Fatal("expected a non-nil trace handle")
	}
}

func TestNewContextKeepsProvidedRunID(t *testing.T) {
	ctx := NewContext("run-42", "tenant-a", nil, nil)
	if ctx.RunID != "run-42" {
		t.Fatalf("expected run-42, got %s", ctx.RunID)
	}
}

func TestRecordResultMarksCompleted(t *testing.T) {
	ctx := NewContext("run-1", "tenant-a", nil, nil)
	out := SingleItem(map[string]any{"x": 1})

	ctx.RecordResult("A", out)

	if !ctx.Completed("A") {
		t.Fatal("expected A to be completed")
	}
	if ctx.Completed("B") {
		t.Fatal("B must not be completed")
	}
	if !reflect.DeepEqual(ctx.Result("A"), out) {
		t.Fatal("expected the recorded output back")
	}
	if ctx.Result("B") != nil {
		t.Fatal("expected nil for a node that has not run")
	}
}

func TestIsEmptyOutput(t *testing.T) {
	if !IsEmptyOutput(EmptyOutput()) {
		t.Fatal("EmptyOutput must be empty")
	}
	if IsEmptyOutput(SingleItem(map[string]any{"x": 1})) {
		t.Fatal("a single item is not empty")
	}
	if IsEmptyOutput(Output{{}, {}}) {
		t.Fatal("two empty branches are not the canonical empty shape")
	}
	if IsEmptyOutput(nil) {
		t.Fatal("nil is not the canonical empty shape")
	}
}

func TestBranchSizes(t *testing.T) {
	out := Output{
		{Item{}, Item{}},
		{},
		{Item{}},
	}
	if got := BranchSizes(out); !reflect.DeepEqual(got, []int{2, 0, 1}) {
		t.Fatalf("expected [2 0 1], got %v", got)
	}
}

func TestNopTraceIsSafe(t *testing.T) {
	trace := NopTrace()
	ctx, nodeTrace := trace.StartNode(context.Background(), "A", "inject")
	if ctx == nil {
		t.Fatal("expected a context back")
	}
	nodeTrace.SetBranchSizes([]int{1})
	nodeTrace.End(nil)
	trace.End(nil)
}
