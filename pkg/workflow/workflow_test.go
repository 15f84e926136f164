package workflow

import (
	"errors"
	"testing"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

func TestNewRejectsEmptyWorkflow(t *testing.T) {
	_, err := New("empty", nil, nil)
	if !errors.Is(err, sdkerrors.ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
	}
}

func TestNewRejectsDuplicateNodeNames(t *testing.T) {
	_, err := New("dupes", []Node{
		{Name: "A", Type: "inject"},
		{Name: "A", Type: "inject"},
	}, nil)
	if !errors.Is(err, sdkerrors.ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
	}
}

func TestNewRejectsUnknownConnectionEndpoints(t *testing.T) {
	nodes := []Node{{Name: "A", Type: "inject"}}

	_, err := New("bad-target", nodes, []Connection{{Source: "A", Target: "ghost"}})
	if !errors.Is(err, sdkerrors.ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow for unknown target, got %v", err)
	}

	_, err = New("bad-source", nodes, []Connection{{Source: "ghost", Target: "A"}})
	if !errors.Is(err, sdkerrors.ErrInvalidWorkflow) {
		t.Fatalf("expected ErrInvalidWorkflow for unknown source, got %v", err)
	}
}

func TestConnectionCategoryDefaultsToMain(t *testing.T) {
	wf, err := New("default-category", []Node{
		{Name: "A", Type: "inject"},
		{Name: "B", Type: "inject"},
	}, []Connection{{Source: "A", Target: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conns := wf.ConnectionsFrom("A", CategoryMain, 0)
	if len(conns) != 1 {
		t.Fatalf("expected 1 main connection, got %d", len(conns))
	}
	if got := wf.ConnectionsTo("B", CategoryMain); len(got) != 1 {
		t.Fatalf("expected 1 incoming main connection, got %d", len(got))
	}
}

func TestConnectionsPreserveDeclarationOrder(t *testing.T) {
	wf, err := New("ordered", []Node{
		{Name: "A", Type: "inject"},
		{Name: "B", Type: "inject"},
		{Name: "C", Type: "inject"},
	}, []Connection{
		{Source: "A", Target: "C"},
		{Source: "B", Target: "C"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	incoming := wf.ConnectionsTo("C", CategoryMain)
	if len(incoming) != 2 || incoming[0].Source != "A" || incoming[1].Source != "B" {
		t.Fatalf("expected incoming order [A B], got %+v", incoming)
	}
}

func TestStartNodesAndNodeCount(t *testing.T) {
	wf, err := New("starts", []Node{
		{Name: "A", Type: "inject", IsStart: true},
		{Name: "B", Type: "inject"},
		{Name: "C", Type: "inject", IsStart: true},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wf.NodeCount() != 3 {
		t.Fatalf("expected 3 nodes, got %d", wf.NodeCount())
	}

	starts := wf.StartNodes()
	if len(starts) != 2 || starts[0].Name != "A" || starts[1].Name != "C" {
		t.Fatalf("expected starts [A C], got %+v", starts)
	}
}

func TestAuxiliaryCategoriesAreSeparate(t *testing.T) {
	wf, err := New("aux", []Node{
		{Name: "A", Type: "inject"},
		{Name: "B", Type: "inject"},
	}, []Connection{
		{Source: "A", Target: "B", Category: "error"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := wf.ConnectionsFrom("A", CategoryMain, 0); len(got) != 0 {
		t.Fatalf("expected no main connections, got %d", len(got))
	}
	if got := wf.ConnectionsFrom("A", "error", 0); len(got) != 1 {
		t.Fatalf("expected 1 error-category connection, got %d", len(got))
	}
}
