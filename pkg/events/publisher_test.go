package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// mockConn implements Conn for testing without a NATS server.
type mockConn struct {
	connected bool
	publishes map[string][]byte
	err       error
}

func newMockConn() *mockConn {
	return &mockConn{connected: true, publishes: make(map[string][]byte)}
}

func (m *mockConn) Publish(subj string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.publishes[subj] = data
	return nil
}

func (m *mockConn) IsConnected() bool {
	return m.connected
}

func TestNewNATSPublisherValidatesArguments(t *testing.T) {
	if _, err := NewNATSPublisher(nil, "workflow", zap.NewNop()); err == nil {
		t.Fatal("expected error for nil connection")
	}
	if _, err := NewNATSPublisher(newMockConn(), "workflow", nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestPublishEncodesEventWithPrefixedSubject(t *testing.T) {
	conn := newMockConn()
	publisher, err := NewNATSPublisher(conn, "workflow", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := NodeCompleted{RunID: "run-1", Node: "Filter", BranchSizes: []int{2, 0}}
	if err := publisher.Publish(context.Background(), "node.completed", event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, ok := conn.publishes["workflow.node.completed"]
	if !ok {
		t.Fatalf("expected publish on workflow.node.completed, got %v", conn.publishes)
	}

	var decoded NodeCompleted
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Node != "Filter" {
		t.Fatalf("unexpected event payload: %+v", decoded)
	}
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	conn := newMockConn()
	conn.connected = false
	publisher, err := NewNATSPublisher(conn, "workflow", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = publisher.Publish(context.Background(), "run.completed", RunCompleted{RunID: "run-1"})
	if !errors.Is(err, sdkerrors.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPublishWrapsTransportErrors(t *testing.T) {
	conn := newMockConn()
	conn.err = errors.New("slow consumer")
	publisher, err := NewNATSPublisher(conn, "workflow", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := publisher.Publish(context.Background(), "run.failed", RunFailed{RunID: "run-1"}); err == nil {
		t.Fatal("expected a publish error")
	}
}

func TestNopPublisherDiscards(t *testing.T) {
	if err := (NopPublisher{}).Publish(context.Background(), "anything", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
