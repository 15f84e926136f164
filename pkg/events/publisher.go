package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// Publisher delivers an event payload to a topic. Implementations should be
// fast and must tolerate being called after a run has already failed.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Conn is the minimal subset of NATS connection operations the publisher
// depends on. This allows tests to provide a mock without requiring a
// running NATS server.
type Conn interface {
	Publish(subj string, data []byte) error
	IsConnected() bool
}

// NATSPublisher publishes JSON-encoded events over core NATS.
type NATSPublisher struct {
	conn          Conn
	subjectPrefix string
	logger        *zap.Logger
}

// NewNATSPublisher creates a publisher over an established connection.
// subjectPrefix is prepended to every topic (e.g. "workflow" yields
// subjects like "workflow.node.completed").
func NewNATSPublisher(conn Conn, subjectPrefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if subjectPrefix == "" {
		subjectPrefix = "workflow"
	}
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix, logger: logger}, nil
}

// WrapNATSConn adapts a *nats.Conn to the Conn interface.
func WrapNATSConn(nc *nats.Conn) Conn {
	return natsConnAdapter{nc: nc}
}

type natsConnAdapter struct {
	nc *nats.Conn
}

func (a natsConnAdapter) Publish(subj string, data []byte) error {
	return a.nc.Publish(subj, data)
}

func (a natsConnAdapter) IsConnected() bool {
	return a.nc.IsConnected()
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	if !p.conn.IsConnected() {
		return sdkerrors.ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for topic %q: %w", topic, err)
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, topic)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %q: %w", subject, err)
	}

	p.logger.Debug("Published event", zap.String("subject", subject))
	return nil
}

// NopPublisher discards every event. Used when no pub/sub collaborator is
// configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, any) error {
	return nil
}
