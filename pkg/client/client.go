// Package client assembles the NATS-backed collaborators of the engine from
// one connection: the JetStream-backed quota store and the event publisher.
// It is the entry point for deployments that share quota state and emit run
// events across processes; embedded callers can skip it and use the in-memory
// stores directly.
package client

import (
	"context"
	"errors"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/events"
	"github.com/wehubfusion/Daedalus/pkg/quota"
	"go.uber.org/zap"
)

// Config is the public connection configuration used by Client. It mirrors
// the internal connection configuration but keeps the implementation private.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	Token         string
	Username      string
	Password      string

	// QuotaBucket is the JetStream KeyValue bucket holding per-tenant
	// execution balances.
	QuotaBucket string

	// QuotaAllowance is the balance seeded for tenants never seen before.
	// Non-positive values fall back to quota.DefaultAllowance.
	QuotaAllowance int64

	// EventSubjectPrefix is prepended to run/node event subjects.
	EventSubjectPrefix string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(url string) Config {
	cfg := nats.DefaultConnectionConfig(url)
	return Config{
		URL:                cfg.URL,
		Name:               cfg.Name,
		MaxReconnects:      cfg.MaxReconnects,
		ReconnectWait:      cfg.ReconnectWait,
		Timeout:            cfg.Timeout,
		QuotaBucket:        cfg.QuotaBucket,
		EventSubjectPrefix: cfg.EventSubjectPrefix,
	}
}

func (c Config) toInternalConfig() *nats.ConnectionConfig {
	return &nats.ConnectionConfig{
		URL:                c.URL,
		Name:               c.Name,
		MaxReconnects:      c.MaxReconnects,
		ReconnectWait:      c.ReconnectWait,
		Timeout:            c.Timeout,
		Token:              c.Token,
		Username:           c.Username,
		Password:           c.Password,
		QuotaBucket:        c.QuotaBucket,
		EventSubjectPrefix: c.EventSubjectPrefix,
	}
}

// Client manages one NATS connection and exposes the collaborators built on
// it. Connect must be called before Quota or Events are usable.
type Client struct {
	conn   *natsclient.Conn
	js     natsclient.JetStreamContext
	config Config
	logger *zap.Logger

	// Quota is the shared admission state, backed by a JetStream KeyValue
	// bucket. Nil until Connect succeeds.
	Quota *quota.KVStore

	// Events publishes run and node events over the connection. Nil until
	// Connect succeeds.
	Events *events.NATSPublisher
}

// NewClient creates a client with default configuration for the given server
// URL (e.g. "nats://localhost:4222").
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	return NewClientWithConfig(DefaultConfig(url), logger)
}

// NewClientWithConfig creates a client with full control over connection
// parameters.
func NewClientWithConfig(config Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Client{config: config, logger: logger}, nil
}

// Connect establishes the NATS connection, binds the quota bucket and
// initializes the event publisher. JetStream must be enabled on the server.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(ctx, c.config.toInternalConfig())
	if err != nil {
		return err
	}
	c.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		return errors.New("JetStream is not enabled on the NATS server")
	}
	c.js = js

	kv, err := quota.BindBucket(js, c.config.QuotaBucket)
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		c.js = nil
		return err
	}

	store, err := quota.NewKVStore(kv, c.config.QuotaAllowance, c.logger)
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		c.js = nil
		return err
	}
	c.Quota = store

	publisher, err := events.NewNATSPublisher(events.WrapNATSConn(conn), c.config.EventSubjectPrefix, c.logger)
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		c.js = nil
		c.Quota = nil
		return err
	}
	c.Events = publisher

	c.logger.Info("Connected to NATS",
		zap.String("url", c.config.URL),
		zap.String("quotaBucket", c.config.QuotaBucket),
		zap.String("eventSubjectPrefix", c.config.EventSubjectPrefix))
	return nil
}

// Close drains and closes the connection and clears the collaborators.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := nats.Close(c.conn)
	c.conn = nil
	c.js = nil
	c.Quota = nil
	c.Events = nil
	return err
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return nats.IsConnected(c.conn)
}

// JetStream returns the JetStream context for advanced operations. Nil until
// Connect succeeds.
func (c *Client) JetStream() natsclient.JetStreamContext {
	return c.js
}
