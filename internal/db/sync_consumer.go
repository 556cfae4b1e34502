package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/events"
	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/project"
)

// SyncConsumer reads project events from NATS JetStream and writes them to
// the event log, collecting events from every server that shares the stream.
type SyncConsumer struct {
	store project.Store
	nc    *nats.Conn
	js    nats.JetStreamContext
	sub   *nats.Subscription
	log   *zap.Logger
}

// NewSyncConsumer creates a new NATS-to-store sync consumer.
func NewSyncConsumer(store project.Store, natsURL string) (*SyncConsumer, error) {
	nc, err := events.Connect(natsURL, "canvas-sync-consumer")
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := events.EnsureStream(js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return &SyncConsumer{
		store: store,
		nc:    nc,
		js:    js,
		log:   logging.Named("sync_consumer"),
	}, nil
}

// Start begins consuming events.
func (c *SyncConsumer) Start() error {
	sub, err := c.js.Subscribe(events.SubjectPrefix+">", c.handleMessage,
		nats.Durable("pg-sync-consumer"),
		nats.AckExplicit(),
		nats.MaxAckPending(256),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.sub = sub
	c.log.Info("subscribed", zap.String("subject", events.SubjectPrefix+">"))
	return nil
}

// Stop stops the consumer.
func (c *SyncConsumer) Stop() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.nc.Close()
}

func (c *SyncConsumer) handleMessage(msg *nats.Msg) {
	if c.handle(msg.Data) {
		msg.Ack()
	} else {
		msg.Nak()
	}
}

// handle writes one message to the store and reports whether it should be
// acked. Malformed messages are acked so they are not redelivered.
func (c *SyncConsumer) handle(data []byte) bool {
	var m events.Message
	if err := json.Unmarshal(data, &m); err != nil {
		c.log.Warn("failed to unmarshal event", logging.Err(err))
		return true
	}
	if m.ProjectID == "" || m.Type == "" {
		c.log.Warn("dropping event without project or type", zap.String("source", m.Source))
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.LogEvent(ctx, m.ProjectEvent); err != nil {
		c.log.Warn("failed to log event", logging.ProjectID(m.ProjectID), logging.Err(err))
		return false
	}
	return true
}
