package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/pkg/types"
)

const (
	// StreamName is the JetStream stream holding project events.
	StreamName = "CANVAS_EVENTS"
	// SubjectPrefix prefixes the per-project event subjects.
	SubjectPrefix = "canvas.events."
)

// Subject returns the NATS subject for a project's events.
func Subject(projectID string) string {
	return SubjectPrefix + projectID
}

// EnsureStream creates the events stream if it does not exist.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ">"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	return nil
}

// Connect dials NATS with the reconnect policy shared by publisher and
// consumers.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Publisher publishes project events to NATS JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	source  string
	log     *zap.Logger
	publish func(subject string, data []byte) error
}

// NewPublisher connects to NATS and ensures the events stream exists.
// source identifies this server in published events.
func NewPublisher(natsURL, source string) (*Publisher, error) {
	nc, err := Connect(natsURL, "canvas-publisher-"+source)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(1024))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	log := logging.Named("events")
	if err := EnsureStream(js); err != nil {
		// The stream may be managed elsewhere; publishing still works if it exists.
		log.Warn("stream setup", logging.Err(err))
	}

	p := &Publisher{nc: nc, js: js, source: source, log: log}
	p.publish = func(subject string, data []byte) error {
		_, err := p.js.PublishAsync(subject, data)
		return err
	}
	return p, nil
}

// Message is the JSON payload published to NATS.
type Message struct {
	types.ProjectEvent
	Source string `json:"source"`
}

// OnEvent publishes ev without waiting for the server acknowledgement, so
// compilation never stalls on the broker.
func (p *Publisher) OnEvent(ev types.ProjectEvent) {
	data, err := json.Marshal(Message{ProjectEvent: ev, Source: p.source})
	if err != nil {
		p.log.Error("marshal event", logging.ProjectID(ev.ProjectID), logging.Err(err))
		return
	}
	if err := p.publish(Subject(ev.ProjectID), data); err != nil {
		p.log.Warn("publish failed", logging.ProjectID(ev.ProjectID), zap.String("type", ev.Type), logging.Err(err))
	}
}

// Close waits briefly for pending acknowledgements and closes the connection.
func (p *Publisher) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		p.log.Warn("closing with unacknowledged events", zap.Int("pending", p.js.PublishAsyncPending()))
	}
	p.nc.Close()
}
