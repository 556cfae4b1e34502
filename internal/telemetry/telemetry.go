// Package telemetry reports product analytics for projects to Segment.
package telemetry

import (
	"time"

	"github.com/segmentio/analytics-go/v3"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/pkg/types"
)

// Client tracks project events. A nil *Client is valid and tracks nothing.
type Client struct {
	client analytics.Client
	log    *zap.Logger
}

// Config configures the Segment client.
type Config struct {
	WriteKey string
	Endpoint string // empty uses Segment's API
	Interval time.Duration
}

// New returns a Client, or nil when no write key is configured.
func New(cfg Config) (*Client, error) {
	if cfg.WriteKey == "" {
		return nil, nil
	}
	log := logging.Named("telemetry")
	client, err := analytics.NewWithConfig(cfg.WriteKey, analytics.Config{
		Endpoint: cfg.Endpoint,
		Interval: cfg.Interval,
		Logger:   analytics.StdLogger(zap.NewStdLog(log)),
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: client, log: log}, nil
}

// eventNames maps project events to analytics event names. Others are not
// tracked.
var eventNames = map[string]string{
	types.EventCreated:       "Project Created",
	types.EventDeleted:       "Project Deleted",
	types.EventCompiled:      "Preview Compiled",
	types.EventCompileFailed: "Preview Failed",
	types.EventToolCalls:     "Tool Calls Applied",
}

// OnEvent tracks ev keyed by project.
func (c *Client) OnEvent(ev types.ProjectEvent) {
	if c == nil {
		return
	}
	name, ok := eventNames[ev.Type]
	if !ok {
		return
	}
	props := analytics.NewProperties().
		Set("revision", ev.Revision)
	if u := ev.Update; u != nil {
		props.Set("diagnostics", len(u.Diagnostics))
		if u.Artifact != nil {
			props.Set("modules", len(u.Artifact.Blobs))
			props.Set("packages", externalCount(u.Artifact.ImportMap.Imports))
		}
		if u.Error != "" {
			props.Set("error", u.Error)
		}
	}
	err := c.client.Enqueue(analytics.Track{
		AnonymousId: ev.ProjectID,
		Event:       name,
		Timestamp:   ev.Timestamp,
		Properties:  props,
	})
	if err != nil {
		c.log.Debug("enqueue failed", logging.ProjectID(ev.ProjectID), logging.Err(err))
	}
}

// externalCount counts import map entries that are not project modules.
func externalCount(imports map[string]string) int {
	n := 0
	for key := range imports {
		if len(key) < 2 || key[:2] != "@/" {
			n++
		}
	}
	return n
}

// Close flushes queued events.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
