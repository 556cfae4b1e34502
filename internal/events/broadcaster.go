// Package events fans project events out to live preview connections and
// publishes them to NATS JetStream.
package events

import (
	"sync"

	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/pkg/types"
)

// Broadcaster delivers preview updates to the renderers watching each
// project.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan types.PreviewUpdate]struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[chan types.PreviewUpdate]struct{}),
	}
}

// Subscribe adds a subscriber for projectID and returns its channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(projectID string) chan types.PreviewUpdate {
	ch := make(chan types.PreviewUpdate, 16)
	b.mu.Lock()
	subs, ok := b.subscribers[projectID]
	if !ok {
		subs = make(map[chan types.PreviewUpdate]struct{})
		b.subscribers[projectID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()
	metrics.PreviewClients.Inc()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(projectID string, ch chan types.PreviewUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[projectID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.subscribers, projectID)
	}
	close(ch)
	metrics.PreviewClients.Dec()
}

// Publish sends an update to every subscriber of its project. Slow
// consumers miss updates instead of blocking compilation; each update
// carries the full artifact, so the next one they receive catches them up.
func (b *Broadcaster) Publish(u types.PreviewUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[u.ProjectID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// OnEvent forwards compile events to subscribers and closes the streams of
// deleted projects.
func (b *Broadcaster) OnEvent(ev types.ProjectEvent) {
	switch {
	case ev.Update != nil:
		b.Publish(*ev.Update)
	case ev.Type == types.EventDeleted:
		b.closeProject(ev.ProjectID)
	}
}

func (b *Broadcaster) closeProject(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[projectID] {
		close(ch)
		metrics.PreviewClients.Dec()
	}
	delete(b.subscribers, projectID)
}

// Count returns the number of subscribers watching projectID.
func (b *Broadcaster) Count(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[projectID])
}
