package project

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
)

// Autosaver periodically saves active projects whose files changed since
// their last save, so a crash loses at most one interval of edits.
type Autosaver struct {
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewAutosaver creates an autosaver for m.
func NewAutosaver(m *Manager, interval time.Duration) *Autosaver {
	return &Autosaver{
		manager:  m,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic save loop.
func (a *Autosaver) Start() {
	go a.loop()
	a.manager.log.Info("autosave started", zap.Duration("interval", a.interval))
}

// Stop signals the loop to exit and waits for a final save pass.
func (a *Autosaver) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Autosaver) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.SaveDirty()
		case <-a.stop:
			a.SaveDirty()
			return
		}
	}
}

// SaveDirty saves every active project with unsaved changes and returns
// how many were saved.
func (a *Autosaver) SaveDirty() int {
	m := a.manager
	m.mu.RLock()
	var ids []string
	for id, e := range m.projects {
		if e.dirty.Load() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	saved := 0
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := m.Save(ctx, id)
		cancel()
		if err != nil {
			m.log.Warn("autosave failed", logging.ProjectID(id), logging.Err(err))
			continue
		}
		saved++
	}
	if saved > 0 {
		m.log.Debug("autosave pass", zap.Int("saved", saved))
	}
	return saved
}
