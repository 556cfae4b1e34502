package preview

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/opensandbox/canvas/internal/metrics"
)

// Handle identifies one compiled module body. It is derived from the
// module's path and final code, so identical input always yields the same
// handle.
type Handle string

// HandleFor computes the content address of a module.
func HandleFor(path, code string) Handle {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(code)
	return Handle(fmt.Sprintf("%016x", d.Sum64()))
}

type blob struct {
	path string
	code string
	refs int
}

// BlobStore holds compiled modules while at least one artifact references
// them. It is shared by every session and safe for concurrent use.
type BlobStore struct {
	mu        sync.RWMutex
	blobs     map[Handle]*blob
	publicURL string
}

// NewBlobStore creates a store whose blobs are served under publicURL.
func NewBlobStore(publicURL string) *BlobStore {
	return &BlobStore{
		blobs:     make(map[Handle]*blob),
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Acquire stores code for path, or takes another reference to an identical
// blob, and returns its handle.
func (s *BlobStore) Acquire(path, code string) Handle {
	h := HandleFor(path, code)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[h]
	if !ok {
		b = &blob{path: path, code: code}
		s.blobs[h] = b
		metrics.BlobsLive.Inc()
	}
	b.refs++
	return h
}

// Release drops one reference. The blob is removed when none remain.
func (s *BlobStore) Release(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[h]
	if !ok {
		return
	}
	b.refs--
	if b.refs <= 0 {
		delete(s.blobs, h)
		metrics.BlobsLive.Dec()
	}
}

// Get returns the code of a live blob.
func (s *BlobStore) Get(h Handle) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[h]
	if !ok {
		return "", false
	}
	return b.code, true
}

// Refs reports the reference count of h; zero means it is not stored.
func (s *BlobStore) Refs(h Handle) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.blobs[h]; ok {
		return b.refs
	}
	return 0
}

// Len reports the number of live blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// URL is where the renderer loads h from.
func (s *BlobStore) URL(h Handle) string {
	return s.publicURL + "/blobs/" + string(h) + ".js"
}
