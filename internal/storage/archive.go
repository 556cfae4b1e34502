// Package storage keeps compressed project snapshots in object storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// Blobs is a flat key/value object store.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// archiveFormat is bumped whenever the archive layout changes.
const archiveFormat = 1

type archive struct {
	Format   int               `json:"format"`
	Project  string            `json:"project"`
	Revision uint64            `json:"revision"`
	SavedAt  time.Time         `json:"savedAt"`
	Files    map[string]string `json:"files"`
}

// ArchiveInfo describes a stored archive.
type ArchiveInfo struct {
	Key       string    `json:"key"`
	Revision  uint64    `json:"revision"`
	SizeBytes int64     `json:"sizeBytes"`
	SavedAt   time.Time `json:"savedAt"`
}

// Archive stores one zstd-compressed JSON snapshot per project.
type Archive struct {
	blobs Blobs
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewArchive creates an archive on top of blobs.
func NewArchive(blobs Blobs) (*Archive, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Archive{blobs: blobs, enc: enc, dec: dec}, nil
}

// ArchiveKey returns the object key for a project's snapshot archive.
func ArchiveKey(projectID string) string {
	return fmt.Sprintf("projects/%s/snapshot.json.zst", projectID)
}

// Save compresses files and uploads them, replacing any previous archive.
func (a *Archive) Save(ctx context.Context, projectID string, revision uint64, files map[string]string) (*ArchiveInfo, error) {
	now := time.Now().UTC()
	raw, err := json.Marshal(archive{
		Format:   archiveFormat,
		Project:  projectID,
		Revision: revision,
		SavedAt:  now,
		Files:    files,
	})
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	data := a.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	key := ArchiveKey(projectID)
	if err := a.blobs.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("upload archive for project %s: %w", projectID, err)
	}
	return &ArchiveInfo{Key: key, Revision: revision, SizeBytes: int64(len(data)), SavedAt: now}, nil
}

// Load downloads and decodes a project's archive. A missing archive wraps
// ErrNotFound.
func (a *Archive) Load(ctx context.Context, projectID string) (map[string]string, *ArchiveInfo, error) {
	key := ArchiveKey(projectID)
	data, err := a.blobs.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("download archive for project %s: %w", projectID, err)
	}
	raw, err := a.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress archive %s: %w", key, err)
	}
	var ar archive
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, nil, fmt.Errorf("decode archive %s: %w", key, err)
	}
	if ar.Format != archiveFormat {
		return nil, nil, fmt.Errorf("archive %s has unsupported format %d", key, ar.Format)
	}
	if ar.Files == nil {
		ar.Files = map[string]string{}
	}
	return ar.Files, &ArchiveInfo{Key: key, Revision: ar.Revision, SizeBytes: int64(len(data)), SavedAt: ar.SavedAt}, nil
}

// Delete removes a project's archive. Deleting a missing archive is not an
// error.
func (a *Archive) Delete(ctx context.Context, projectID string) error {
	if err := a.blobs.Delete(ctx, ArchiveKey(projectID)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete archive for project %s: %w", projectID, err)
	}
	return nil
}

// MemoryBlobs keeps objects in process memory. It backs archives in
// development and tests.
type MemoryBlobs struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBlobs creates an empty in-memory object store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{objects: make(map[string][]byte)}
}

func (m *MemoryBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}
