package remotestorage

import (
	"context"
	"sync"
)

// UploadIndex keeps the results of completed uploads for FindUpload.
type UploadIndex interface {
	Put(ctx context.Context, meta UploadedMeta) error
	Get(ctx context.Context, uploadID string) (UploadedMeta, bool, error)
}

type memoryIndex struct {
	mu    sync.RWMutex
	metas map[string]UploadedMeta
}

// NewMemoryIndex returns a process-local UploadIndex.
func NewMemoryIndex() UploadIndex {
	return &memoryIndex{metas: make(map[string]UploadedMeta)}
}

func (m *memoryIndex) Put(_ context.Context, meta UploadedMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[meta.UploadID] = meta
	return nil
}

func (m *memoryIndex) Get(_ context.Context, uploadID string) (UploadedMeta, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metas[uploadID]
	return meta, ok, nil
}
