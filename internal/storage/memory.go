// Package storage contains the in-memory state of the service: upload
// records and the single current-verdict slot. Nothing is persisted.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/pondvision/internal/model"
)

var (
	// ErrNotFound is exported so callers can compare errors using errors.Is.
	ErrNotFound = errors.New("upload not found")
)

// MemoryStore keeps upload records behind an RWMutex so status polling
// (many readers) does not block the analysis worker (single writer) for long.
type MemoryStore struct {
	mu      sync.RWMutex
	uploads map[string]*model.UploadRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		uploads: make(map[string]*model.UploadRecord),
	}
}

// Save inserts or replaces a record.
func (m *MemoryStore) Save(record *model.UploadRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	copy := *record
	m.uploads[record.ID] = &copy
}

// UpdateStatus updates status/message.
func (m *MemoryStore) UpdateStatus(id string, status model.UploadStatus, msg string) error {
	return m.update(id, func(rec *model.UploadRecord) {
		rec.Status = status
		rec.Message = msg
	})
}

// UpdateProgress records the cosmetic stage and percentage of an analysis.
func (m *MemoryStore) UpdateProgress(id, stage string, percent int) error {
	return m.update(id, func(rec *model.UploadRecord) {
		rec.Status = model.StatusAnalyzing
		rec.Stage = stage
		rec.Progress = percent
	})
}

// Complete marks the analysis finished and links the verdict.
func (m *MemoryStore) Complete(id, verdictID string) error {
	return m.update(id, func(rec *model.UploadRecord) {
		rec.Status = model.StatusComplete
		rec.Stage = ""
		rec.Progress = 100
		rec.VerdictID = verdictID
		rec.Message = "analysis complete"
	})
}

func (m *MemoryStore) update(id string, fn func(*model.UploadRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.uploads[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a record copy.
func (m *MemoryStore) Get(id string) (*model.UploadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Returning a shallow copy prevents callers from mutating internal state.
	copy := *rec
	return &copy, nil
}
