package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/nomusic/nomusic/domain/model"
)

// QueueFileStore persists the download queue to a JSON file atomically
// (write to filePath+".tmp", then rename) so a crash never leaves a
// torn file on disk.
type QueueFileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewQueueFileStore creates a store backed by filePath.
func NewQueueFileStore(filePath string) *QueueFileStore {
	return &QueueFileStore{filePath: filePath}
}

// Load reads the persisted queue, returning an empty slice if the file
// does not exist yet.
func (s *QueueFileStore) Load() ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []*model.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	// Pending items are rehydrated as-is; any item frozen mid-download
	// goes back to Pending so the dispatcher retries it.
	for _, it := range items {
		if it.Status == model.QueueItemDownloading {
			it.Status = model.QueueItemPending
			it.Progress = 0
		}
	}
	return items, nil
}

// Save atomically replaces the persisted queue contents with items.
func (s *QueueFileStore) Save(items []*model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
