package store

import (
	"path/filepath"
	"testing"

	"github.com/nomusic/nomusic/domain/model"
)

func TestQueueFileStoreLoadMissingFile(t *testing.T) {
	s := NewQueueFileStore(filepath.Join(t.TempDir(), "queue.json"))
	items, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on a missing file: %v", err)
	}
	if items != nil {
		t.Errorf("Load() on a missing file = %+v, want nil", items)
	}
}

func TestQueueFileStoreSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	s := NewQueueFileStore(path)

	items := []*model.QueueItem{
		{QueueID: "q1", URL: "http://example.com/a", Status: model.QueueItemPending},
		{QueueID: "q2", URL: "http://example.com/b", Status: model.QueueItemCompleted},
	}
	if err := s.Save(items); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load() = %+v, want 2 items", loaded)
	}
	if loaded[0].QueueID != "q1" || loaded[1].QueueID != "q2" {
		t.Errorf("Load() order = %+v, want save order preserved", loaded)
	}
}

func TestQueueFileStoreLoadResetsDownloadingToPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	s := NewQueueFileStore(path)

	if err := s.Save([]*model.QueueItem{
		{QueueID: "q1", Status: model.QueueItemDownloading, Progress: 42},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded[0].Status != model.QueueItemPending {
		t.Errorf("Load() status = %v, want a frozen Downloading item rehydrated as Pending", loaded[0].Status)
	}
	if loaded[0].Progress != 0 {
		t.Errorf("Load() progress = %d, want reset to 0", loaded[0].Progress)
	}
}
