package queue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/pkg/logger"
)

// submitSeparationFunc matches Orchestrator.SubmitSeparation.
type submitSeparationFunc func(inputPath string, opts model.SeparationOptions) (string, *model.MediaProbe, error)

// mediaExtensions are the file extensions a folder scan treats as
// processable.
var mediaExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".aac": true,
	".ogg": true, ".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
}

// batch is one scanned folder's item list, identified by its own id
// (used interchangeably as both "queue_id" while scanned/unprocessed
// and "batch_id" once POST /folder-queue/process starts it).
type batch struct {
	mu    sync.Mutex
	id    string
	items []*model.BatchItem
}

// FolderQueue is the in-memory, per-batch folder queue. Unlike
// the download queue, batches are not persisted across restarts.
type FolderQueue struct {
	mu      sync.Mutex
	batches map[string]*batch

	prober  ports.MediaProber
	submit  submitSeparationFunc
	status  statusFunc
	workers int64

	log *logger.Logger
}

// NewFolderQueue creates a FolderQueue. workers bounds how many BatchItems are
// separating concurrently within one batch (default 1, recommended
// <=2 to avoid RAM exhaustion).
func NewFolderQueue(prober ports.MediaProber, submit submitSeparationFunc, status statusFunc, workers int, log *logger.Logger) *FolderQueue {
	if workers <= 0 {
		workers = 1
	}
	return &FolderQueue{
		batches: make(map[string]*batch),
		prober:  prober,
		submit:  submit,
		status:  status,
		workers: int64(workers),
		log:     log,
	}
}

// Scan walks folderPath non-recursively, filters to media extensions,
// probes each file's metadata and registers a new batch (POST
// /folder/scan).
func (fq *FolderQueue) Scan(ctx context.Context, folderPath string) (string, []model.BatchItem, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return "", nil, err
	}

	id := uuid.New().String()
	items := make([]*model.BatchItem, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		full := filepath.Join(folderPath, e.Name())
		item := &model.BatchItem{
			BatchID:  id,
			FileID:   uuid.New().String(),
			Path:     full,
			Selected: true,
			Status:   model.BatchItemPending,
		}
		if fq.prober != nil {
			if probe, err := fq.prober.Probe(ctx, full); err == nil {
				item.Metadata = probe
			}
		}
		items = append(items, item)
	}

	b := &batch{id: id, items: items}
	fq.mu.Lock()
	fq.batches[id] = b
	fq.mu.Unlock()

	return id, snapshotItems(items), nil
}

// Remove drops an unprocessed (Pending) item from a scanned batch
// (POST /folder-queue/remove).
func (fq *FolderQueue) Remove(queueID, fileID string) ([]model.BatchItem, bool) {
	b := fq.get(queueID)
	if b == nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, it := range b.items {
		if it.FileID == fileID {
			if it.Status != model.BatchItemPending {
				return snapshotItems(b.items), false
			}
			b.items = append(b.items[:i], b.items[i+1:]...)
			return snapshotItems(b.items), true
		}
	}
	return snapshotItems(b.items), false
}

// Process launches one separation Job per Selected item in queueID's
// batch, bounded by fq.workers, and returns immediately (POST
// /folder-queue/process).
func (fq *FolderQueue) Process(ctx context.Context, queueID string, opts model.SeparationOptions) (string, []model.BatchItem, error) {
	b := fq.get(queueID)
	if b == nil {
		return "", nil, os.ErrNotExist
	}

	b.mu.Lock()
	selected := make([]*model.BatchItem, 0, len(b.items))
	for _, it := range b.items {
		if it.Selected && it.Status == model.BatchItemPending {
			selected = append(selected, it)
		}
	}
	b.mu.Unlock()

	sem := semaphore.NewWeighted(fq.workers)
	for _, it := range selected {
		it := it
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			fq.runItem(ctx, b, it, opts)
		}()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id, snapshotItems(b.items), nil
}

func (fq *FolderQueue) runItem(ctx context.Context, b *batch, item *model.BatchItem, opts model.SeparationOptions) {
	b.mu.Lock()
	item.Status = model.BatchItemProcessing
	b.mu.Unlock()

	jobID, _, err := fq.submit(item.Path, opts)
	if err != nil {
		b.mu.Lock()
		item.Status = model.BatchItemFailed
		item.Error = err.Error()
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	item.ChildJobID = jobID
	b.mu.Unlock()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		job, ok := fq.status(jobID)
		if !ok {
			continue
		}
		b.mu.Lock()
		item.Progress = job.Progress
		if job.State.IsTerminal() {
			if job.State == model.StateCompleted {
				item.Status = model.BatchItemCompleted
			} else {
				item.Status = model.BatchItemFailed
				if job.Error != nil {
					item.Error = job.Error.Message
				}
			}
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}

// Snapshot summarizes a batch for GET /batch-status/{batch_id}.
func (fq *FolderQueue) Snapshot(batchID string) (model.BatchSnapshot, bool) {
	b := fq.get(batchID)
	if b == nil {
		return model.BatchSnapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := model.BatchSnapshot{BatchID: batchID, Total: len(b.items)}
	for _, it := range b.items {
		switch it.Status {
		case model.BatchItemCompleted:
			snap.Success++
			snap.Processed++
		case model.BatchItemFailed:
			snap.Failed++
			snap.Processed++
		}
		snap.Files = append(snap.Files, *it)
	}
	return snap, true
}

func (fq *FolderQueue) get(id string) *batch {
	fq.mu.Lock()
	defer fq.mu.Unlock()
	return fq.batches[id]
}

func snapshotItems(items []*model.BatchItem) []model.BatchItem {
	out := make([]model.BatchItem, len(items))
	for i, it := range items {
		out[i] = *it
	}
	return out
}
