// Package queue implements the two dispatcher-driven queues: the
// persistent download queue and the in-memory folder-batch queue.
// Both feed the same Orchestrator worker pools; neither runs a media
// tool directly.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/internal/metrics"
	"github.com/nomusic/nomusic/pkg/logger"
)

// submitDownloadFunc matches Orchestrator.SubmitDownload.
type submitDownloadFunc func(opts model.DownloadOptions) string

// statusFunc matches Orchestrator.Status.
type statusFunc func(jobID string) (*model.Job, bool)

// DownloadQueue is the persistent, strict-FIFO download queue.
// One dispatcher goroutine consumes Pending items at a time (default
// concurrency 1); every mutation is persisted atomically before the
// lock is released.
type DownloadQueue struct {
	mu        sync.Mutex
	items     []*model.QueueItem
	running   bool
	persister ports.QueuePersister
	submit    submitDownloadFunc
	status    statusFunc

	wake  chan struct{}
	close chan struct{}
	log   *logger.Logger
}

// New loads any persisted queue state and starts the dispatcher loop.
// This implementation always starts stopped and requires an explicit
// Start(), since whether the prior process had the dispatcher running
// is not itself persisted state.
func New(persister ports.QueuePersister, submit submitDownloadFunc, status statusFunc, log *logger.Logger) (*DownloadQueue, error) {
	items, err := persister.Load()
	if err != nil {
		return nil, err
	}
	q := &DownloadQueue{
		items:     items,
		persister: persister,
		submit:    submit,
		status:    status,
		wake:      make(chan struct{}, 1),
		close:     make(chan struct{}),
		log:       log,
	}
	go q.dispatchLoop()
	return q, nil
}

// Add appends a new Pending item and returns its queue_id (POST
// /queue/add).
func (q *DownloadQueue) Add(url, formatKind, formatID, subtitles string, autoSeparate bool, sepOpts model.SeparationOptions) string {
	item := &model.QueueItem{
		QueueID:      uuid.New().String(),
		URL:          url,
		FormatKind:   formatKind,
		FormatID:     formatID,
		Subtitles:    subtitles,
		AutoSeparate: autoSeparate,
		SeparateOpts: sepOpts,
		Status:       model.QueueItemPending,
		CreatedAt:    time.Now(),
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.persistLocked()
	q.mu.Unlock()
	q.kick()
	return item.QueueID
}

// Remove drops a Pending item.
func (q *DownloadQueue) Remove(queueID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.QueueID == queueID {
			if it.Status != model.QueueItemPending {
				return false
			}
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.persistLocked()
			return true
		}
	}
	return false
}

// ClearDone removes Completed and Failed items, returning how many
// were dropped.
func (q *DownloadQueue) ClearDone() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0:0]
	removed := 0
	for _, it := range q.items {
		if it.Status == model.QueueItemCompleted || it.Status == model.QueueItemFailed {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	q.persistLocked()
	return removed
}

// Start toggles the dispatcher on and wakes it immediately.
func (q *DownloadQueue) Start() {
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()
	q.kick()
}

// Stop toggles the dispatcher off. An in-flight item is not
// cancelled, only the next pick is prevented.
func (q *DownloadQueue) Stop() {
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
}

// List returns a snapshot copy of all items plus whether the
// dispatcher is currently running.
func (q *DownloadQueue) List() ([]*model.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*model.QueueItem, len(q.items))
	for i, it := range q.items {
		cp := *it
		out[i] = &cp
	}
	return out, q.running
}

// Shutdown stops the dispatcher loop permanently. In-flight items are
// left to finish on their own; the process owner is expected to wait
// on the Orchestrator's jobs directly if needed.
func (q *DownloadQueue) Shutdown() {
	close(q.close)
}

func (q *DownloadQueue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *DownloadQueue) persistLocked() {
	if err := q.persister.Save(q.items); err != nil {
		q.log.Warn("failed to persist download queue", zap.Error(err))
	}
	q.reportDepthLocked()
}

// reportDepthLocked updates the queue depth gauge by status. Called
// under q.mu so the snapshot it counts is consistent.
func (q *DownloadQueue) reportDepthLocked() {
	counts := map[model.QueueItemStatus]int{}
	for _, it := range q.items {
		counts[it.Status]++
	}
	for _, status := range []model.QueueItemStatus{
		model.QueueItemPending, model.QueueItemDownloading,
		model.QueueItemCompleted, model.QueueItemFailed,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (q *DownloadQueue) nextPending() *model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.Status == model.QueueItemPending {
			return it
		}
	}
	return nil
}

// dispatchLoop is the single FIFO worker: pop the oldest Pending item,
// run it to a terminal state, then look for the next one.
func (q *DownloadQueue) dispatchLoop() {
	for {
		select {
		case <-q.close:
			return
		case <-q.wake:
		}

		q.mu.Lock()
		running := q.running
		q.mu.Unlock()
		if !running {
			continue
		}

		item := q.nextPending()
		if item == nil {
			continue
		}
		q.runItem(item)
		q.kick()
	}
}

func (q *DownloadQueue) runItem(item *model.QueueItem) {
	q.mu.Lock()
	item.Status = model.QueueItemDownloading
	item.AttemptCount++
	q.persistLocked()
	q.mu.Unlock()

	opts := model.DownloadOptions{
		URL:          item.URL,
		FormatKind:   item.FormatKind,
		FormatID:     item.FormatID,
		Subtitles:    item.Subtitles,
		AutoSeparate: item.AutoSeparate,
		SeparateOpts: item.SeparateOpts,
	}
	jobID := q.submit(opts)

	q.mu.Lock()
	item.JobID = jobID
	q.persistLocked()
	q.mu.Unlock()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-q.close:
			return
		case <-ticker.C:
		}

		job, ok := q.status(jobID)
		if !ok {
			continue
		}

		q.mu.Lock()
		item.Progress = job.Progress
		if job.State.IsTerminal() {
			if job.State == model.StateCompleted {
				item.Status = model.QueueItemCompleted
			} else {
				item.Status = model.QueueItemFailed
				if job.Error != nil {
					item.Error = job.Error.Message
				}
			}
			q.persistLocked()
			q.mu.Unlock()
			return
		}
		q.persistLocked()
		q.mu.Unlock()
	}
}
