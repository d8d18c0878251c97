// Package store implements the guarded job table and the on-disk JSON
// stores (download_queue.json, library.json) behind atomic
// write-tmp-then-rename.
package store

import (
	"sync"

	"github.com/nomusic/nomusic/domain/model"
)

// JobTable is the guarded, in-memory job map the Orchestrator owns.
// Reads return copies so external callers never observe partially
// mutated state.
type JobTable struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewJobTable creates an empty JobTable.
func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[string]*model.Job)}
}

// Put inserts or replaces the job record by id.
func (t *JobTable) Put(j *model.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[j.ID] = j
}

// Get returns a copy of the job for id, if present.
func (t *JobTable) Get(id string) (*model.Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Copy(), true
}

// List returns snapshots of all jobs matching filter.
func (t *JobTable) List(filter model.ListFilter) []*model.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		if filter.Match(j) {
			out = append(out, j.Copy())
		}
	}
	return out
}

// Update applies fn to the stored job for id under the table's write
// lock: the read, mutation and write happen as one atomic step, so
// concurrent updates (e.g. progress reports from two separator
// drivers) serialize through this lock instead of racing on an
// independent Get+Put. fn receives the live record, not a copy.
func (t *JobTable) Update(id string, fn func(j *model.Job)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	return true
}

// Delete removes the job record by id.
func (t *JobTable) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}
