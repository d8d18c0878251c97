package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/metrics"
	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
)

// Config wires every collaborator the Orchestrator needs: the tool
// locator, prober, separator drivers, aligner/mixer, plus storage and
// process-wide config.
type Config struct {
	Locator    ports.ToolLocator
	Prober     ports.MediaProber
	FFmpeg     ports.FFmpegExecutor
	Spleeter   ports.SeparatorDriver
	Demucs     ports.SeparatorDriver
	Aligner    ports.Aligner
	Mixer      ports.Mixer
	Downloader ports.Downloader
	Presets    *config.PresetManager
	Jobs       ports.JobStore
	Library    ports.LibraryStore
	Storage    ports.StorageProvider

	TempRoot          string // root dir for per-job working directories (removed on terminal transition)
	NomusicDir        string // persistent dir for published separation results
	DownloadDir       string // download output directory
	SeparationWorkers int    // default 1
	DownloadWorkers   int    // default 1

	Log *logger.Logger
}

// Orchestrator implements the Job Orchestrator's public operations:
// submit, status, cancel, list, for both separation and download Jobs.
type Orchestrator struct {
	jobs    ports.JobStore
	library ports.LibraryStore

	prober     ports.MediaProber
	downloader ports.Downloader
	storage    ports.StorageProvider
	pipeline   *pipeline

	sepPool *workerPool
	dlPool  *workerPool

	downloadDir string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	rootCancel context.CancelFunc

	log *logger.Logger
}

// New constructs an Orchestrator and starts its worker pools.
func New(cfg Config) *Orchestrator {
	sepWorkers := cfg.SeparationWorkers
	if sepWorkers <= 0 {
		sepWorkers = 1
	}
	dlWorkers := cfg.DownloadWorkers
	if dlWorkers <= 0 {
		dlWorkers = 1
	}
	log := cfg.Log
	if log == nil {
		log, _ = logger.New(false)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		jobs:       cfg.Jobs,
		library:    cfg.Library,
		prober:     cfg.Prober,
		downloader: cfg.Downloader,
		storage:    cfg.Storage,
		pipeline: &pipeline{
			ffmpeg: cfg.FFmpeg,
			prober: cfg.Prober,
			separators: separatorSet{
				spleeter: cfg.Spleeter,
				demucs:   cfg.Demucs,
			},
			aligner:    cfg.Aligner,
			mixer:      cfg.Mixer,
			presets:    cfg.Presets,
			tempRoot:   cfg.TempRoot,
			nomusicDir: cfg.NomusicDir,
			log:        log,
		},
		sepPool:     newWorkerPool(rootCtx, sepWorkers),
		dlPool:      newWorkerPool(rootCtx, dlWorkers),
		downloadDir: cfg.DownloadDir,
		cancels:     make(map[string]context.CancelFunc),
		rootCancel:  rootCancel,
		log:         log,
	}
	return o
}

// Shutdown stops both worker pools. Stopping a pool cancels the context
// every in-flight job runs under, so running jobs are cancelled too.
func (o *Orchestrator) Shutdown() {
	o.sepPool.stop()
	o.dlPool.stop()
	o.rootCancel()
}

// SubmitSeparation enqueues a separation Job and returns its id
// immediately. The returned MediaProbe is a synchronous preview for
// the HTTP response; the pipeline's own Probe phase computes the
// authoritative copy cached on the Job.
func (o *Orchestrator) SubmitSeparation(inputPath string, opts model.SeparationOptions) (string, *model.MediaProbe, error) {
	exists, err := o.storage.Exists(context.Background(), inputPath)
	if err != nil || !exists {
		return "", nil, pkgerrors.NewValidationError("input_path", inputPath, "input file does not exist")
	}
	if size, err := o.storage.Size(context.Background(), inputPath); err == nil {
		o.log.Debug("separation input", zap.String("input_path", inputPath), zap.Int64("size_bytes", size))
	}

	var preview *model.MediaProbe
	if o.prober != nil {
		preview, _ = o.prober.Probe(context.Background(), inputPath)
	}

	job := &model.Job{
		ID:           uuid.New().String(),
		Kind:         model.KindSeparate,
		InputPath:    inputPath,
		SeparateOpts: &opts,
		State:        model.StateQueued,
		CreatedAt:    time.Now(),
	}
	o.jobs.Put(job)
	o.runInPool(o.sepPool, job.ID, o.runSeparationJob)
	return job.ID, preview, nil
}

// SubmitDownload enqueues a download Job.
func (o *Orchestrator) SubmitDownload(opts model.DownloadOptions) string {
	job := &model.Job{
		ID:           uuid.New().String(),
		Kind:         model.KindDownload,
		DownloadOpts: &opts,
		State:        model.StateQueued,
		CreatedAt:    time.Now(),
	}
	o.jobs.Put(job)
	o.runInPool(o.dlPool, job.ID, o.runDownloadJob)
	return job.ID
}

// runInPool registers a cancel func for jobID and submits a task that
// runs fn with the job's own cancellable context.
func (o *Orchestrator) runInPool(pool *workerPool, jobID string, fn func(ctx context.Context, jobID string)) {
	pool.submit(func(parent context.Context) {
		ctx, cancel := context.WithCancel(parent)
		o.mu.Lock()
		o.cancels[jobID] = cancel
		o.mu.Unlock()

		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, jobID)
			o.mu.Unlock()
		}()

		fn(ctx, jobID)
	})
}

// Status returns an immutable snapshot of the Job at call time.
func (o *Orchestrator) Status(jobID string) (*model.Job, bool) {
	return o.jobs.Get(jobID)
}

// List returns snapshots of all jobs matching filter.
func (o *Orchestrator) List(filter model.ListFilter) []*model.Job {
	return o.jobs.List(filter)
}

// Cancel requests termination of jobID's Job. Already-terminal jobs
// reject with ok=false.
func (o *Orchestrator) Cancel(jobID string) (accepted bool, err error) {
	job, ok := o.jobs.Get(jobID)
	if !ok {
		return false, pkgerrors.NewValidationError("job_id", jobID, "job not found")
	}
	if job.State.IsTerminal() {
		return false, nil
	}

	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return true, nil
}

// updateProgress advances a job's progress/current_step monotonically
// and appends to its step history (progress never decreases within a
// Running job). The read, monotonic clamp and write happen under the
// job table's single lock via Update, so concurrent calls from the
// Spleeter and Demucs goroutines (and their per-segment fan-out)
// serialize instead of racing on an independent Get+Put.
func (o *Orchestrator) updateProgress(jobID string, progress int, step string) {
	o.jobs.Update(jobID, func(job *model.Job) {
		if progress < job.Progress {
			progress = job.Progress
		}
		job.Progress = progress
		job.CurrentStep = step
		job.StepHistory = append(job.StepHistory, step)
	})
}

func (o *Orchestrator) markRunning(jobID string) *model.Job {
	var snapshot *model.Job
	ok := o.jobs.Update(jobID, func(job *model.Job) {
		job.State = model.StateRunning
		job.StartedAt = time.Now()
		snapshot = job.Copy()
	})
	if !ok {
		return nil
	}
	metrics.ActiveJobs.WithLabelValues(string(snapshot.Kind)).Inc()
	return snapshot
}

func (o *Orchestrator) finish(jobID string, state model.State, resultPaths []string, probe *model.MediaProbe, jobErr *model.JobError) {
	var snapshot *model.Job
	ok := o.jobs.Update(jobID, func(job *model.Job) {
		job.State = state
		job.FinishedAt = time.Now()
		if resultPaths != nil {
			job.ResultPaths = resultPaths
		}
		if probe != nil {
			job.Metadata = probe
		}
		job.Error = jobErr
		snapshot = job.Copy()
	})
	if !ok {
		return
	}
	job := snapshot

	metrics.ActiveJobs.WithLabelValues(string(job.Kind)).Dec()
	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(state)).Inc()

	var teardown error
	teardown = multierr.Append(teardown, o.cleanupTemp(job))

	if state == model.StateCompleted && o.library != nil {
		entry := ports.LibraryEntry{TaskID: job.ID, ResultFiles: job.ResultPaths, Metadata: job.Metadata}
		teardown = multierr.Append(teardown, o.library.Append(entry))
	}

	if teardown != nil {
		o.log.Warn("job teardown had errors", zap.String("job_id", job.ID), zap.Error(teardown))
	}
}

// workingSubdirs are the pipeline's scratch directories under a job's
// TempDir. The published result lives outside TempDir entirely (see
// pipeline.remux), so cleanupTemp never needs to special-case it.
var workingSubdirs = []string{"extract", "spleeter", "demucs", "mix"}

// cleanupTemp removes a Job's working subdirectories on terminal
// transition unless the debug flag was set. It never touches
// anything outside TempDir, so the published result in NomusicDir
// always survives.
func (o *Orchestrator) cleanupTemp(job *model.Job) error {
	if job.TempDir == "" {
		return nil
	}
	keepTemp := os.Getenv("NOMUSIC_KEEP_TEMP") != ""
	if job.SeparateOpts != nil && job.SeparateOpts.KeepTemp {
		keepTemp = true
	}
	if keepTemp {
		return nil
	}
	var err error
	for _, sub := range workingSubdirs {
		if rmErr := os.RemoveAll(filepath.Join(job.TempDir, sub)); rmErr != nil {
			err = multierr.Append(err, rmErr)
		}
	}
	if rmErr := os.Remove(job.TempDir); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

func (o *Orchestrator) runSeparationJob(ctx context.Context, jobID string) {
	job := o.markRunning(jobID)
	if job == nil {
		return
	}

	update := func(progress int, step string) {
		o.updateProgress(jobID, progress, step)
	}

	result, err := o.pipeline.run(ctx, job, update)
	// pipeline.run sets TempDir on the snapshot only; copy it to the
	// stored record so finish's cleanupTemp sees it.
	o.jobs.Update(jobID, func(j *model.Job) { j.TempDir = job.TempDir })
	if ctx.Err() != nil {
		o.finish(jobID, model.StateCancelled, nil, nil, &model.JobError{Kind: "Cancelled", Message: "job was cancelled"})
		return
	}
	if err != nil {
		o.finish(jobID, model.StateFailed, nil, nil, jobErrorFrom(err))
		return
	}
	o.finish(jobID, model.StateCompleted, []string{result.finalPath}, result.probe, nil)
}

func (o *Orchestrator) runDownloadJob(ctx context.Context, jobID string) {
	job := o.markRunning(jobID)
	if job == nil {
		return
	}
	opts := *job.DownloadOpts

	destDir := filepath.Join(o.downloadDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		o.finish(jobID, model.StateFailed, nil, nil, jobErrorFrom(err))
		return
	}

	path, err := downloadWithRetry(ctx, o.downloader, opts, destDir, func(pct float64, step string) {
		o.updateProgress(jobID, int(pct), step)
	})
	if ctx.Err() != nil {
		o.finish(jobID, model.StateCancelled, nil, nil, &model.JobError{Kind: "Cancelled", Message: "download was cancelled"})
		return
	}
	if err != nil {
		o.finish(jobID, model.StateFailed, nil, nil, jobErrorFrom(err))
		return
	}

	o.finish(jobID, model.StateCompleted, []string{path}, nil, nil)

	if opts.AutoSeparate {
		if _, _, err := o.SubmitSeparation(path, opts.SeparateOpts); err != nil {
			o.log.Warn("auto-separate submission failed after download",
				zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

func jobErrorFrom(err error) *model.JobError {
	kind := "ProcessingError"
	if code, ok := pkgerrors.CodeOf(err); ok {
		kind = string(code)
	}
	return &model.JobError{Kind: kind, Message: err.Error()}
}
