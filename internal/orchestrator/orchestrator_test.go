package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/infrastructure/storage"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/mocks"
	"github.com/nomusic/nomusic/internal/store"
	"github.com/nomusic/nomusic/pkg/logger"
)

const loudnormStderr = `[Parsed_loudnorm_0]
{
	"input_i" : "-23.00",
	"input_tp" : "-2.00",
	"input_lra" : "7.00",
	"input_thresh" : "-33.00",
	"target_offset" : "0.00"
}`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mocks.FFmpegExecutor) {
	t.Helper()
	log, _ := logger.New(false)

	exec := &mocks.FFmpegExecutor{
		ExecuteFunc: func(ctx context.Context, args []string) error {
			dest := args[len(args)-1]
			return os.WriteFile(dest, []byte("fake"), 0o644)
		},
		ExecuteCaptureFunc: func(ctx context.Context, args []string) ([]byte, []byte, error) {
			return nil, []byte(loudnormStderr), nil
		},
	}

	presets, err := config.NewPresetManager(filepath.Join(t.TempDir(), "missing-video.json"))
	if err != nil {
		t.Fatalf("NewPresetManager: %v", err)
	}

	o := New(Config{
		Prober: &mocks.MediaProber{
			ProbeFunc: func(ctx context.Context, path string) (*model.MediaProbe, error) {
				return &model.MediaProbe{DurationS: 10, AudioCodec: "aac"}, nil
			},
		},
		FFmpeg:   exec,
		Spleeter: &mocks.SeparatorDriver{DriverName: "spleeter"},
		Demucs:   &mocks.SeparatorDriver{DriverName: "demucs"},
		Aligner:  &mocks.Aligner{},
		Mixer:    &mocks.Mixer{},
		Presets:  presets,
		Jobs:       store.NewJobTable(),
		Storage:    storage.NewLocalStorage(),
		TempRoot:   t.TempDir(),
		NomusicDir: t.TempDir(),
		Log:        log,
	})
	t.Cleanup(o.Shutdown)
	return o, exec
}

func waitForTerminal(t *testing.T, o *Orchestrator, jobID string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := o.Status(jobID)
		if ok && job.State.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestSubmitSeparationRejectsMissingInput(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, _, err := o.SubmitSeparation(filepath.Join(t.TempDir(), "does-not-exist.wav"), model.SeparationOptions{})
	if err == nil {
		t.Fatal("expected an error for a nonexistent input path")
	}
}

func TestSubmitSeparationRunsToCompletion(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	inputPath := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(inputPath, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	jobID, preview, err := o.SubmitSeparation(inputPath, model.SeparationOptions{Model: model.ModelBoth})
	if err != nil {
		t.Fatalf("SubmitSeparation: %v", err)
	}
	if preview == nil {
		t.Error("expected a synchronous preview probe")
	}

	job := waitForTerminal(t, o, jobID)
	if job.State != model.StateCompleted {
		t.Fatalf("job state = %v, want Completed (error=%+v)", job.State, job.Error)
	}
	if len(job.ResultPaths) != 1 {
		t.Fatalf("ResultPaths = %+v, want one final output", job.ResultPaths)
	}
	if _, err := os.Stat(job.ResultPaths[0]); err != nil {
		t.Errorf("final output missing on disk: %v", err)
	}
	if _, err := os.Stat(job.TempDir); !os.IsNotExist(err) {
		t.Errorf("TempDir %q should be removed once the job is terminal, stat err = %v", job.TempDir, err)
	}
}

// TestCleanupTempNeverRemovesPublishedResult pins down the fix for
// remux writing into a persistent directory distinct from TempDir:
// cleanupTemp must delete only the job's working subdirectories (and
// the now-empty TempDir itself), never anything published outside it.
func TestCleanupTempNeverRemovesPublishedResult(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	tempDir := t.TempDir()
	for _, sub := range workingSubdirs {
		if err := os.MkdirAll(filepath.Join(tempDir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
	}

	resultDir := t.TempDir()
	resultFile := filepath.Join(resultDir, "nomusic-clip.mp4")
	if err := os.WriteFile(resultFile, []byte("result"), 0o644); err != nil {
		t.Fatalf("write resultFile: %v", err)
	}

	job := &model.Job{ID: "job-1", TempDir: tempDir, ResultPaths: []string{resultFile}}
	if err := o.cleanupTemp(job); err != nil {
		t.Fatalf("cleanupTemp: %v", err)
	}

	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Errorf("TempDir %q should have been removed entirely, stat err = %v", tempDir, err)
	}
	if _, err := os.Stat(resultFile); err != nil {
		t.Errorf("the published result outside TempDir should survive cleanupTemp: %v", err)
	}
}

func TestSubmitSeparationSingleDriverSurvivesOtherFailure(t *testing.T) {
	log, _ := logger.New(false)
	exec := &mocks.FFmpegExecutor{
		ExecuteFunc: func(ctx context.Context, args []string) error {
			return os.WriteFile(args[len(args)-1], []byte("fake"), 0o644)
		},
		ExecuteCaptureFunc: func(ctx context.Context, args []string) ([]byte, []byte, error) {
			return nil, []byte(loudnormStderr), nil
		},
	}
	presets, _ := config.NewPresetManager(filepath.Join(t.TempDir(), "missing.json"))

	o := New(Config{
		Prober: &mocks.MediaProber{ProbeFunc: func(ctx context.Context, path string) (*model.MediaProbe, error) {
			return &model.MediaProbe{DurationS: 5}, nil
		}},
		FFmpeg:   exec,
		Spleeter: &mocks.SeparatorDriver{SeparateFunc: func(ctx context.Context, wavIn, outDir string, cb func(float64, string)) (string, error) {
			return "", context.DeadlineExceeded
		}},
		Demucs:  &mocks.SeparatorDriver{},
		Aligner: &mocks.Aligner{},
		Mixer:   &mocks.Mixer{},
		Presets: presets,
		Jobs:       store.NewJobTable(),
		Storage:    storage.NewLocalStorage(),
		TempRoot:   t.TempDir(),
		NomusicDir: t.TempDir(),
		Log:        log,
	})
	t.Cleanup(o.Shutdown)

	inputPath := filepath.Join(t.TempDir(), "input.wav")
	os.WriteFile(inputPath, []byte("fake"), 0o644)

	jobID, _, err := o.SubmitSeparation(inputPath, model.SeparationOptions{Model: model.ModelBoth})
	if err != nil {
		t.Fatalf("SubmitSeparation: %v", err)
	}
	job := waitForTerminal(t, o, jobID)
	if job.State != model.StateCompleted {
		t.Fatalf("expected the surviving driver to still complete the job, got %v (err=%+v)", job.State, job.Error)
	}
}

func TestCancelRejectsUnknownJob(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Cancel("unknown"); err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}

func TestCancelRejectsTerminalJob(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	inputPath := filepath.Join(t.TempDir(), "input.wav")
	os.WriteFile(inputPath, []byte("fake"), 0o644)

	jobID, _, _ := o.SubmitSeparation(inputPath, model.SeparationOptions{Model: model.ModelBoth})
	waitForTerminal(t, o, jobID)

	accepted, err := o.Cancel(jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if accepted {
		t.Error("Cancel() on an already-terminal job should report not accepted")
	}
}

func TestListFiltersByKindAndState(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	inputPath := filepath.Join(t.TempDir(), "input.wav")
	os.WriteFile(inputPath, []byte("fake"), 0o644)

	jobID, _, _ := o.SubmitSeparation(inputPath, model.SeparationOptions{Model: model.ModelBoth})
	waitForTerminal(t, o, jobID)

	completed := o.List(model.ListFilter{Kind: model.KindSeparate, State: model.StateCompleted})
	if len(completed) != 1 {
		t.Fatalf("List(separate, completed) = %+v, want 1", completed)
	}

	downloads := o.List(model.ListFilter{Kind: model.KindDownload})
	if len(downloads) != 0 {
		t.Fatalf("List(download) = %+v, want 0", downloads)
	}
}
