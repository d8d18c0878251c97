// Command nomusic is the CLI mirror of nomusicd: it drives the same
// Tool Locator, Media Probe, Separator Drivers and Job Orchestrator
// in-process, without a server, for one-shot separate/download runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/infrastructure/ffmpeg"
	"github.com/nomusic/nomusic/infrastructure/storage"
	"github.com/nomusic/nomusic/internal/align"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/downloader"
	"github.com/nomusic/nomusic/internal/orchestrator"
	"github.com/nomusic/nomusic/internal/probe"
	"github.com/nomusic/nomusic/internal/queue"
	"github.com/nomusic/nomusic/internal/separator"
	"github.com/nomusic/nomusic/internal/store"
	"github.com/nomusic/nomusic/internal/tools"
	"github.com/nomusic/nomusic/pkg/logger"
)

// exit codes, per the documented CLI contract.
const (
	exitOK        = 0
	exitFatal     = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if err == context.Canceled {
			return exitCancelled
		}
		fmt.Fprintln(os.Stderr, "nomusic:", err)
		if _, ok := err.(*usageError); ok {
			return exitUsage
		}
		return exitFatal
	}
	return exitOK
}

// usageError marks an error that should map to exit code 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "nomusic",
		Short:         "Local vocal-separation CLI: separate and download commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional JSON config file (same schema as nomusicd)")

	root.AddCommand(newSeparateCommand(&configFile))
	root.AddCommand(newDownloadCommand(&configFile))
	return root
}

// cliEnv is every collaborator a one-shot command needs, built the
// same way nomusicd wires its server.
type cliEnv struct {
	cfg    config.ServerConfig
	log    *logger.Logger
	orch   *orchestrator.Orchestrator
	closer func()
}

func buildEnv(configFile string) (*cliEnv, error) {
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Development)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.State, cfg.TempRoot, cfg.DownloadDir, cfg.NomusicDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	locator := tools.New(tools.Config{BaseDir: cfg.ToolsDir, Logger: log})
	ffmpegExec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{Resolver: locator, Logger: log})
	if err != nil {
		return nil, err
	}
	prober := probe.New(ffmpegExec)

	spleeter := separator.NewSpleeterDriver(locator, ffmpegExec, prober, cfg.DemucsWorkers, log)
	demucs := separator.NewDemucsDriver(locator, ffmpegExec, prober, cfg.DemucsWorkers, cfg.DemucsModel, log)
	aligner := align.New(log)
	mixer := align.NewMixer()

	presets, err := config.NewPresetManager(cfg.PresetFile())
	if err != nil {
		return nil, err
	}
	jobs := store.NewJobTable()
	library := store.NewLibraryFileStore(cfg.LibraryFile())
	ytdlp := downloader.New(locator, log)

	orch := orchestrator.New(orchestrator.Config{
		Locator:           locator,
		Prober:            prober,
		FFmpeg:            ffmpegExec,
		Spleeter:          spleeter,
		Demucs:            demucs,
		Aligner:           aligner,
		Mixer:             mixer,
		Downloader:        ytdlp,
		Presets:           presets,
		Jobs:              jobs,
		Library:           library,
		Storage:           storage.NewLocalStorage(),
		TempRoot:          cfg.TempRoot,
		NomusicDir:        cfg.NomusicDir,
		DownloadDir:       cfg.DownloadDir,
		SeparationWorkers: cfg.SeparationWorkers,
		DownloadWorkers:   cfg.DownloadWorkers,
		Log:               log,
	})

	return &cliEnv{
		cfg:  cfg,
		log:  log,
		orch: orch,
		closer: func() {
			orch.Shutdown()
			log.Sync()
		},
	}, nil
}

func newSeparateCommand(configFile *string) *cobra.Command {
	var (
		file     string
		folder   string
		modelStr string
		duration int
		keepTemp bool
	)

	cmd := &cobra.Command{
		Use:   "separate",
		Short: "Separate vocals from one file, or every file in a folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && folder == "" {
				return &usageError{"one of --file or --folder is required"}
			}
			if file != "" && folder != "" {
				return &usageError{"--file and --folder are mutually exclusive"}
			}

			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.closer()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts, err := separationOptionsFromFlags(modelStr, keepTemp)
			if err != nil {
				return &usageError{err.Error()}
			}

			if folder != "" {
				return runFolder(ctx, env, folder, opts)
			}
			return runSeparateFile(ctx, env, file, duration, opts)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "input media file to separate")
	cmd.Flags().StringVar(&folder, "folder", "", "folder to scan and separate non-recursively")
	cmd.Flags().StringVar(&modelStr, "model", "both", "spleeter | demucs | both")
	cmd.Flags().IntVar(&duration, "duration", 0, "trim input to the first N seconds before separating (0 = full length)")
	cmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "keep the job's temp directory after completion")
	return cmd
}

func separationOptionsFromFlags(modelStr string, keepTemp bool) (model.SeparationOptions, error) {
	var m model.SeparatorModel
	switch modelStr {
	case "spleeter":
		m = model.ModelSpleeter
	case "demucs":
		m = model.ModelDemucs
	case "both", "":
		m = model.ModelBoth
	default:
		return model.SeparationOptions{}, fmt.Errorf("unknown --model %q, want spleeter|demucs|both", modelStr)
	}
	return model.SeparationOptions{Model: m, KeepTemp: keepTemp}, nil
}

// runSeparateFile trims the input to duration seconds when requested,
// submits it, and blocks until the job reaches a terminal state.
func runSeparateFile(ctx context.Context, env *cliEnv, file string, duration int, opts model.SeparationOptions) error {
	inputPath := file
	if duration > 0 {
		trimmed, err := trimToDuration(ctx, env, file, duration)
		if err != nil {
			return fmt.Errorf("trimming input to %ds: %w", duration, err)
		}
		inputPath = trimmed
	}

	jobID, probeResult, err := env.orch.SubmitSeparation(inputPath, opts)
	if err != nil {
		return err
	}
	if probeResult != nil {
		fmt.Printf("submitted job %s (duration %.1fs)\n", jobID, probeResult.DurationS)
	}
	return waitForJob(ctx, env, jobID)
}

func trimToDuration(ctx context.Context, env *cliEnv, file string, duration int) (string, error) {
	out := filepath.Join(env.cfg.TempRoot, fmt.Sprintf("trim-%d%s", time.Now().UnixNano(), filepath.Ext(file)))
	args := []string{"-y", "-i", file, "-t", fmt.Sprintf("%d", duration), "-c", "copy", out}
	locator := tools.New(tools.Config{BaseDir: env.cfg.ToolsDir, Logger: env.log})
	exec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{Resolver: locator, Logger: env.log})
	if err != nil {
		return "", err
	}
	if err := exec.Execute(ctx, args); err != nil {
		return "", err
	}
	return out, nil
}

func runFolder(ctx context.Context, env *cliEnv, folder string, opts model.SeparationOptions) error {
	prober := probe.New(mustExecutor(env))
	fq := queue.NewFolderQueue(prober, env.orch.SubmitSeparation, env.orch.Status, 1, env.log)

	queueID, files, err := fq.Scan(ctx, folder)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d file(s) in %s\n", len(files), folder)

	batchID, _, err := fq.Process(ctx, queueID, opts)
	if err != nil {
		return err
	}
	fmt.Printf("processing batch %s\n", batchID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		snap, ok := fq.Snapshot(batchID)
		if !ok {
			return fmt.Errorf("batch %s disappeared", batchID)
		}
		if snap.Processed >= snap.Total {
			fmt.Printf("batch complete: %d succeeded, %d failed\n", snap.Success, snap.Failed)
			if snap.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", snap.Failed, snap.Total)
			}
			return nil
		}
	}
}

func mustExecutor(env *cliEnv) *ffmpeg.Executor {
	locator := tools.New(tools.Config{BaseDir: env.cfg.ToolsDir, Logger: env.log})
	exec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{Resolver: locator, Logger: env.log})
	if err != nil {
		// The same executor already succeeded once in buildEnv; a
		// failure here would mean the toolchain vanished mid-run.
		panic(err)
	}
	return exec
}

func newDownloadCommand(configFile *string) *cobra.Command {
	var (
		separateAfter bool
		modelStr      string
	)

	cmd := &cobra.Command{
		Use:   "download <url> [filename]",
		Short: "Download a remote URL via yt-dlp, optionally auto-separating it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.closer()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sepOpts, err := separationOptionsFromFlags(modelStr, false)
			if err != nil {
				return &usageError{err.Error()}
			}

			var filename string
			if len(args) > 1 {
				filename = args[1]
			}
			opts := model.DownloadOptions{
				URL:          args[0],
				Filename:     filename,
				FormatKind:   "audio",
				AutoSeparate: separateAfter,
				SeparateOpts: sepOpts,
			}
			jobID := env.orch.SubmitDownload(opts)
			fmt.Printf("submitted download job %s\n", jobID)
			return waitForJob(ctx, env, jobID)
		},
	}

	cmd.Flags().BoolVar(&separateAfter, "separate", false, "chain vocal separation once the download finishes")
	cmd.Flags().StringVar(&modelStr, "model", "both", "spleeter | demucs | both (only used with --separate)")
	return cmd
}

// waitForJob polls the Orchestrator's status surface until jobID
// reaches a terminal state, printing each step transition, and
// returns ctx.Err() (mapped to exit 130 by main) on cancellation.
func waitForJob(ctx context.Context, env *cliEnv, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastStep := ""
	for {
		select {
		case <-ctx.Done():
			env.orch.Cancel(jobID)
			return ctx.Err()
		case <-ticker.C:
		}

		job, ok := env.orch.Status(jobID)
		if !ok {
			return fmt.Errorf("job %s vanished from the job table", jobID)
		}
		if job.CurrentStep != lastStep {
			fmt.Printf("[%3d%%] %s\n", job.Progress, job.CurrentStep)
			lastStep = job.CurrentStep
		}
		if !job.State.IsTerminal() {
			continue
		}

		switch job.State {
		case model.StateCompleted:
			for _, f := range job.ResultPaths {
				fmt.Println("result:", f)
			}
			return nil
		case model.StateCancelled:
			return ctx.Err()
		default:
			if job.Error != nil {
				return fmt.Errorf("%s: %s", job.Error.Kind, job.Error.Message)
			}
			return fmt.Errorf("job %s failed", jobID)
		}
	}
}
