// Command nomusicd runs the local HTTP server: the Job Orchestrator,
// both queues and the full separation/download pipeline behind a JSON
// HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nomusic/nomusic/infrastructure/ffmpeg"
	"github.com/nomusic/nomusic/infrastructure/storage"
	"github.com/nomusic/nomusic/internal/align"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/downloader"
	"github.com/nomusic/nomusic/internal/httpapi"
	"github.com/nomusic/nomusic/internal/metrics"
	"github.com/nomusic/nomusic/internal/orchestrator"
	"github.com/nomusic/nomusic/internal/probe"
	"github.com/nomusic/nomusic/internal/queue"
	"github.com/nomusic/nomusic/internal/separator"
	"github.com/nomusic/nomusic/internal/store"
	"github.com/nomusic/nomusic/internal/tools"
	"github.com/nomusic/nomusic/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "optional JSON config file (server settings, viper-loaded)")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configFile)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Development)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("nomusicd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, log *logger.Logger) error {
	metrics.Register(prometheus.DefaultRegisterer)

	for _, dir := range []string{cfg.State, cfg.TempRoot, cfg.DownloadDir, cfg.NomusicDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	locator := tools.New(tools.Config{BaseDir: cfg.ToolsDir, Logger: log})

	ffmpegExec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{Resolver: locator, Logger: log})
	if err != nil {
		return err
	}
	prober := probe.New(ffmpegExec)

	spleeter := separator.NewSpleeterDriver(locator, ffmpegExec, prober, cfg.DemucsWorkers, log)
	demucs := separator.NewDemucsDriver(locator, ffmpegExec, prober, cfg.DemucsWorkers, cfg.DemucsModel, log)

	aligner := align.New(log)
	mixer := align.NewMixer()

	presets, err := config.NewPresetManager(cfg.PresetFile())
	if err != nil {
		return err
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
	defer orch.Shutdown()

	queuePersister := store.NewQueueFileStore(cfg.QueueFile())
	downloadQueue, err := queue.New(queuePersister, orch.SubmitDownload, orch.Status, log)
	if err != nil {
		return err
	}
	defer downloadQueue.Shutdown()

	folderQueue := queue.NewFolderQueue(prober, orch.SubmitSeparation, orch.Status, cfg.FolderWorkers, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Orchestrator: orch,
		Downloader:   ytdlp,
		Library:      library,
		Downloads:    downloadQueue,
		Folders:      folderQueue,
		Presets:      presets,
		DownloadDir:  cfg.DownloadDir,
		NomusicDir:   cfg.NomusicDir,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("nomusicd listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
