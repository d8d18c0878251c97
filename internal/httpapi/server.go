// Package httpapi exposes the Orchestrator and Queue Manager over a
// local, non-authenticating JSON HTTP surface. No handler ever
// touches the media toolchain directly; all of them submit work to
// the Orchestrator's worker pools and return immediately.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/orchestrator"
	"github.com/nomusic/nomusic/internal/queue"
	"github.com/nomusic/nomusic/pkg/logger"
)

// Deps wires every collaborator the HTTP surface needs.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Downloader   ports.Downloader
	Library      ports.LibraryStore
	Downloads    *queue.DownloadQueue
	Folders      *queue.FolderQueue
	Presets      *config.PresetManager
	DownloadDir  string
	NomusicDir   string
	Log          *logger.Logger
}

// NewRouter builds the complete handler tree, wrapped in request
// logging.
func NewRouter(deps Deps) http.Handler {
	h := &handler{deps: deps}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /separate", h.handleSeparateUpload)
	mux.HandleFunc("POST /separate-file", h.handleSeparateFile)
	mux.HandleFunc("GET /status/{job_id}", h.handleStatus)
	mux.HandleFunc("GET /library", h.handleLibrary)

	mux.HandleFunc("POST /folder/scan", h.handleFolderScan)
	mux.HandleFunc("POST /folder-queue/process", h.handleFolderProcess)
	mux.HandleFunc("POST /folder-queue/remove", h.handleFolderRemove)
	mux.HandleFunc("GET /batch-status/{batch_id}", h.handleBatchStatus)

	mux.HandleFunc("POST /download", h.handleDownload)
	mux.HandleFunc("POST /download/cancel", h.handleDownloadCancel)
	mux.HandleFunc("POST /yt-formats", h.handleYtFormats)

	mux.HandleFunc("POST /queue/add", h.handleQueueAdd)
	mux.HandleFunc("POST /queue/add-batch", h.handleQueueAddBatch)
	mux.HandleFunc("POST /queue/remove", h.handleQueueRemove)
	mux.HandleFunc("POST /queue/clear", h.handleQueueClear)
	mux.HandleFunc("POST /queue/start", h.handleQueueStart)
	mux.HandleFunc("POST /queue/stop", h.handleQueueStop)
	mux.HandleFunc("GET /queue", h.handleQueueList)

	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = loggingMiddleware(deps.Log)(handler)
	return handler
}

func loggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
