package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/infrastructure/storage"
	"github.com/nomusic/nomusic/internal/config"
	"github.com/nomusic/nomusic/internal/mocks"
	"github.com/nomusic/nomusic/internal/orchestrator"
	"github.com/nomusic/nomusic/internal/queue"
	"github.com/nomusic/nomusic/internal/store"
	"github.com/nomusic/nomusic/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *mocks.Downloader) {
	t.Helper()
	log, _ := logger.New(false)

	exec := &mocks.FFmpegExecutor{}
	presets, err := config.NewPresetManager(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewPresetManager: %v", err)
	}
	jobs := store.NewJobTable()
	library := store.NewLibraryFileStore(filepath.Join(t.TempDir(), "library.json"))
	downloader := &mocks.Downloader{}

	orch := orchestrator.New(orchestrator.Config{
		Prober:   &mocks.MediaProber{},
		FFmpeg:   exec,
		Spleeter: &mocks.SeparatorDriver{DriverName: "spleeter"},
		Demucs:   &mocks.SeparatorDriver{DriverName: "demucs"},
		Aligner:  &mocks.Aligner{},
		Mixer:    &mocks.Mixer{},
		Presets:  presets,
		Jobs:       jobs,
		Library:    library,
		Storage:    storage.NewLocalStorage(),
		Downloader: downloader,
		TempRoot:   t.TempDir(),
		NomusicDir: t.TempDir(),
		Log:        log,
	})
	t.Cleanup(orch.Shutdown)

	queuePersister := store.NewQueueFileStore(filepath.Join(t.TempDir(), "queue.json"))
	downloadQueue, err := queue.New(queuePersister, orch.SubmitDownload, orch.Status, log)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(downloadQueue.Shutdown)

	folderQueue := queue.NewFolderQueue(&mocks.MediaProber{}, orch.SubmitSeparation, orch.Status, 1, log)

	deps := Deps{
		Orchestrator: orch,
		Downloader:   downloader,
		Library:      library,
		Downloads:    downloadQueue,
		Folders:      folderQueue,
		Presets:      presets,
		DownloadDir:  t.TempDir(),
		Log:          log,
	}
	return NewRouter(deps), downloader
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatusNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/status/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleLibraryEmpty(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/library", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entries []ports.LibraryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want empty", entries)
	}
}

func TestHandleSeparateFileMissingPath(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/separate-file", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSeparateFileSubmits(t *testing.T) {
	router, _ := newTestRouter(t)
	input := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(input, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/separate-file", map[string]string{"file_path": input})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["job_id"] == "" || resp["job_id"] == nil {
		t.Errorf("response = %+v, want a job_id", resp)
	}
}

func TestHandleDownloadRequiresURL(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/download", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDownloadSubmitsJob(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/download", map[string]string{"url": "http://example.com/a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDownloadCancelRequiresJobID(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/download/cancel", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleYtFormatsProxiesDownloader(t *testing.T) {
	router, downloader := newTestRouter(t)
	downloader.ProbeFunc = func(ctx context.Context, url string, checkPlaylist bool) (*ports.RemoteProbe, error) {
		return &ports.RemoteProbe{ID: "abc", Title: "a song"}, nil
	}

	rec := doJSON(t, router, http.MethodPost, "/yt-formats", map[string]any{"url": "http://example.com/a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["title"] != "a song" {
		t.Errorf("response = %+v, want title 'a song'", resp)
	}
}

func TestHandleQueueAddAndList(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/queue/add", map[string]string{"url": "http://example.com/a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/queue", nil)
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	queueItems, ok := resp["queue"].([]any)
	if !ok || len(queueItems) != 1 {
		t.Fatalf("queue = %+v, want one item", resp["queue"])
	}
}

func TestHandleQueueRemoveRequiresQueueID(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/queue/remove", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFolderScanMissingPath(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/folder/scan", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFolderScanAndProcess(t *testing.T) {
	router, _ := newTestRouter(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/folder/scan", map[string]string{"folder_path": dir})
	if rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var scanResp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &scanResp)
	queueID, _ := scanResp["queue_id"].(string)
	if queueID == "" {
		t.Fatalf("scan response = %+v, want a queue_id", scanResp)
	}

	rec = doJSON(t, router, http.MethodPost, "/folder-queue/process", map[string]string{"queue_id": queueID})
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/batch-status/"+queueID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch-status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBatchStatusUnknown(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/batch-status/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
