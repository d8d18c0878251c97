package httpapi

import (
	"context"
	"net/http"

	"github.com/nomusic/nomusic/domain/model"
)

type folderScanRequest struct {
	FolderPath string `json:"folder_path"`
}

func (h *handler) handleFolderScan(w http.ResponseWriter, r *http.Request) {
	var req folderScanRequest
	if err := decodeJSON(r, &req); err != nil || req.FolderPath == "" {
		writeError(w, http.StatusBadRequest, "folder_path is required")
		return
	}
	queueID, files, err := h.deps.Folders.Scan(r.Context(), req.FolderPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_id": queueID, "files": files})
}

type folderProcessRequest struct {
	QueueID string `json:"queue_id"`
	Model   string `json:"model"`
}

func (h *handler) handleFolderProcess(w http.ResponseWriter, r *http.Request) {
	var req folderProcessRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" {
		writeError(w, http.StatusBadRequest, "queue_id is required")
		return
	}
	opts := separationOptionsFromForm(req.Model, "", "")
	// Detached from the request context: the batch keeps running after
	// the HTTP response for /folder-queue/process returns.
	batchID, files, err := h.deps.Folders.Process(context.Background(), req.QueueID, opts)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "files": files})
}

type folderRemoveRequest struct {
	QueueID string `json:"queue_id"`
	FileID  string `json:"file_id"`
}

func (h *handler) handleFolderRemove(w http.ResponseWriter, r *http.Request) {
	var req folderRemoveRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" || req.FileID == "" {
		writeError(w, http.StatusBadRequest, "queue_id and file_id are required")
		return
	}
	files, _ := h.deps.Folders.Remove(req.QueueID, req.FileID)
	if files == nil {
		files = []model.BatchItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch_id")
	snap, ok := h.deps.Folders.Snapshot(batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
