package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nomusic/nomusic/domain/model"
)

const maxUploadBytes = 2 << 30 // 2 GiB

// handleSeparateUpload implements POST /separate: a multipart upload
// plus a `model` form field, returning {job_id, metadata}.
func (h *handler) handleSeparateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	dest := filepath.Join(h.deps.DownloadDir, fh.Filename)
	if err := os.MkdirAll(h.deps.DownloadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prepare upload destination")
		return
	}
	out, err := os.Create(dest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create destination file")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	out.Close()

	opts := separationOptionsFromForm(r.FormValue("model"), r.FormValue("preset"), r.FormValue("language"))
	jobID, metadata, err := h.deps.Orchestrator.SubmitSeparation(dest, opts)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "metadata": metadata})
}

// separateFileRequest is POST /separate-file's body.
type separateFileRequest struct {
	FilePath string `json:"file_path"`
	Model    string `json:"model"`
	Preset   string `json:"preset"`
	Language string `json:"language"`
}

func (h *handler) handleSeparateFile(w http.ResponseWriter, r *http.Request) {
	var req separateFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	opts := separationOptionsFromForm(req.Model, req.Preset, req.Language)
	jobID, metadata, err := h.deps.Orchestrator.SubmitSeparation(req.FilePath, opts)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "metadata": metadata})
}

func separationOptionsFromForm(modelName, preset, language string) model.SeparationOptions {
	sep := model.ModelBoth
	switch modelName {
	case string(model.ModelSpleeter):
		sep = model.ModelSpleeter
	case string(model.ModelDemucs):
		sep = model.ModelDemucs
	}
	return model.SeparationOptions{
		Model:        sep,
		PresetName:   preset,
		LanguagePref: language,
	}
}

// handleStatus implements GET /status/{job_id}, returning the stable
// JobSnapshot shape.
func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, ok := h.deps.Orchestrator.Status(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}
	writeJSON(w, http.StatusOK, jobSnapshot(job))
}

// jobSnapshot maps a Job's internal State onto the UI's stable status
// vocabulary (queued/processing/completed/failed/cancelled/error).
func jobSnapshot(job *model.Job) map[string]any {
	status := string(job.State)
	if job.State == model.StateRunning {
		status = "processing"
	}
	var errMsg *string
	if job.Error != nil {
		errMsg = &job.Error.Message
	}
	return map[string]any{
		"status":       status,
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
		"result_files": job.ResultPaths,
		"metadata":     job.Metadata,
		"error":        errMsg,
	}
}

// handleLibrary implements GET /library.
func (h *handler) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Library.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read library")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
