package httpapi

import (
	"context"
	"net/http"

	"github.com/nomusic/nomusic/domain/model"
)

// downloadRequest is POST /download's body.
type downloadRequest struct {
	URL          string `json:"url"`
	Format       string `json:"format"`
	FormatID     string `json:"format_id"`
	Subtitles    string `json:"subtitles"`
	AutoSeparate bool   `json:"auto_separate"`
	Model        string `json:"model"`
}

func (h *handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	opts := model.DownloadOptions{
		URL:          req.URL,
		FormatKind:   req.Format,
		FormatID:     req.FormatID,
		Subtitles:    req.Subtitles,
		AutoSeparate: req.AutoSeparate,
		SeparateOpts: separationOptionsFromForm(req.Model, "", ""),
	}
	jobID := h.deps.Orchestrator.SubmitDownload(opts)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

type downloadCancelRequest struct {
	JobID string `json:"job_id"`
}

func (h *handler) handleDownloadCancel(w http.ResponseWriter, r *http.Request) {
	var req downloadCancelRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	accepted, err := h.deps.Orchestrator.Cancel(req.JobID)
	if err != nil {
		writeError(w, statusForErr(err), err.Error())
		return
	}
	status := "cancelled"
	if !accepted {
		status = "already_terminal"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type ytFormatsRequest struct {
	URL           string `json:"url"`
	CheckPlaylist bool   `json:"check_playlist"`
}

func (h *handler) handleYtFormats(w http.ResponseWriter, r *http.Request) {
	var req ytFormatsRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if h.deps.Downloader == nil {
		writeError(w, http.StatusServiceUnavailable, "downloader not configured")
		return
	}

	probe, err := h.deps.Downloader.Probe(context.Background(), req.URL, req.CheckPlaylist)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if probe.IsPlaylist {
		writeJSON(w, http.StatusOK, map[string]any{
			"is_playlist": true,
			"videos":      probe.Videos,
			"video_count": probe.VideoCount,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        probe.ID,
		"title":     probe.Title,
		"thumbnail": probe.Thumbnail,
		"subtitles": probe.Subtitles,
		"formats":   probe.Formats,
	})
}
