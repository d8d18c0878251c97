package httpapi

import (
	"net/http"

	"github.com/nomusic/nomusic/domain/model"
)

type queueAddRequest struct {
	URL          string `json:"url"`
	FormatKind   string `json:"format_kind"`
	FormatID     string `json:"format_id"`
	Subtitles    string `json:"subtitles"`
	AutoSeparate bool   `json:"auto_separate"`
	Model        string `json:"model"`
}

func (h *handler) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req queueAddRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	sep := separationOptionsFromForm(req.Model, "", "")
	id := h.deps.Downloads.Add(req.URL, req.FormatKind, req.FormatID, req.Subtitles, req.AutoSeparate, sep)
	writeJSON(w, http.StatusOK, map[string]string{"queue_id": id})
}

type queueAddBatchRequest struct {
	Videos []struct {
		URL      string `json:"url"`
		FormatID string `json:"format_id"`
	} `json:"videos"`
	FormatKind   string `json:"format_kind"`
	Subtitles    string `json:"subtitles"`
	AutoSeparate bool   `json:"auto_separate"`
	Model        string `json:"model"`
}

func (h *handler) handleQueueAddBatch(w http.ResponseWriter, r *http.Request) {
	var req queueAddBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sep := separationOptionsFromForm(req.Model, "", "")
	added := 0
	for _, v := range req.Videos {
		if v.URL == "" {
			continue
		}
		h.deps.Downloads.Add(v.URL, req.FormatKind, v.FormatID, req.Subtitles, req.AutoSeparate, sep)
		added++
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

type queueIDRequest struct {
	QueueID string `json:"queue_id"`
}

func (h *handler) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	var req queueIDRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" {
		writeError(w, http.StatusBadRequest, "queue_id is required")
		return
	}
	h.deps.Downloads.Remove(req.QueueID)
	h.writeQueueSnapshot(w)
}

func (h *handler) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	h.deps.Downloads.ClearDone()
	h.writeQueueSnapshot(w)
}

func (h *handler) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	h.deps.Downloads.Start()
	h.writeQueueSnapshot(w)
}

func (h *handler) handleQueueStop(w http.ResponseWriter, r *http.Request) {
	h.deps.Downloads.Stop()
	h.writeQueueSnapshot(w)
}

func (h *handler) handleQueueList(w http.ResponseWriter, r *http.Request) {
	h.writeQueueSnapshot(w)
}

func (h *handler) writeQueueSnapshot(w http.ResponseWriter) {
	items, processing := h.deps.Downloads.List()
	if items == nil {
		items = []*model.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": items, "processing": processing})
}
