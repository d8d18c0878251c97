package model

import "time"

// QueueItemStatus is the lifecycle state of a download QueueItem.
type QueueItemStatus string

const (
	QueueItemPending     QueueItemStatus = "pending"
	QueueItemDownloading QueueItemStatus = "downloading"
	QueueItemCompleted   QueueItemStatus = "completed"
	QueueItemFailed      QueueItemStatus = "failed"
)

// QueueItem is one entry in the persistent download queue.
type QueueItem struct {
	QueueID      string            `json:"queue_id"`
	URL          string            `json:"url"`
	FormatKind   string            `json:"format_kind"` // "audio" | "video"
	FormatID     string            `json:"format_id"`
	Subtitles    string            `json:"subtitles"`
	AutoSeparate bool              `json:"auto_separate"`
	SeparateOpts SeparationOptions `json:"separate_opts,omitempty"`
	Status       QueueItemStatus   `json:"status"`
	Progress     int               `json:"progress"`
	AttemptCount int               `json:"attempt_count"`
	JobID        string            `json:"job_id,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BatchItemStatus is the lifecycle state of a folder-batch BatchItem.
type BatchItemStatus string

const (
	BatchItemPending    BatchItemStatus = "pending"
	BatchItemProcessing BatchItemStatus = "processing"
	BatchItemCompleted  BatchItemStatus = "completed"
	BatchItemFailed     BatchItemStatus = "failed"
)

// BatchItem is one file discovered by a folder scan.
type BatchItem struct {
	BatchID     string          `json:"batch_id"`
	FileID      string          `json:"file_id"`
	Path        string          `json:"path"`
	Selected    bool            `json:"selected"`
	Status      BatchItemStatus `json:"status"`
	Progress    int             `json:"progress"`
	ChildJobID  string          `json:"child_job_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	Metadata    *MediaProbe     `json:"metadata,omitempty"`
}

// BatchSnapshot summarizes a folder batch for GET /batch-status/{id}.
type BatchSnapshot struct {
	BatchID   string      `json:"batch_id"`
	Total     int         `json:"total_files"`
	Processed int         `json:"processed"`
	Success   int         `json:"success"`
	Failed    int         `json:"failed"`
	Files     []BatchItem `json:"files"`
}
