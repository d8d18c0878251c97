package model

import "time"

// Kind distinguishes the two job types the orchestrator runs.
type Kind string

const (
	KindSeparate Kind = "separate"
	KindDownload Kind = "download"
)

// State is a Job's lifecycle state. Transitions are monotonic:
// Queued -> Running -> {Completed, Failed, Cancelled}. No state leaves
// a terminal one.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether s is one of the three final states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// SeparatorModel selects which AI separator(s) a separation Job runs.
type SeparatorModel string

const (
	ModelSpleeter SeparatorModel = "spleeter"
	ModelDemucs   SeparatorModel = "demucs"
	ModelBoth     SeparatorModel = "both"
)

// JobError is the structured terminal error recorded on a Job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SeparationOptions holds per-job separation options.
type SeparationOptions struct {
	Model        SeparatorModel
	PresetName   string
	KeepTemp     bool
	LanguagePref string // preferred audio-track language for the primary track
}

// DownloadOptions holds per-job download options.
type DownloadOptions struct {
	URL          string
	Filename     string // overrides the default %(title)s output stem when non-empty
	FormatKind   string // "audio" | "video"
	FormatID     string // opaque to us, passed through to the downloader
	Subtitles    string // language code, "none", or "all"
	AutoSeparate bool
	SeparateOpts SeparationOptions
}

// Job is one end-to-end unit of work tracked by id with a progress/
// status surface. The Orchestrator exclusively owns the mutable fields
// of an active Job; all other readers receive copies via Copy.
type Job struct {
	ID           string             `json:"id"`
	Kind         Kind               `json:"kind"`
	InputPath    string             `json:"input_path,omitempty"`
	DownloadOpts *DownloadOptions   `json:"download_opts,omitempty"`
	SeparateOpts *SeparationOptions `json:"separate_opts,omitempty"`

	State       State    `json:"state"`
	Progress    int      `json:"progress"` // 0..100, monotonically non-decreasing while Running
	CurrentStep string   `json:"current_step"`
	StepHistory []string `json:"step_history,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	ResultPaths []string    `json:"result_paths,omitempty"`
	Metadata    *MediaProbe `json:"metadata,omitempty"`
	Error       *JobError   `json:"error,omitempty"`

	TempDir string `json:"-"`
}

// Copy returns a copy of j safe to hand to callers outside the owning
// worker's lock. Job's slice fields are always replaced wholesale
// (never mutated element-in-place) by the owner, so copying the slice
// headers over fresh backing arrays is sufficient isolation.
func (j *Job) Copy() *Job {
	cp := *j
	if j.ResultPaths != nil {
		cp.ResultPaths = append([]string(nil), j.ResultPaths...)
	}
	if j.StepHistory != nil {
		cp.StepHistory = append([]string(nil), j.StepHistory...)
	}
	return &cp
}

// ListFilter narrows Orchestrator.List results.
type ListFilter struct {
	Kind  Kind  // zero value matches any kind
	State State // zero value matches any state
}

func (f ListFilter) Match(j *Job) bool {
	if f.Kind != "" && j.Kind != f.Kind {
		return false
	}
	if f.State != "" && j.State != f.State {
		return false
	}
	return true
}
