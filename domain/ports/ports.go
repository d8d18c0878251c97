package ports

import (
	"context"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/pkg/progress"
)

// ToolLocator guarantees ffmpeg/ffprobe/yt-dlp binaries are present and
// returns their absolute paths.
type ToolLocator interface {
	Locate(ctx context.Context, tool string) (path string, err error)
}

// MediaProber wraps ffprobe.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*model.MediaProbe, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// SeparatorDriver is the shared contract for Spleeter and Demucs.
type SeparatorDriver interface {
	// Name identifies the driver for progress mapping and error reporting.
	Name() string
	// Separate isolates vocals from wavIn into outDir, reporting
	// progress through progressCb, and returns the vocal wav path.
	Separate(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string)) (vocalWavPath string, err error)
}

// Aligner performs cross-correlation lag estimation and padding.
type Aligner interface {
	Align(ctx context.Context, aPath, bPath, workDir string) (*model.AlignmentResult, error)
}

// Mixer blends two aligned vocal streams into one.
type Mixer interface {
	Mix(ctx context.Context, aPath, bPath, outPath string) error
}

// FFmpegExecutor is the abstraction for FFmpeg command execution,
// kept from the teacher's interface shape.
type FFmpegExecutor interface {
	Execute(ctx context.Context, args []string) error
	Probe(ctx context.Context, inputPath string) ([]byte, error)
	// ExecuteCapture runs ffmpeg and returns stdout/stderr regardless of
	// exit status, used by the two-pass loudness normalizer to read
	// loudnorm's measured-stats JSON off stderr.
	ExecuteCapture(ctx context.Context, args []string) (stdout, stderr []byte, err error)
}

// StorageProvider abstracts filesystem operations (teacher interface,
// reused unmodified).
type StorageProvider interface {
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	Remove(ctx context.Context, path string) error
	TempFile(ctx context.Context, dir, pattern string) (string, error)
}

// ProgressReporter is re-exported from pkg/progress so ports consumers
// don't need to import it directly.
type ProgressReporter = progress.Reporter

// Downloader wraps the remote-site downloader (yt-dlp) and the remote
// probe operation used by POST /yt-formats.
type Downloader interface {
	Probe(ctx context.Context, url string, checkPlaylist bool) (*RemoteProbe, error)
	Download(ctx context.Context, opts model.DownloadOptions, destDir string, progressCb func(pct float64, step string)) (path string, err error)
}

// RemoteProbe is the result of probing a remote URL (POST /yt-formats).
type RemoteProbe struct {
	ID          string
	Title       string
	Thumbnail   string
	Subtitles   []string
	Formats     []RemoteFormat
	IsPlaylist  bool
	Videos      []RemoteProbe
	VideoCount  int
}

// RemoteFormat describes one selectable remote format.
type RemoteFormat struct {
	FormatID   string
	Ext        string
	Resolution string
	HasAudio   bool
	HasVideo   bool
	Bitrate    int
}

// JobStore is the guarded, in-memory job table the Orchestrator owns.
type JobStore interface {
	Put(j *model.Job)
	Get(id string) (*model.Job, bool)
	List(filter model.ListFilter) []*model.Job
	Delete(id string)

	// Update applies fn to the stored job for id under the table's
	// single lock, so concurrent callers serialize instead of racing
	// on an independent Get+mutate+Put. fn receives the live record,
	// not a copy. Reports whether id was found.
	Update(id string, fn func(j *model.Job)) bool
}

// QueuePersister persists the download queue to disk atomically.
type QueuePersister interface {
	Load() ([]*model.QueueItem, error)
	Save(items []*model.QueueItem) error
}

// LibraryStore records completed jobs for GET /library.
type LibraryStore interface {
	Append(entry LibraryEntry) error
	List() ([]LibraryEntry, error)
}

// LibraryEntry is one record in library.json.
type LibraryEntry struct {
	TaskID      string            `json:"task_id"`
	ResultFiles []string          `json:"result_files"`
	Metadata    *model.MediaProbe `json:"metadata,omitempty"`
}
