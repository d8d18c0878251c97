// Package mocks holds hand-written test doubles for domain/ports,
// following the teacher's function-field double pattern: each method
// defers to an overridable Func field and falls back to a harmless
// default when the field is nil.
package mocks

import (
	"context"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
)

// ToolLocator is a test double for ports.ToolLocator.
type ToolLocator struct {
	LocateFunc func(ctx context.Context, tool string) (string, error)
}

func (m *ToolLocator) Locate(ctx context.Context, tool string) (string, error) {
	if m.LocateFunc != nil {
		return m.LocateFunc(ctx, tool)
	}
	return "/usr/bin/" + tool, nil
}

// MediaProber is a test double for ports.MediaProber.
type MediaProber struct {
	ProbeFunc    func(ctx context.Context, path string) (*model.MediaProbe, error)
	DurationFunc func(ctx context.Context, path string) (float64, error)
}

func (m *MediaProber) Probe(ctx context.Context, path string) (*model.MediaProbe, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, path)
	}
	return &model.MediaProbe{DurationS: 120}, nil
}

func (m *MediaProber) Duration(ctx context.Context, path string) (float64, error) {
	if m.DurationFunc != nil {
		return m.DurationFunc(ctx, path)
	}
	return 120, nil
}

// SeparatorDriver is a test double for ports.SeparatorDriver, usable
// for either the spleeter or demucs slot.
type SeparatorDriver struct {
	DriverName   string
	SeparateFunc func(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string)) (string, error)
}

func (m *SeparatorDriver) Name() string {
	if m.DriverName != "" {
		return m.DriverName
	}
	return "mock"
}

func (m *SeparatorDriver) Separate(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string)) (string, error) {
	if m.SeparateFunc != nil {
		return m.SeparateFunc(ctx, wavIn, outDir, progressCb)
	}
	if progressCb != nil {
		progressCb(100, "done")
	}
	return outDir + "/vocals.wav", nil
}

// Aligner is a test double for ports.Aligner.
type Aligner struct {
	AlignFunc func(ctx context.Context, aPath, bPath, workDir string) (*model.AlignmentResult, error)
}

func (m *Aligner) Align(ctx context.Context, aPath, bPath, workDir string) (*model.AlignmentResult, error) {
	if m.AlignFunc != nil {
		return m.AlignFunc(ctx, aPath, bPath, workDir)
	}
	return &model.AlignmentResult{AlignedAPath: aPath, AlignedBPath: bPath}, nil
}

// Mixer is a test double for ports.Mixer.
type Mixer struct {
	MixFunc func(ctx context.Context, aPath, bPath, outPath string) error
}

func (m *Mixer) Mix(ctx context.Context, aPath, bPath, outPath string) error {
	if m.MixFunc != nil {
		return m.MixFunc(ctx, aPath, bPath, outPath)
	}
	return nil
}

// FFmpegExecutor is a test double for ports.FFmpegExecutor, reused
// from the teacher's shape (Execute/Probe) with ExecuteCapture added.
type FFmpegExecutor struct {
	ExecuteFunc        func(ctx context.Context, args []string) error
	ProbeFunc          func(ctx context.Context, inputPath string) ([]byte, error)
	ExecuteCaptureFunc func(ctx context.Context, args []string) ([]byte, []byte, error)
	ExecutedArgs       [][]string
}

func (m *FFmpegExecutor) Execute(ctx context.Context, args []string) error {
	m.ExecutedArgs = append(m.ExecutedArgs, args)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return nil
}

func (m *FFmpegExecutor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, inputPath)
	}
	return []byte(`{}`), nil
}

func (m *FFmpegExecutor) ExecuteCapture(ctx context.Context, args []string) ([]byte, []byte, error) {
	m.ExecutedArgs = append(m.ExecutedArgs, args)
	if m.ExecuteCaptureFunc != nil {
		return m.ExecuteCaptureFunc(ctx, args)
	}
	return nil, nil, nil
}

// Downloader is a test double for ports.Downloader.
type Downloader struct {
	ProbeFunc    func(ctx context.Context, url string, checkPlaylist bool) (*ports.RemoteProbe, error)
	DownloadFunc func(ctx context.Context, opts model.DownloadOptions, destDir string, progressCb func(pct float64, step string)) (string, error)
}

func (m *Downloader) Probe(ctx context.Context, url string, checkPlaylist bool) (*ports.RemoteProbe, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, url, checkPlaylist)
	}
	return &ports.RemoteProbe{ID: "mock"}, nil
}

func (m *Downloader) Download(ctx context.Context, opts model.DownloadOptions, destDir string, progressCb func(pct float64, step string)) (string, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, opts, destDir, progressCb)
	}
	if progressCb != nil {
		progressCb(100, "downloaded")
	}
	return destDir + "/track.wav", nil
}

// QueuePersister is a test double for ports.QueuePersister.
type QueuePersister struct {
	LoadFunc func() ([]*model.QueueItem, error)
	SaveFunc func(items []*model.QueueItem) error
	Saved    [][]*model.QueueItem
}

func (m *QueuePersister) Load() ([]*model.QueueItem, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return nil, nil
}

func (m *QueuePersister) Save(items []*model.QueueItem) error {
	m.Saved = append(m.Saved, items)
	if m.SaveFunc != nil {
		return m.SaveFunc(items)
	}
	return nil
}

// LibraryStore is a test double for ports.LibraryStore.
type LibraryStore struct {
	AppendFunc func(entry ports.LibraryEntry) error
	ListFunc   func() ([]ports.LibraryEntry, error)
	Entries    []ports.LibraryEntry
}

func (m *LibraryStore) Append(entry ports.LibraryEntry) error {
	m.Entries = append(m.Entries, entry)
	if m.AppendFunc != nil {
		return m.AppendFunc(entry)
	}
	return nil
}

func (m *LibraryStore) List() ([]ports.LibraryEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc()
	}
	return m.Entries, nil
}
