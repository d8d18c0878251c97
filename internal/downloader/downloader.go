// Package downloader wraps yt-dlp: remote metadata/format probing for
// POST /yt-formats and the actual download invocation behind
// ports.Downloader.
package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"github.com/nomusic/nomusic/pkg/procrun"
)

// progressRe matches yt-dlp's --newline progress lines, e.g.
// "[download]  45.3% of 3.33MiB at 512.34KiB/s ETA 00:12".
var progressRe = regexp.MustCompile(`(?i)\[download\]\s+([0-9.]+)%`)

// YtDlp implements ports.Downloader by shelling out to the yt-dlp CLI
// located via the shared ToolLocator.
type YtDlp struct {
	locator ports.ToolLocator
	log     *logger.Logger
}

// New creates a YtDlp downloader.
func New(locator ports.ToolLocator, log *logger.Logger) *YtDlp {
	return &YtDlp{locator: locator, log: log}
}

// ytDlpEntry is the subset of yt-dlp's --dump-json output this package
// consumes, for both single videos and playlist entries.
type ytDlpEntry struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Thumbnail string         `json:"thumbnail"`
	Duration  float64        `json:"duration"`
	Subtitles map[string]any `json:"subtitles,omitempty"`
	Formats   []ytDlpFormat  `json:"formats,omitempty"`
}

type ytDlpFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	TBR        float64 `json:"tbr"`
}

// Probe runs yt-dlp --dump-json (non-download) to list selectable
// formats and, when checkPlaylist is set, whether the URL resolves to
// a playlist.
func (y *YtDlp) Probe(ctx context.Context, url string, checkPlaylist bool) (*ports.RemoteProbe, error) {
	bin, err := y.locator.Locate(ctx, "yt-dlp")
	if err != nil {
		return nil, err
	}

	args := []string{"--dump-json", "--no-warnings"}
	if !checkPlaylist {
		args = append(args, "--no-playlist")
	} else {
		args = append(args, "--yes-playlist", "--flat-playlist")
	}
	args = append(args, url)

	cmd := exec.Command(bin, args...)
	var out strings.Builder
	cmd.Stdout = &out
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := procrun.Run(ctx, cmd); err != nil {
		return nil, errors.NewDownloadError("yt-dlp probe failed: "+strings.TrimSpace(stderr.String()), isTransientStderr(stderr.String()), err)
	}

	entries, err := decodeEntries(out.String())
	if err != nil {
		return nil, errors.NewDownloadError("failed to parse yt-dlp metadata", false, err)
	}
	if len(entries) == 0 {
		return nil, errors.NewDownloadError("yt-dlp returned no entries", false, nil)
	}

	if len(entries) > 1 {
		videos := make([]ports.RemoteProbe, 0, len(entries))
		for _, e := range entries {
			videos = append(videos, toRemoteProbe(e))
		}
		first := toRemoteProbe(entries[0])
		return &ports.RemoteProbe{
			ID:         first.ID,
			Title:      first.Title,
			IsPlaylist: true,
			Videos:     videos,
			VideoCount: len(videos),
		}, nil
	}

	probe := toRemoteProbe(entries[0])
	return &probe, nil
}

// decodeEntries handles yt-dlp's --dump-json output shape, which is a
// single JSON object per line: one line for a lone video, one line per
// entry when --flat-playlist enumerates a playlist.
func decodeEntries(raw string) ([]ytDlpEntry, error) {
	var entries []ytDlpEntry
	dec := json.NewDecoder(strings.NewReader(raw))
	for dec.More() {
		var e ytDlpEntry
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toRemoteProbe(e ytDlpEntry) ports.RemoteProbe {
	formats := make([]ports.RemoteFormat, 0, len(e.Formats))
	for _, f := range e.Formats {
		formats = append(formats, ports.RemoteFormat{
			FormatID:   f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			HasAudio:   f.ACodec != "" && f.ACodec != "none",
			HasVideo:   f.VCodec != "" && f.VCodec != "none",
			Bitrate:    int(f.TBR),
		})
	}
	subs := make([]string, 0, len(e.Subtitles))
	for lang := range e.Subtitles {
		subs = append(subs, lang)
	}
	return ports.RemoteProbe{
		ID:        e.ID,
		Title:     e.Title,
		Thumbnail: e.Thumbnail,
		Subtitles: subs,
		Formats:   formats,
	}
}

// Download runs yt-dlp against destDir, reporting fractional progress
// parsed from its --newline stdout, and returns the single downloaded
// file's path.
func (y *YtDlp) Download(ctx context.Context, opts model.DownloadOptions, destDir string, progressCb func(pct float64, step string)) (string, error) {
	bin, err := y.locator.Locate(ctx, "yt-dlp")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	stem := "%(title)s"
	if opts.Filename != "" {
		stem = opts.Filename
	}
	outputTemplate := filepath.Join(destDir, stem+".%(ext)s")
	args := []string{"--no-warnings", "--newline", "-o", outputTemplate, "--print", "after_move:filepath"}

	if opts.FormatKind == "audio" {
		args = append(args, "-x", "--audio-format", "wav")
	} else if opts.FormatID != "" {
		args = append(args, "-f", opts.FormatID)
	}

	switch opts.Subtitles {
	case "", "none":
	case "all":
		args = append(args, "--write-subs", "--write-auto-subs", "--all-subs")
	default:
		args = append(args, "--write-subs", "--sub-langs", opts.Subtitles)
	}

	args = append(args, opts.URL)

	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderrBuf := &strings.Builder{}
	cmd.Stderr = stderrBuf

	var resultPath string
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 4096), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if m := progressRe.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
					progressCb(pct, "downloading")
				}
				continue
			}
			if strings.HasPrefix(line, string(filepath.Separator)) || filepath.IsAbs(line) {
				resultPath = line
			}
		}
	}()

	if err := procrun.Run(ctx, cmd); err != nil {
		<-scanDone
		return "", errors.NewDownloadError("yt-dlp exited non-zero: "+strings.TrimSpace(stderrBuf.String()), isTransientStderr(stderrBuf.String()), err)
	}
	<-scanDone

	if resultPath == "" {
		return "", errors.NewDownloadError("yt-dlp did not report an output path", false, nil)
	}
	if _, statErr := os.Stat(resultPath); statErr != nil {
		return "", errors.NewDownloadError(fmt.Sprintf("downloaded file missing at %s", resultPath), false, statErr)
	}
	progressCb(100, "downloaded")
	return resultPath, nil
}

// isTransientStderr classifies yt-dlp failures that are worth retrying
// (network blips, rate limiting) versus permanent ones (bad URL,
// unsupported site, unavailable format) per the download retry policy.
func isTransientStderr(stderr string) bool {
	lower := strings.ToLower(stderr)
	transientMarkers := []string{
		"timed out", "timeout", "connection reset", "temporary failure",
		"429", "too many requests", "503", "502", "network",
	}
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
