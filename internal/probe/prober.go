// Package probe implements the Media Probe: it wraps ffprobe to
// extract duration, codecs, resolution and the track list.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
)

// ffprobeOutput maps the fields of ffprobe's JSON output this package
// needs.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Index         int    `json:"index"`
		CodecType     string `json:"codec_type"`
		CodecName     string `json:"codec_name"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		Tags          map[string]string `json:"tags"`
	} `json:"streams"`
}

// Prober implements ports.MediaProber.
type Prober struct {
	executor ports.FFmpegExecutor
}

// New creates a Prober backed by executor.
func New(executor ports.FFmpegExecutor) *Prober {
	return &Prober{executor: executor}
}

// Probe invokes ffprobe with JSON output and parses streams.
func (p *Prober) Probe(ctx context.Context, path string) (*model.MediaProbe, error) {
	data, err := p.executor.Probe(ctx, path)
	if err != nil {
		return nil, wrapProbeFailed(path, err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, wrapProbeFailed(path, fmt.Errorf("malformed ffprobe json: %w", err))
	}

	probeResult := &model.MediaProbe{}

	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		probeResult.DurationS = d
	}

	audioIdx := 0
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			probeResult.IsVideo = true
			probeResult.VideoCodec = s.CodecName
			if s.Width > 0 && s.Height > 0 {
				probeResult.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
			}
		case "audio":
			lang := s.Tags["language"]
			probeResult.AudioTracks = append(probeResult.AudioTracks, model.AudioTrack{
				Index:    audioIdx,
				Language: lang,
				Codec:    s.CodecName,
			})
			if audioIdx == 0 {
				probeResult.AudioCodec = s.CodecName
			}
			audioIdx++
		}
	}

	if len(probeResult.AudioTracks) == 0 {
		return nil, pkgerrors.NewValidationError("input", path, "no audio tracks found")
	}

	return probeResult, nil
}

// Duration returns only the probed duration. It runs the same full
// ffprobe call and parsing as Probe, so it costs as much as Probe and
// fails for inputs without an audio track.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.DurationS, nil
}

func wrapProbeFailed(path string, cause error) error {
	return pkgerrors.NewProcessingError(pkgerrors.ErrCodeProbeFailed, "probe",
		fmt.Sprintf("ffprobe failed for %s", path), cause)
}
