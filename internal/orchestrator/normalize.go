package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Loudness normalization targets (EBU R128 defaults), matching common
// streaming-loudness presets.
const (
	loudnormTargetI   = -23.0
	loudnormTruePeak  = -2.0
	loudnormTargetLRA = 7.0
)

// loudnormStats is the subset of ffmpeg's loudnorm first-pass JSON
// report this normalizer consumes.
type loudnormStats struct {
	InputI       string `json:"input_i"`
	InputTP      string `json:"input_tp"`
	InputLRA     string `json:"input_lra"`
	InputThresh  string `json:"input_thresh"`
	TargetOffset string `json:"target_offset"`
}

// normalize runs ffmpeg's loudnorm filter twice: a measurement pass
// that reports the input's loudness stats, then a linear correction
// pass using those measurements.
func (p *pipeline) normalize(ctx context.Context, in, out string) error {
	stats, err := p.measureLoudness(ctx, in)
	if err != nil {
		return err
	}

	filter := fmt.Sprintf(
		"loudnorm=I=%.1f:TP=%.1f:LRA=%.1f:measured_I=%s:measured_TP=%s:measured_LRA=%s:measured_thresh=%s:offset=%s:linear=true:print_format=summary",
		loudnormTargetI, loudnormTruePeak, loudnormTargetLRA,
		stats.InputI, stats.InputTP, stats.InputLRA, stats.InputThresh, stats.TargetOffset,
	)
	args := []string{
		"-y",
		"-i", in,
		"-af", filter,
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		out,
	}
	return p.ffmpeg.Execute(ctx, args)
}

func (p *pipeline) measureLoudness(ctx context.Context, in string) (*loudnormStats, error) {
	filter := fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f:print_format=json",
		loudnormTargetI, loudnormTruePeak, loudnormTargetLRA)
	args := []string{
		"-i", in,
		"-af", filter,
		"-f", "null",
		"-",
	}
	_, stderr, err := p.ffmpeg.ExecuteCapture(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseLoudnormJSON(string(stderr))
}

// parseLoudnormJSON extracts the trailing JSON object loudnorm prints
// to stderr in its measurement pass.
func parseLoudnormJSON(stderr string) (*loudnormStats, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("loudnorm stats not found in ffmpeg output")
	}
	var stats loudnormStats
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &stats); err != nil {
		return nil, fmt.Errorf("failed to parse loudnorm stats: %w", err)
	}
	if _, err := strconv.ParseFloat(stats.InputI, 64); err != nil {
		return nil, fmt.Errorf("malformed loudnorm input_i: %w", err)
	}
	return &stats, nil
}
