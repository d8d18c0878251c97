package separator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nomusic/nomusic/domain/ports"
)

// Segmentation constants (zero overlap, fixed).
const (
	SegThresholdSeconds = 600.0
	SegLenSeconds       = 600.0
	SegOverlapSeconds   = 0.0
)

// segment is one contiguous, non-overlapping slice of the input audio.
type segment struct {
	index    int
	startS   float64
	lenS     float64
	path     string // populated once extracted
	outPath  string // populated once separated
}

// planSegments splits [0, durationS) into contiguous segments of at
// most SegLenSeconds, ordered by start time.
func planSegments(durationS float64) []segment {
	if durationS <= SegThresholdSeconds {
		return []segment{{index: 0, startS: 0, lenS: durationS}}
	}

	var segs []segment
	start := 0.0
	idx := 0
	for start < durationS {
		length := SegLenSeconds
		if start+length > durationS {
			length = durationS - start
		}
		segs = append(segs, segment{index: idx, startS: start, lenS: length})
		start += SegLenSeconds // zero overlap: next segment starts where this one ends
		idx++
	}
	return segs
}

// extractSegment slices wavIn into a standalone file via ffmpeg -ss/-t,
// stream-copying the PCM so no re-encode is needed.
func extractSegment(ctx context.Context, exec ports.FFmpegExecutor, wavIn string, seg segment, destDir string) (string, error) {
	dest := filepath.Join(destDir, fmt.Sprintf("seg_%04d.wav", seg.index))
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", seg.startS),
		"-t", fmt.Sprintf("%.3f", seg.lenS),
		"-i", wavIn,
		"-c", "copy",
		dest,
	}
	if err := exec.Execute(ctx, args); err != nil {
		return "", err
	}
	return dest, nil
}

// concatSegments joins per-segment outputs in original (start-time)
// order via ffmpeg's concat demuxer. The concatenated file replaces the
// per-segment outputs as the driver's return value.
func concatSegments(ctx context.Context, exec ports.FFmpegExecutor, segs []segment, destPath string) error {
	sorted := append([]segment(nil), segs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].startS < sorted[j].startS })

	listPath := destPath + ".concat.txt"
	f, err := os.Create(listPath)
	if err != nil {
		return err
	}
	for _, s := range sorted {
		if s.outPath == "" {
			f.Close()
			return fmt.Errorf("segment %d has no output path", s.index)
		}
		fmt.Fprintf(f, "file '%s'\n", s.outPath)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		destPath,
	}
	return exec.Execute(ctx, args)
}
