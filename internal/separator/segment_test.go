package separator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nomusic/nomusic/internal/mocks"
)

func TestPlanSegments(t *testing.T) {
	tests := []struct {
		name      string
		durationS float64
		wantCount int
		wantLast  float64
	}{
		{"under threshold stays single segment", 300, 1, 300},
		{"exactly at threshold stays single segment", SegThresholdSeconds, 1, SegThresholdSeconds},
		{"over threshold splits into fixed-length segments", 1300, 3, 100},
		{"over threshold splits evenly", 1200, 2, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := planSegments(tt.durationS)
			if len(segs) != tt.wantCount {
				t.Fatalf("got %d segments, want %d", len(segs), tt.wantCount)
			}
			last := segs[len(segs)-1]
			if last.lenS != tt.wantLast {
				t.Errorf("last segment length = %v, want %v", last.lenS, tt.wantLast)
			}
			for i, s := range segs {
				if s.index != i {
					t.Errorf("segment %d has index %d", i, s.index)
				}
			}
			if len(segs) > 1 {
				for i := 1; i < len(segs); i++ {
					prev := segs[i-1]
					if segs[i].startS != prev.startS+prev.lenS {
						t.Errorf("segment %d starts at %v, want contiguous with previous (no overlap)", i, segs[i].startS)
					}
				}
			}
		})
	}
}

func TestExtractSegment(t *testing.T) {
	exec := &mocks.FFmpegExecutor{}
	dir := t.TempDir()

	seg := segment{index: 2, startS: 10, lenS: 5}
	path, err := extractSegment(context.Background(), exec, filepath.Join(dir, "in.wav"), seg, dir)
	if err != nil {
		t.Fatalf("extractSegment: %v", err)
	}
	if filepath.Base(path) != "seg_0002.wav" {
		t.Errorf("dest path = %s, want seg_0002.wav basename", path)
	}
	if len(exec.ExecutedArgs) != 1 {
		t.Fatalf("expected exactly one ffmpeg invocation, got %d", len(exec.ExecutedArgs))
	}
}

func TestConcatSegmentsOrdersByStartTime(t *testing.T) {
	dir := t.TempDir()
	var capturedListPath, capturedList string
	exec := &mocks.FFmpegExecutor{
		ExecuteFunc: func(ctx context.Context, args []string) error {
			for i, a := range args {
				if a == "-i" && i+1 < len(args) {
					capturedListPath = args[i+1]
					data, _ := os.ReadFile(capturedListPath)
					capturedList = string(data)
				}
			}
			return nil
		},
	}

	segs := []segment{
		{index: 1, startS: 10, outPath: "seg1.wav"},
		{index: 0, startS: 0, outPath: "seg0.wav"},
	}

	dest := filepath.Join(dir, "out.wav")
	if err := concatSegments(context.Background(), exec, segs, dest); err != nil {
		t.Fatalf("concatSegments: %v", err)
	}

	if want := "file 'seg0.wav'\nfile 'seg1.wav'\n"; capturedList != want {
		t.Errorf("concat list = %q, want %q (start-time order)", capturedList, want)
	}
	if _, err := os.Stat(capturedListPath); !os.IsNotExist(err) {
		t.Errorf("concat list file should be cleaned up, stat err = %v", err)
	}
}

func TestConcatSegmentsMissingOutputFails(t *testing.T) {
	exec := &mocks.FFmpegExecutor{}
	segs := []segment{{index: 0, startS: 0}}
	if err := concatSegments(context.Background(), exec, segs, filepath.Join(t.TempDir(), "out.wav")); err == nil {
		t.Fatal("expected error for segment with empty outPath")
	}
}
