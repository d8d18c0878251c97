// Package separator implements the Separator Drivers: Spleeter
// and Demucs, sharing segmentation, concatenation and GPU-preference
// logic behind a common base.
package separator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/internal/metrics"
	"github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// segmentRunner invokes a single segment through the given binary and
// returns the vocal stem for that segment. useGPU tells the driver
// which device to target for this attempt; base retries once with
// useGPU=false if the GPU attempt fails.
type segmentRunner func(ctx context.Context, seg segment, segIn, segOutDir string, useGPU bool) (vocalPath string, err error)

// base holds the machinery shared by SpleeterDriver and DemucsDriver:
// segmentation, bounded-parallel execution and GPU/CPU fallback.
type base struct {
	name         string
	ffmpeg       ports.FFmpegExecutor
	prober       ports.MediaProber
	workers      int // bounded internal segment parallelism (demucs_workers, default 2)
	log          *logger.Logger
	gpuAvailable func() bool
}

func newBase(name string, ffmpeg ports.FFmpegExecutor, prober ports.MediaProber, workers int, log *logger.Logger) *base {
	if workers <= 0 {
		workers = 2
	}
	return &base{
		name:         name,
		ffmpeg:       ffmpeg,
		prober:       prober,
		workers:      workers,
		log:          log,
		gpuAvailable: detectCUDA,
	}
}

// detectCUDA reports whether a CUDA device is visible to nvidia-smi.
func detectCUDA() bool {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}
	cmd := exec.Command(path, "-L")
	out, err := cmd.Output()
	return err == nil && len(out) > 0
}

// run drives the shared segmentation/concat/progress flow, delegating
// the actual per-segment AI invocation to runSeg.
func (b *base) run(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string), runSeg segmentRunner) (string, error) {
	start := time.Now()
	defer func() {
		metrics.SeparatorDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	}()

	durationS, err := b.prober.Duration(ctx, wavIn)
	if err != nil {
		return "", errors.NewProcessingError(errors.ErrCodeProbeFailed, "separate-probe",
			fmt.Sprintf("%s: failed to probe input duration", b.name), err)
	}

	segs := planSegments(durationS)
	useGPU := b.gpuAvailable()
	if useGPU {
		progressCb(0, fmt.Sprintf("%s: using GPU", b.name))
	} else {
		progressCb(0, fmt.Sprintf("%s: using CPU", b.name))
	}

	if len(segs) == 1 {
		vocalPath, err := b.runSingle(ctx, segs[0], wavIn, outDir, useGPU, progressCb, runSeg)
		if err != nil {
			return "", err
		}
		progressCb(100, fmt.Sprintf("%s: done", b.name))
		return vocalPath, nil
	}

	return b.runSegmented(ctx, wavIn, outDir, segs, useGPU, progressCb, runSeg)
}

func (b *base) runSingle(ctx context.Context, seg segment, wavIn, outDir string, useGPU bool, progressCb func(float64, string), runSeg segmentRunner) (string, error) {
	vocalPath, err := runSeg(ctx, seg, wavIn, outDir, useGPU)
	if err != nil && useGPU {
		b.log.Warn("GPU run failed, falling back to CPU once", zap.String("driver", b.name), zap.Error(err))
		progressCb(0, fmt.Sprintf("%s: GPU init failed, falling back to CPU", b.name))
		vocalPath, err = runSeg(ctx, seg, wavIn, outDir, false)
	}
	if err != nil {
		return "", errors.NewSeparatorError(b.name, "separation failed", err)
	}
	return vocalPath, nil
}

// runSegmented processes segments with bounded parallelism
// (demucs_workers), concatenates them in start-time order, and emits
// at least one progress update per segment completion.
func (b *base) runSegmented(ctx context.Context, wavIn, outDir string, segs []segment, useGPU bool, progressCb func(float64, string), runSeg segmentRunner) (string, error) {
	extractDir := filepath.Join(outDir, "segments_in")
	outSegDir := filepath.Join(outDir, "segments_out")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outSegDir, 0o755); err != nil {
		return "", err
	}

	for i := range segs {
		segPath, err := extractSegment(ctx, b.ffmpeg, wavIn, segs[i], extractDir)
		if err != nil {
			return "", errors.NewSeparatorError(b.name, "segment extraction failed", err)
		}
		segs[i].path = segPath
	}

	sem := semaphore.NewWeighted(int64(b.workers))
	g, gctx := errgroup.WithContext(ctx)

	var completed int32
	total := len(segs)

	for i := range segs {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		g.Go(func() error {
			defer sem.Release(1)

			vocalPath, err := runSeg(gctx, segs[i], segs[i].path, outSegDir, useGPU)
			if err != nil && useGPU {
				b.log.Warn("GPU segment failed, retrying on CPU",
					zap.String("driver", b.name), zap.Int("segment", segs[i].index), zap.Error(err))
				vocalPath, err = runSeg(gctx, segs[i], segs[i].path, outSegDir, false)
			}
			if err != nil {
				return errors.NewSeparatorError(b.name, fmt.Sprintf("segment %d failed", segs[i].index), err)
			}
			segs[i].outPath = vocalPath

			n := atomic.AddInt32(&completed, 1)
			pct := float64(n) / float64(total) * 100
			progressCb(pct, fmt.Sprintf("%s: segment %d/%d complete", b.name, n, total))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	concatenated := filepath.Join(outDir, "vocals.wav")
	if err := concatSegments(ctx, b.ffmpeg, segs, concatenated); err != nil {
		return "", errors.NewProcessingError(errors.ErrCodeExtractFailed, "concat",
			fmt.Sprintf("%s: failed to concatenate segments", b.name), err)
	}

	progressCb(100, fmt.Sprintf("%s: done", b.name))
	return concatenated, nil
}
