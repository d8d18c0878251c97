// Package orchestrator implements the Job Orchestrator: the
// pipeline runner for a single separation or download job, owning its
// temp dir, progress publication and cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/internal/config"
	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
)

// separatorSet names the two driver slots a separation phase may use.
type separatorSet struct {
	spleeter ports.SeparatorDriver
	demucs   ports.SeparatorDriver
}

// pipeline executes the eight-phase separation flow against one Job.
// It holds no per-job state itself; all mutable job state lives on
// the *model.Job passed to run.
type pipeline struct {
	ffmpeg     ports.FFmpegExecutor
	prober     ports.MediaProber
	separators separatorSet
	aligner    ports.Aligner
	mixer      ports.Mixer
	presets    *config.PresetManager
	tempRoot   string // per-job working directories, removed on terminal transition
	nomusicDir string // persistent directory for published separation results
	log        *logger.Logger
}

// phaseUpdate is how the pipeline reports progress; the Orchestrator
// supplies a closure that mutates the Job under its table lock.
type phaseUpdate func(progress int, step string)

// separationResult is everything the orchestrator needs to finish a
// completed separation Job.
type separationResult struct {
	finalPath string
	probe     *model.MediaProbe
}

func (p *pipeline) run(ctx context.Context, job *model.Job, update phaseUpdate) (*separationResult, error) {
	tempDir := filepath.Join(p.tempRoot, job.ID)
	job.TempDir = tempDir
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, err
	}

	// Phase: Probe (0 -> 3)
	update(0, "probing input")
	mediaProbe, err := p.prober.Probe(ctx, job.InputPath)
	if err != nil {
		return nil, pkgerrors.NewProcessingError(pkgerrors.ErrCodeProbeFailed, "probe", "failed to probe input", err)
	}
	update(3, "probed")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Phase: Extract WAV (3 -> 10)
	extractDir := filepath.Join(tempDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, err
	}
	wavPath := filepath.Join(extractDir, "input.wav")
	if err := p.extractWav(ctx, job.InputPath, wavPath); err != nil {
		return nil, pkgerrors.NewProcessingError(pkgerrors.ErrCodeExtractFailed, "extract", "failed to decode input to wav", err)
	}
	update(10, "extracted audio")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Phase: Separate (10 -> 75), concurrent drivers.
	sepOpts := job.SeparateOpts
	vocalSpleeter, vocalDemucs, err := p.runSeparators(ctx, sepOpts.Model, wavPath, tempDir, update)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Phase: Align (75 -> 80) and Mix (80 -> 85).
	mixDir := filepath.Join(tempDir, "mix")
	if err := os.MkdirAll(mixDir, 0o755); err != nil {
		return nil, err
	}
	mixedPath, err := p.alignAndMix(ctx, vocalSpleeter, vocalDemucs, mixDir, update)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Phase: Loudness normalize (85 -> 92).
	normalizedPath := filepath.Join(mixDir, "normalized.wav")
	if err := p.normalize(ctx, mixedPath, normalizedPath); err != nil {
		return nil, pkgerrors.NewProcessingError(pkgerrors.ErrCodeNormalizeFailed, "normalize", "loudness normalization failed", err)
	}
	update(92, "normalized")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Phase: Remux (92 -> 99).
	preset, ok := p.presets.Resolve(sepOpts.PresetName)
	if !ok {
		preset, _ = p.presets.Resolve("")
	}
	finalPath, err := p.remux(ctx, job.InputPath, normalizedPath, mediaProbe, preset)
	if err != nil {
		return nil, pkgerrors.NewProcessingError(pkgerrors.ErrCodeRemuxFailed, "remux", "failed to remux final output", err)
	}
	update(99, "remuxed")

	// Phase: Verify (100).
	info, err := os.Stat(finalPath)
	if err != nil || info.Size() == 0 {
		return nil, pkgerrors.NewProcessingError(pkgerrors.ErrCodeRemuxFailed, "verify", "final output missing or empty", err)
	}
	update(100, "done")

	return &separationResult{finalPath: finalPath, probe: mediaProbe}, nil
}

// extractWav decodes/resamples input to 44.1 kHz stereo PCM: the
// orchestrator does the resample and upmix once so both separator
// drivers receive a uniform input.
func (p *pipeline) extractWav(ctx context.Context, inputPath, wavOut string) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-ar", "44100",
		"-ac", "2",
		"-c:a", "pcm_s16le",
		wavOut,
	}
	return p.ffmpeg.Execute(ctx, args)
}

// runSeparators runs the requested driver(s) concurrently, mapping
// each driver's local 0-100 progress onto its half of the shared
// [10,75] band. A single failed driver degrades to a warning if the
// other succeeds; both failing fails the job.
func (p *pipeline) runSeparators(ctx context.Context, which model.SeparatorModel, wavPath, tempDir string, update phaseUpdate) (vocalSpleeter, vocalDemucs string, err error) {
	const bandStart, bandEnd = 10.0, 75.0

	runOne := func(driver ports.SeparatorDriver, outDir string, bandLo, bandHi float64) (string, error) {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", err
		}
		return driver.Separate(ctx, wavPath, outDir, func(pct float64, step string) {
			mapped := bandLo + (pct/100.0)*(bandHi-bandLo)
			update(int(mapped), fmt.Sprintf("%s: %s", driver.Name(), step))
		})
	}

	switch which {
	case model.ModelSpleeter:
		vocalSpleeter, err = runOne(p.separators.spleeter, filepath.Join(tempDir, "spleeter"), bandStart, bandEnd)
		return vocalSpleeter, "", err

	case model.ModelDemucs:
		vocalDemucs, err = runOne(p.separators.demucs, filepath.Join(tempDir, "demucs"), bandStart, bandEnd)
		return "", vocalDemucs, err

	default: // both
		mid := (bandStart + bandEnd) / 2
		g, gctx := errgroup.WithContext(ctx)
		_ = gctx // each driver uses the parent ctx directly; errgroup only aggregates errors here

		var errSpleeter, errDemucs error
		g.Go(func() error {
			vocalSpleeter, errSpleeter = runOne(p.separators.spleeter, filepath.Join(tempDir, "spleeter"), bandStart, mid)
			return nil
		})
		g.Go(func() error {
			vocalDemucs, errDemucs = runOne(p.separators.demucs, filepath.Join(tempDir, "demucs"), mid, bandEnd)
			return nil
		})
		_ = g.Wait()

		switch {
		case errSpleeter != nil && errDemucs != nil:
			return "", "", pkgerrors.NewSeparatorError("both", "both separators failed", errSpleeter)
		case errSpleeter != nil:
			p.log.Warn("spleeter failed, continuing with demucs only", zap.Error(errSpleeter))
			return "", vocalDemucs, nil
		case errDemucs != nil:
			p.log.Warn("demucs failed, continuing with spleeter only", zap.Error(errDemucs))
			return vocalSpleeter, "", nil
		default:
			return vocalSpleeter, vocalDemucs, nil
		}
	}
}

// alignAndMix runs the Aligner then Mixer when both vocal streams
// exist; with only one stream, mix is the identity.
func (p *pipeline) alignAndMix(ctx context.Context, vocalA, vocalB, mixDir string, update phaseUpdate) (string, error) {
	if vocalA == "" && vocalB == "" {
		return "", pkgerrors.NewSeparatorError("both", "no surviving separator output", nil)
	}
	if vocalA == "" || vocalB == "" {
		update(80, "align: single driver, skipping")
		only := vocalA
		if only == "" {
			only = vocalB
		}
		update(85, "mix: identity")
		return only, nil
	}

	alignment, err := p.aligner.Align(ctx, vocalA, vocalB, mixDir)
	if err != nil {
		return "", pkgerrors.NewProcessingError(pkgerrors.ErrCodeAlignmentWarning, "align", "alignment failed", err)
	}
	if alignment.LowConfidence {
		p.log.Warn("low-confidence alignment, proceeding with zero offset",
			zap.Float64("confidence", alignment.Confidence))
	}
	update(80, "aligned")

	mixedPath := filepath.Join(mixDir, "mixed.wav")
	if err := p.mixer.Mix(ctx, alignment.AlignedAPath, alignment.AlignedBPath, mixedPath); err != nil {
		return "", err
	}
	update(85, "mixed")
	return mixedPath, nil
}
