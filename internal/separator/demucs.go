package separator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/nomusic/nomusic/domain/ports"
	"github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"github.com/nomusic/nomusic/pkg/procrun"
)

// demucsProgressRe matches Demucs' tqdm-style stderr progress lines,
// e.g. " 45%|####5     | 90/200 [00:08<00:10, 10.8seconds/s]".
var demucsProgressRe = regexp.MustCompile(`(\d{1,3})%\|`)

// DemucsDriver implements ports.SeparatorDriver by shelling out to the
// demucs CLI. It prefers a CUDA device when available and
// falls back to CPU, both at the whole-run level and per segment.
type DemucsDriver struct {
	*base
	binPath ports.ToolLocator
	model   string // e.g. "htdemucs", from the demucs_model server setting
}

// NewDemucsDriver creates a DemucsDriver. model selects the demucs
// pretrained model name; empty uses demucs' own default.
func NewDemucsDriver(locator ports.ToolLocator, ffmpeg ports.FFmpegExecutor, prober ports.MediaProber, workers int, demucsModel string, log *logger.Logger) *DemucsDriver {
	return &DemucsDriver{
		base:    newBase("demucs", ffmpeg, prober, workers, log),
		binPath: locator,
		model:   demucsModel,
	}
}

func (d *DemucsDriver) Name() string { return "demucs" }

func (d *DemucsDriver) Separate(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string)) (string, error) {
	return d.run(ctx, wavIn, outDir, progressCb, func(ctx context.Context, seg segment, segIn, segOutDir string, useGPU bool) (string, error) {
		return d.runOne(ctx, segIn, segOutDir, useGPU, progressCb)
	})
}

func (d *DemucsDriver) runOne(ctx context.Context, segIn, segOutDir string, useGPU bool, progressCb func(float64, string)) (string, error) {
	binPath, err := d.binPath.Locate(ctx, "demucs")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(segOutDir, 0o755); err != nil {
		return "", err
	}

	args := []string{"--two-stems=vocals", "-o", segOutDir}
	if d.model != "" {
		args = append(args, "-n", d.model)
	}
	device := "cpu"
	if useGPU {
		device = "cuda"
	}
	args = append(args, "-d", device, segIn)

	cmd := exec.Command(binPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 4096), 1<<16)
		for scanner.Scan() {
			line := scanner.Text()
			if m := demucsProgressRe.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.Atoi(m[1]); err == nil {
					progressCb(float64(pct), fmt.Sprintf("demucs: separating (%s)", device))
				}
			}
		}
	}()

	if err := procrun.Run(ctx, cmd); err != nil {
		return "", errors.NewSeparatorError("demucs", "demucs process exited non-zero", err)
	}
	<-scanDone

	modelDir := d.model
	if modelDir == "" {
		modelDir = "htdemucs"
	}
	stem := stemName(segIn)
	vocalPath := filepath.Join(segOutDir, modelDir, stem, "vocals.wav")
	if _, err := os.Stat(vocalPath); err != nil {
		return "", errors.NewSeparatorError("demucs", fmt.Sprintf("expected vocals output at %s", vocalPath), err)
	}
	return vocalPath, nil
}
