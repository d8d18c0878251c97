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

// spleeterProgressRe matches Spleeter's tqdm-style stderr progress
// lines, e.g. "67%|######6   | 134/200 [00:12<00:06, 10.86it/s]".
var spleeterProgressRe = regexp.MustCompile(`(\d{1,3})%\|`)

// SpleeterDriver implements ports.SeparatorDriver by shelling out to
// the spleeter CLI. The AI model itself is an opaque
// subprocess; this driver only handles invocation, segmentation and
// progress parsing.
type SpleeterDriver struct {
	*base
	binPath ports.ToolLocator
}

// NewSpleeterDriver creates a SpleeterDriver.
func NewSpleeterDriver(locator ports.ToolLocator, ffmpeg ports.FFmpegExecutor, prober ports.MediaProber, workers int, log *logger.Logger) *SpleeterDriver {
	return &SpleeterDriver{
		base:    newBase("spleeter", ffmpeg, prober, workers, log),
		binPath: locator,
	}
}

func (d *SpleeterDriver) Name() string { return "spleeter" }

func (d *SpleeterDriver) Separate(ctx context.Context, wavIn, outDir string, progressCb func(pct float64, step string)) (string, error) {
	return d.run(ctx, wavIn, outDir, progressCb, func(ctx context.Context, seg segment, segIn, segOutDir string, useGPU bool) (string, error) {
		return d.runOne(ctx, segIn, segOutDir, useGPU, progressCb)
	})
}

// runOne shells out to spleeter. Spleeter picks its device via the
// TensorFlow runtime rather than a CLI flag, so useGPU only affects
// whether CUDA_VISIBLE_DEVICES is cleared for the fallback attempt.
func (d *SpleeterDriver) runOne(ctx context.Context, segIn, segOutDir string, useGPU bool, progressCb func(float64, string)) (string, error) {
	binPath, err := d.binPath.Locate(ctx, "spleeter")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(segOutDir, 0o755); err != nil {
		return "", err
	}

	args := []string{
		"separate",
		"-p", "spleeter:2stems",
		"-o", segOutDir,
		segIn,
	}

	cmd := exec.Command(binPath, args...)
	if !useGPU {
		cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES=-1")
	}
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
			if m := spleeterProgressRe.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.Atoi(m[1]); err == nil {
					progressCb(float64(pct), "spleeter: separating")
				}
			}
		}
	}()

	if err := procrun.Run(ctx, cmd); err != nil {
		return "", errors.NewSeparatorError("spleeter", "spleeter process exited non-zero", err)
	}
	<-scanDone

	stem := stemName(segIn)
	vocalPath := filepath.Join(segOutDir, stem, "vocals.wav")
	if _, err := os.Stat(vocalPath); err != nil {
		return "", errors.NewSeparatorError("spleeter", fmt.Sprintf("expected vocals output at %s", vocalPath), err)
	}
	return vocalPath, nil
}

func stemName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
