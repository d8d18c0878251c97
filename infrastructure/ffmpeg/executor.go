// Package ffmpeg wraps ffmpeg/ffprobe subprocess invocation. It is the
// only component in the module that shells out to the media toolchain
//.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	pkgerrors "github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"github.com/nomusic/nomusic/pkg/procrun"
	"go.uber.org/zap"
)

// PathResolver resolves a tool name ("ffmpeg", "ffprobe") to an
// absolute path. Implemented by internal/tools.Locator.
type PathResolver interface {
	Locate(ctx context.Context, tool string) (string, error)
}

// Executor implements ports.FFmpegExecutor.
type Executor struct {
	resolver PathResolver
	log      *logger.Logger
}

// ExecutorConfig holds configuration for the FFmpeg executor.
type ExecutorConfig struct {
	Resolver PathResolver
	Logger   *logger.Logger
}

// NewExecutor creates a new FFmpeg executor backed by a tool resolver.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("ffmpeg executor requires a PathResolver")
	}

	log := cfg.Logger
	if log == nil {
		log, _ = logger.New(false)
	}

	return &Executor{resolver: cfg.Resolver, log: log}, nil
}

// Execute runs ffmpeg with the given arguments.
func (e *Executor) Execute(ctx context.Context, args []string) error {
	path, err := e.resolver.Locate(ctx, "ffmpeg")
	if err != nil {
		return err
	}

	cmd := exec.Command(path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug("executing ffmpeg", zap.String("cmd", shellescape.QuoteCommand(append([]string{path}, args...))))

	if err := procrun.Run(ctx, cmd); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return pkgerrors.NewFFmpegError("ffmpeg execution failed", args, exitCode, stderr.String(), err)
	}

	return nil
}

// ExecuteCapture runs ffmpeg and returns stdout/stderr regardless of
// exit status.
func (e *Executor) ExecuteCapture(ctx context.Context, args []string) ([]byte, []byte, error) {
	path, err := e.resolver.Locate(ctx, "ffmpeg")
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debug("executing ffmpeg (capture)", zap.String("cmd", shellescape.QuoteCommand(append([]string{path}, args...))))

	runErr := procrun.Run(ctx, cmd)
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), stderr.Bytes(), pkgerrors.NewFFmpegError("ffmpeg execution failed", args, exitCode, stderr.String(), runErr)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// Probe runs ffprobe and returns JSON output.
func (e *Executor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	path, err := e.resolver.Locate(ctx, "ffprobe")
	if err != nil {
		return nil, err
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, pkgerrors.NewFFmpegError("ffprobe execution failed", args, exitCode, stderr.String(), err)
	}

	return stdout.Bytes(), nil
}

// FilterChainBuilder constructs an ffmpeg audio filter string.
type FilterChainBuilder struct {
	filters []string
}

func NewFilterChainBuilder() *FilterChainBuilder {
	return &FilterChainBuilder{}
}

func (b *FilterChainBuilder) AddHighpass(freq int) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("highpass=f=%d", freq))
	return b
}

func (b *FilterChainBuilder) AddLowpass(freq int) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("lowpass=f=%d", freq))
	return b
}

func (b *FilterChainBuilder) AddLoudnorm(targetLUFS, truePeak, LRA float64) *FilterChainBuilder {
	filter := fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f", targetLUFS, truePeak, LRA)
	b.filters = append(b.filters, filter)
	return b
}

func (b *FilterChainBuilder) AddResample(hz int) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("aresample=%d", hz))
	return b
}

func (b *FilterChainBuilder) AddPad(delaySamples int, sampleRate int) *FilterChainBuilder {
	ms := float64(delaySamples) * 1000.0 / float64(sampleRate)
	b.filters = append(b.filters, fmt.Sprintf("adelay=%.0f|%.0f:all=1", ms, ms))
	return b
}

func (b *FilterChainBuilder) Build() string {
	return strings.Join(b.filters, ",")
}

func (b *FilterChainBuilder) IsEmpty() bool {
	return len(b.filters) == 0
}
