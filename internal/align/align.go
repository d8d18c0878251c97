// Package align implements the Aligner/Mixer: cross-correlation
// lag estimation between two independently produced vocal stems,
// left-pad correction, and equal-weight mixing with a limiter.
package align

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nomusic/nomusic/domain/model"
	"github.com/nomusic/nomusic/pkg/errors"
	"github.com/nomusic/nomusic/pkg/logger"
	"go.uber.org/zap"
)

const (
	// maxSilenceTrimS bounds how much leading silence is stripped
	// before analysis, applied equally to both streams so the real
	// inter-stream offset survives.
	maxSilenceTrimS = 5.0
	// silenceFloorDBFS is the threshold below which a sample is
	// considered silence for trimming purposes.
	silenceFloorDBFS = -50.0
	// analysisWindowS bounds the correlation window.
	analysisWindowS = 30.0
	// maxLagS beyond which a lag estimate is discarded.
	maxLagS = 2.0
	// confidenceFloor below which a lag estimate is discarded.
	confidenceFloor = 0.2
	// searchMarginS widens the correlation search past maxLagS so
	// genuine lags near the cutoff are still measured before being
	// rejected, without paying for a full O(n*m) cross-correlation.
	searchMarginS = 1.0
)

// Aligner implements ports.Aligner.
type Aligner struct {
	log *logger.Logger
}

// New creates an Aligner.
func New(log *logger.Logger) *Aligner {
	return &Aligner{log: log}
}

// Align estimates the lag between aPath and bPath and writes
// left-padded copies into workDir.
func (a *Aligner) Align(ctx context.Context, aPath, bPath, workDir string) (*model.AlignmentResult, error) {
	bufA, err := decodeWav(aPath)
	if err != nil {
		return nil, errors.NewProcessingError(errors.ErrCodeAlignmentWarning, "align", "failed to decode stream A", err)
	}
	bufB, err := decodeWav(bPath)
	if err != nil {
		return nil, errors.NewProcessingError(errors.ErrCodeAlignmentWarning, "align", "failed to decode stream B", err)
	}
	if bufA.Format.SampleRate != bufB.Format.SampleRate {
		return nil, errors.NewValidationError("sample_rate", fmt.Sprintf("%d vs %d", bufA.Format.SampleRate, bufB.Format.SampleRate), "aligner inputs must share a sample rate")
	}
	sampleRate := bufA.Format.SampleRate

	monoA := downmix(bufA)
	monoB := downmix(bufB)

	trimA := leadingSilenceSamples(monoA, sampleRate)
	trimB := leadingSilenceSamples(monoB, sampleRate)
	trim := trimA
	if trimB < trim {
		trim = trimB
	}

	windowLen := int(analysisWindowS * float64(sampleRate))
	winA := window(monoA, trim, windowLen)
	winB := window(monoB, trim, windowLen)

	maxLagSamples := int(maxLagS * float64(sampleRate))
	searchMargin := int(searchMarginS * float64(sampleRate))

	lag, confidence := crossCorrelateLag(winA, winB, maxLagSamples+searchMargin)

	lowConfidence := false
	if abs(lag) > maxLagSamples || confidence < confidenceFloor {
		a.log.Warn("alignment lag rejected, falling back to zero offset",
			zap.Int("lag_samples", lag), zap.Float64("confidence", confidence))
		lag = 0
		lowConfidence = true
	}

	alignedA, alignedB := aPath, bPath
	if lag != 0 {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, err
		}
		if lag > 0 {
			// Positive lag: B trails A, so A must be delayed to match.
			alignedA, err = padLeading(bufA, lag, workDir, "aligned_a.wav")
		} else {
			alignedB, err = padLeading(bufB, -lag, workDir, "aligned_b.wav")
		}
		if err != nil {
			return nil, errors.NewProcessingError(errors.ErrCodeAlignmentWarning, "align", "failed to write padded stream", err)
		}
	}

	return &model.AlignmentResult{
		LagSamples:    lag,
		LagSeconds:    float64(lag) / float64(sampleRate),
		Confidence:    clamp01(confidence),
		SampleRate:    sampleRate,
		AlignedAPath:  alignedA,
		AlignedBPath:  alignedB,
		LowConfidence: lowConfidence,
	}, nil
}

func decodeWav(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if !dec.WasPCMAccessed() {
		return nil, fmt.Errorf("%s: not a valid PCM wav file", path)
	}
	return buf, nil
}

// downmix collapses an interleaved multi-channel buffer to mono
// float64 samples in [-1, 1], for correlation purposes only.
func downmix(buf *audio.IntBuffer) []float64 {
	ch := buf.Format.NumChannels
	if ch <= 0 {
		ch = 1
	}
	full := 1 << (buf.SourceBitDepth - 1)
	if buf.SourceBitDepth == 0 {
		full = 1 << 15
	}
	n := len(buf.Data) / ch
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = (sum / float64(ch)) / float64(full)
	}
	return out
}

// leadingSilenceSamples returns how many leading samples fall below
// silenceFloorDBFS, capped at maxSilenceTrimS.
func leadingSilenceSamples(mono []float64, sampleRate int) int {
	limit := int(maxSilenceTrimS * float64(sampleRate))
	if limit > len(mono) {
		limit = len(mono)
	}
	floor := math.Pow(10, silenceFloorDBFS/20)
	for i := 0; i < limit; i++ {
		if math.Abs(mono[i]) >= floor {
			return i
		}
	}
	return limit
}

func window(mono []float64, trim, length int) []float64 {
	if trim > len(mono) {
		trim = len(mono)
	}
	remaining := mono[trim:]
	if length > len(remaining) {
		length = len(remaining)
	}
	return remaining[:length]
}

// crossCorrelateLag finds argmax(|xcorr(a, b)|) restricted to lags in
// [-maxLag, maxLag] and returns the lag (samples) and a confidence
// score (peak / mean absolute correlation over the searched lags).
func crossCorrelateLag(a, b []float64, maxLag int) (int, float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}

	var best float64
	bestLag := 0
	var sumAbs float64
	count := 0

	for lag := -maxLag; lag <= maxLag; lag++ {
		var sum float64
		var n int
		if lag >= 0 {
			n = minInt(len(a), len(b)-lag)
			for i := 0; i < n; i++ {
				sum += a[i] * b[i+lag]
			}
		} else {
			n = minInt(len(a)+lag, len(b))
			for i := 0; i < n; i++ {
				sum += a[i-lag] * b[i]
			}
		}
		if n <= 0 {
			continue
		}
		corr := sum / float64(n)
		sumAbs += math.Abs(corr)
		count++
		if math.Abs(corr) > math.Abs(best) {
			best = corr
			bestLag = lag
		}
	}

	if count == 0 || sumAbs == 0 {
		return 0, 0
	}
	mean := sumAbs / float64(count)
	confidence := math.Abs(best) / mean
	if confidence > 1 {
		confidence = 1
	}
	return bestLag, confidence
}

// padLeading writes buf to destDir/name with padSamples of silence
// prepended (never truncates).
func padLeading(buf *audio.IntBuffer, padSamples int, destDir, name string) (string, error) {
	ch := buf.Format.NumChannels
	padded := make([]int, padSamples*ch+len(buf.Data))
	copy(padded[padSamples*ch:], buf.Data)

	out := &audio.IntBuffer{
		Format:         buf.Format,
		Data:           padded,
		SourceBitDepth: buf.SourceBitDepth,
	}
	return writeWav(out, destDir+string(os.PathSeparator)+name)
}

func writeWav(buf *audio.IntBuffer, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return "", err
	}
	return path, enc.Close()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
