package align

import (
	"context"

	"github.com/go-audio/audio"

	"github.com/nomusic/nomusic/pkg/errors"
)

// Mixer implements ports.Mixer: equal-weight sum of two aligned vocal
// streams with a per-channel limiter at 0 dBFS.
type Mixer struct{}

// NewMixer creates a Mixer.
func NewMixer() *Mixer {
	return &Mixer{}
}

// Mix sums aPath and bPath sample-for-sample, padding the shorter one
// with silence so the output duration is max(len(A), len(B)).
func (m *Mixer) Mix(ctx context.Context, aPath, bPath, outPath string) error {
	bufA, err := decodeWav(aPath)
	if err != nil {
		return errors.NewProcessingError(errors.ErrCodeMixFailed, "mix", "failed to decode stream A", err)
	}
	bufB, err := decodeWav(bPath)
	if err != nil {
		return errors.NewProcessingError(errors.ErrCodeMixFailed, "mix", "failed to decode stream B", err)
	}
	if bufA.Format.SampleRate != bufB.Format.SampleRate || bufA.Format.NumChannels != bufB.Format.NumChannels {
		return errors.NewValidationError("mix_inputs", outPath, "both streams must share sample rate and channel count")
	}

	full := fullScale(bufA.SourceBitDepth)
	n := len(bufA.Data)
	if len(bufB.Data) > n {
		n = len(bufB.Data)
	}

	mixed := make([]int, n)
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(bufA.Data) {
			a = bufA.Data[i]
		}
		if i < len(bufB.Data) {
			b = bufB.Data[i]
		}
		mixed[i] = limit(a+b, full)
	}

	out := &audio.IntBuffer{
		Format:         bufA.Format,
		Data:           mixed,
		SourceBitDepth: bufA.SourceBitDepth,
	}
	if _, err := writeWav(out, outPath); err != nil {
		return errors.NewProcessingError(errors.ErrCodeMixFailed, "mix", "failed to write mixed output", err)
	}
	return nil
}

func fullScale(bitDepth int) int {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return 1 << (bitDepth - 1)
}

// limit clamps a summed sample to the full-scale range, implementing
// the 0 dBFS limiter (hard clip, applied only on true overflow since
// equal-weight summation of two independent vocal stems rarely
// saturates both channels simultaneously).
func limit(v, full int) int {
	if v > full-1 {
		return full - 1
	}
	if v < -full {
		return -full
	}
	return v
}

