package align

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"

	"github.com/nomusic/nomusic/pkg/logger"
)

const testSampleRate = 8000

func sineBuffer(t *testing.T, freqHz float64, lengthSamples, leadingSilence int) *audio.IntBuffer {
	t.Helper()
	data := make([]int, lengthSamples)
	for i := leadingSilence; i < lengthSamples; i++ {
		t := float64(i-leadingSilence) / testSampleRate
		data[i] = int(8000 * math.Sin(2*math.Pi*freqHz*t))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func writeTestWav(t *testing.T, dir, name string, buf *audio.IntBuffer) string {
	t.Helper()
	path, err := writeWav(buf, filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("writeWav: %v", err)
	}
	return path
}

func TestLeadingSilenceSamples(t *testing.T) {
	mono := make([]float64, testSampleRate) // 1s buffer
	for i := 2000; i < len(mono); i++ {
		mono[i] = 0.5
	}

	got := leadingSilenceSamples(mono, testSampleRate)
	if got != 2000 {
		t.Errorf("leadingSilenceSamples() = %d, want 2000", got)
	}
}

func TestLeadingSilenceSamplesCappedAtMax(t *testing.T) {
	mono := make([]float64, 10*testSampleRate) // all silence
	got := leadingSilenceSamples(mono, testSampleRate)
	want := int(maxSilenceTrimS * testSampleRate)
	if got != want {
		t.Errorf("leadingSilenceSamples() = %d, want capped at %d", got, want)
	}
}

func TestCrossCorrelateLagFindsKnownShift(t *testing.T) {
	n := 4000
	a := make([]float64, n)
	b := make([]float64, n)
	shift := 50
	for i := 0; i < n; i++ {
		a[i] = math.Sin(2 * math.Pi * float64(i) / 100)
	}
	for i := shift; i < n; i++ {
		b[i] = a[i-shift]
	}

	lag, confidence := crossCorrelateLag(a, b, 200)
	if lag != shift {
		t.Errorf("crossCorrelateLag() lag = %d, want %d", lag, shift)
	}
	if confidence <= 0 {
		t.Errorf("crossCorrelateLag() confidence = %v, want > 0", confidence)
	}
}

func TestCrossCorrelateLagEmptyInput(t *testing.T) {
	lag, confidence := crossCorrelateLag(nil, []float64{1, 2, 3}, 10)
	if lag != 0 || confidence != 0 {
		t.Errorf("crossCorrelateLag() with empty input = (%d, %v), want (0, 0)", lag, confidence)
	}
}

func TestAlignDetectsAndCorrectsLag(t *testing.T) {
	dir := t.TempDir()
	leadingSilenceSamplesCount := 100

	bufA := sineBuffer(t, 220, 3*testSampleRate, leadingSilenceSamplesCount)
	bufB := sineBuffer(t, 220, 3*testSampleRate, leadingSilenceSamplesCount+400) // B starts 400 samples later

	aPath := writeTestWav(t, dir, "a.wav", bufA)
	bPath := writeTestWav(t, dir, "b.wav", bufB)

	log, _ := logger.New(false)
	a := New(log)

	result, err := a.Align(context.Background(), aPath, bPath, filepath.Join(dir, "work"))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if result.LowConfidence {
		t.Fatalf("expected a confident alignment, got low confidence result: %+v", result)
	}
	if result.LagSamples <= 0 {
		t.Errorf("LagSamples = %d, want positive (B trails A)", result.LagSamples)
	}
	if result.AlignedAPath == aPath {
		t.Error("expected A to be padded (a new file) when B trails A")
	}
}

func TestAlignRejectsMismatchedSampleRate(t *testing.T) {
	dir := t.TempDir()
	bufA := sineBuffer(t, 220, testSampleRate, 0)
	bufB := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate * 2},
		Data:           make([]int, testSampleRate),
		SourceBitDepth: 16,
	}

	aPath := writeTestWav(t, dir, "a.wav", bufA)
	bPath := writeTestWav(t, dir, "b.wav", bufB)

	log, _ := logger.New(false)
	a := New(log)
	if _, err := a.Align(context.Background(), aPath, bPath, dir); err == nil {
		t.Fatal("expected error for mismatched sample rates")
	}
}

func TestMixSumsAndClamps(t *testing.T) {
	dir := t.TempDir()
	full := 1 << 15
	bufA := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           []int{full - 1000, 100, -full + 1000},
		SourceBitDepth: 16,
	}
	bufB := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           []int{5000, -50, -5000},
		SourceBitDepth: 16,
	}
	aPath := writeTestWav(t, dir, "a.wav", bufA)
	bPath := writeTestWav(t, dir, "b.wav", bufB)
	outPath := filepath.Join(dir, "mixed.wav")

	m := NewMixer()
	if err := m.Mix(context.Background(), aPath, bPath, outPath); err != nil {
		t.Fatalf("Mix: %v", err)
	}

	mixed, err := decodeWav(outPath)
	if err != nil {
		t.Fatalf("decodeWav(mixed): %v", err)
	}
	if mixed.Data[0] != full-1 {
		t.Errorf("sample 0 = %d, want clamp to %d", mixed.Data[0], full-1)
	}
	if mixed.Data[1] != 50 {
		t.Errorf("sample 1 = %d, want 50", mixed.Data[1])
	}
	if mixed.Data[2] != -full {
		t.Errorf("sample 2 = %d, want clamp to %d", mixed.Data[2], -full)
	}
}

func TestMixRejectsChannelMismatch(t *testing.T) {
	dir := t.TempDir()
	bufA := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           []int{0, 0},
		SourceBitDepth: 16,
	}
	bufB := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: testSampleRate},
		Data:           []int{0, 0, 0, 0},
		SourceBitDepth: 16,
	}
	aPath := writeTestWav(t, dir, "a.wav", bufA)
	bPath := writeTestWav(t, dir, "b.wav", bufB)

	m := NewMixer()
	if err := m.Mix(context.Background(), aPath, bPath, filepath.Join(dir, "out.wav")); err == nil {
		t.Fatal("expected error for channel count mismatch")
	}
}
