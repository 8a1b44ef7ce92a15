// Package audiotest writes WAV fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes samples (interleaved when channels > 1) as 16-bit PCM WAV
// into dir/name and returns the full path.
func WriteWAV(t testing.TB, dir, name string, samples []float32, sampleRate, channels int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(math.Max(-32768, math.Min(32767, v)))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	return path
}

// Silence returns seconds of zero samples at sampleRate.
func Silence(seconds float64, sampleRate int) []float32 {
	return make([]float32, int(math.Round(seconds*float64(sampleRate))))
}

// Tone returns seconds of a sine wave at freq Hz with the given amplitude.
func Tone(seconds, freq, amplitude float64, sampleRate int) []float32 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
