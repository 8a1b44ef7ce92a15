package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/audio/audiotest"
)

func TestDecodeWAVMono16k(t *testing.T) {
	dir := t.TempDir()
	path := audiotest.WriteWAV(t, dir, "tone.wav", audiotest.Tone(2, 440, 0.5, 16000), 16000, 1)

	sig, err := audio.NewFileDecoder(16000).Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sig.SampleRate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", sig.SampleRate)
	}
	if len(sig.Samples) != 32000 {
		t.Fatalf("expected 32000 samples, got %d", len(sig.Samples))
	}
	if got := sig.Seconds(); got != 2 {
		t.Fatalf("expected 2s, got %v", got)
	}
	var peak float32
	for _, s := range sig.Samples {
		if s > peak {
			peak = s
		}
	}
	if math.Abs(float64(peak)-0.5) > 0.01 {
		t.Fatalf("expected peak near 0.5, got %v", peak)
	}
}

func TestDecodeWAVStereoDownmixAndResample(t *testing.T) {
	dir := t.TempDir()
	frames := 8000 // 1s at 8 kHz
	interleaved := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		interleaved[2*i] = 0.5
		interleaved[2*i+1] = -0.5
	}
	path := audiotest.WriteWAV(t, dir, "stereo.wav", interleaved, 8000, 2)

	sig, err := audio.NewFileDecoder(16000).Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sig.Samples) != 16000 {
		t.Fatalf("expected 16000 samples after resampling, got %d", len(sig.Samples))
	}
	for i, s := range sig.Samples {
		if math.Abs(float64(s)) > 1e-3 {
			t.Fatalf("sample %d: expected downmix to cancel out, got %v", i, s)
		}
	}
}

func TestDecodeFLAC(t *testing.T) {
	// 22050 mono samples at 44.1 kHz
	sig, err := audio.NewFileDecoder(16000).Decode(filepath.Join("testdata", "mono_44100.flac"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assertMono16k(t, sig, 7984, 8016)
}

func TestDecodeMP3(t *testing.T) {
	// 22 MPEG-1 layer III frames at 44.1 kHz behind an ID3v2 tag; decoder
	// padding puts the output between 22050 and 25344 samples.
	sig, err := audio.NewFileDecoder(16000).Decode(filepath.Join("testdata", "mono_44100.mp3"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assertMono16k(t, sig, 7900, 9300)
}

func TestDecodeSniffsContentNotExtension(t *testing.T) {
	cases := []struct {
		fixture, saveAs string
		lo, hi          int
	}{
		{"mono_44100.mp3", "upload.bin", 7900, 9300},        // ID3 tag
		{"mono_44100_frames.bin", "upload.dat", 7900, 9300}, // bare frame sync
		{"mono_44100.flac", "recording.wav", 7984, 8016},
		{"mono_44100.flac", "noext", 7984, 8016},
	}
	for _, tc := range cases {
		t.Run(tc.fixture+"->"+tc.saveAs, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("testdata", tc.fixture))
			if err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(t.TempDir(), tc.saveAs)
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatal(err)
			}
			sig, err := audio.NewFileDecoder(16000).Decode(path)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			assertMono16k(t, sig, tc.lo, tc.hi)
		})
	}
}

func TestDecodeCompressedOverLimit(t *testing.T) {
	for _, name := range []string{"mono_44100.flac", "mono_44100.mp3"} {
		dec := audio.NewFileDecoder(16000)
		dec.MaxSeconds = 0.25
		if _, err := dec.Decode(filepath.Join("testdata", name)); !errors.Is(err, audio.ErrTooLong) {
			t.Fatalf("%s: expected ErrTooLong, got %v", name, err)
		}
		dec.MaxSeconds = 5
		if _, err := dec.Decode(filepath.Join("testdata", name)); err != nil {
			t.Fatalf("%s: decode under limit: %v", name, err)
		}
	}
}

func TestDecodeWAVHeaderOverLimit(t *testing.T) {
	// Header announces two hours of 16 kHz mono; only two samples follow.
	const declared = 2 * 3600 * 16000 * 2
	path := filepath.Join(t.TempDir(), "long.wav")
	if err := os.WriteFile(path, wavHeader(declared, []byte{0, 0x40, 0, 0xC0}), 0o600); err != nil {
		t.Fatal(err)
	}

	dec := audio.NewFileDecoder(16000)
	dec.MaxSeconds = 3600
	_, err := dec.Decode(path)
	if !errors.Is(err, audio.ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}

	dec.MaxSeconds = 0
	sig, err := dec.Decode(path)
	if err != nil {
		t.Fatalf("decode without limit: %v", err)
	}
	if len(sig.Samples) != 2 {
		t.Fatalf("expected the 2 samples present, got %d", len(sig.Samples))
	}
}

func TestDecodeWAVUnderLimit(t *testing.T) {
	path := audiotest.WriteWAV(t, t.TempDir(), "short.wav", audiotest.Silence(3, 16000), 16000, 1)
	dec := audio.NewFileDecoder(16000)
	dec.MaxSeconds = 3
	sig, err := dec.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sig.Samples) != 48000 {
		t.Fatalf("expected 48000 samples, got %d", len(sig.Samples))
	}
}

func TestDecodeRawPCM(t *testing.T) {
	dir := t.TempDir()
	raw := []byte{0x00, 0x40, 0x00, 0xC0} // +0.5, -0.5
	path := filepath.Join(dir, "clip.pcm")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	sig, err := audio.NewFileDecoder(16000).Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sig.Samples) != 2 || sig.Samples[0] != 0.5 || sig.Samples[1] != -0.5 {
		t.Fatalf("unexpected samples %v", sig.Samples)
	}
}

func TestDecodeCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := audio.NewFileDecoder(16000).Decode(path)
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeTruncatedWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(path, []byte("RIFF\x00\x00\x00\x00WAVEjunk"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := audio.NewFileDecoder(16000).Decode(path); err == nil {
		t.Fatal("expected error for truncated wav")
	}
}

func TestDecodeMissingFile(t *testing.T) {
	if _, err := audio.NewFileDecoder(16000).Decode(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func assertMono16k(t *testing.T, sig audio.Signal, lo, hi int) {
	t.Helper()
	if sig.SampleRate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", sig.SampleRate)
	}
	if n := len(sig.Samples); n < lo || n > hi {
		t.Fatalf("expected %d..%d samples, got %d", lo, hi, n)
	}
	for i, s := range sig.Samples {
		if math.IsNaN(float64(s)) || s < -1.001 || s > 1.001 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

// wavHeader builds a 16 kHz mono PCM16 file whose data chunk claims dataSize
// bytes regardless of len(data).
func wavHeader(dataSize uint32, data []byte) []byte {
	var b bytes.Buffer
	le := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }
	b.WriteString("RIFF")
	le(uint32(36 + dataSize))
	b.WriteString("WAVEfmt ")
	le(uint32(16))
	le(uint16(1))     // PCM
	le(uint16(1))     // mono
	le(uint32(16000)) // sample rate
	le(uint32(32000)) // byte rate
	le(uint16(2))     // block align
	le(uint16(16))    // bits
	b.WriteString("data")
	le(dataSize)
	b.Write(data)
	return b.Bytes()
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	out := audio.ResampleLinear(in, 4, 8)
	if len(out) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(out))
	}
	if out[1] != 0.5 {
		t.Fatalf("expected interpolated 0.5, got %v", out[1])
	}
	same := audio.ResampleLinear(in, 16000, 16000)
	if len(same) != len(in) || &same[0] == &in[0] {
		t.Fatal("expected a copy for equal rates")
	}
	down := audio.ResampleLinear([]float32{0, 1, 2, 3, 4, 5}, 3, 2)
	if len(down) != 4 || down[1] != 1.5 || down[3] != 4.5 {
		t.Fatalf("unexpected downsample %v", down)
	}
	if got := audio.ResampleLinear([]float32{0.25}, 44100, 16000); len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("expected single sample kept, got %v", got)
	}
}
