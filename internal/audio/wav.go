package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/go-audio/wav"
)

// DecodeWAV decodes a WAV stream into mono 32-bit float PCM samples and its sample rate.
// Multi-channel input is downmixed by averaging the interleaved channels.
// When maxSeconds > 0, a data chunk declaring more audio than that fails with
// ErrTooLong before any sample is read.
func DecodeWAV(r io.ReadSeeker, maxSeconds float64) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav file")
	}
	if maxSeconds > 0 {
		if err := dec.FwdToPCM(); err != nil {
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
		if secs, ok := declaredSeconds(dec); ok && secs > maxSeconds {
			return nil, 0, fmt.Errorf("%w: wav declares %.1fs, limit is %.1fs", ErrTooLong, secs, maxSeconds)
		}
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if err == io.EOF {
			err = nil
		} else {
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
	}
	if buf == nil {
		return nil, 0, errors.New("empty wav buffer")
	}
	// buf is *audio.IntBuffer; normalize to float32 [-1,1]
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	max := float32(int(1) << (bitDepth - 1))

	channels := int(dec.NumChans)
	if channels <= 0 && buf.Format != nil {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / max
		}
		out[i] = sum / float32(channels)
	}

	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = TargetSampleRate
	}
	return out, sr, nil
}

// declaredSeconds is the duration announced by the data chunk header. Writers
// that stream WAV leave the size at 0 or 0xFFFFFFFF; those report !ok.
func declaredSeconds(dec *wav.Decoder) (float64, bool) {
	size := dec.PCMLen()
	frameBytes := int64(dec.NumChans) * int64((dec.BitDepth-1)/8+1)
	if size <= 0 || size >= math.MaxUint32 || frameBytes <= 0 || dec.SampleRate == 0 {
		return 0, false
	}
	return float64(size/frameBytes) / float64(dec.SampleRate), true
}

// DecodePCM16LEToFloat32 converts little-endian PCM16 bytes into float32 samples and returns the given sample rate.
func DecodePCM16LEToFloat32(b []byte, sampleRate int) ([]float32, int, error) {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	if len(b)%2 != 0 {
		return nil, 0, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return out, sampleRate, nil
}

// ResampleLinear converts samples from inRate to outRate by interpolating
// between neighbouring input samples. The output holds len*outRate/inRate
// samples, at least one. Equal rates return a copy; a non-positive rate
// returns the input untouched.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	switch {
	case inRate == outRate:
		return slices.Clone(samples)
	case inRate <= 0 || outRate <= 0 || len(samples) == 0:
		return samples
	}
	out := make([]float32, max(len(samples)*outRate/inRate, 1))
	last := len(samples) - 1
	for i := range out {
		// output i sits at input position i*inRate/outRate; keep it exact.
		pos := i * inRate
		j, rem := pos/outRate, pos%outRate
		if j >= last {
			out[i] = samples[last]
			continue
		}
		t := float32(rem) / float32(outRate)
		out[i] = samples[j] + (samples[j+1]-samples[j])*t
	}
	return out
}
