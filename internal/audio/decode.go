package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedFormat is returned for files that are neither WAV, FLAC, MP3 nor raw PCM16.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrTooLong is returned when a file announces more audio than the decoder's
// MaxSeconds allows.
var ErrTooLong = errors.New("audio exceeds duration limit")

// FileDecoder decodes WAV, FLAC, MP3 and raw PCM16 files into mono signals
// resampled to a fixed rate.
type FileDecoder struct {
	// SampleRate is the output rate. Raw PCM input is assumed to already be at this rate.
	SampleRate int
	// MaxSeconds rejects files whose header or container announces a longer
	// duration, before their samples are decoded. Zero disables the check.
	MaxSeconds float64
}

func NewFileDecoder(sampleRate int) *FileDecoder {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	return &FileDecoder{SampleRate: sampleRate}
}

// Decode reads the file at path, downmixes it to mono and resamples it to d.SampleRate.
func (d *FileDecoder) Decode(path string) (Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return Signal{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Signal{}, fmt.Errorf("read audio header: %w", err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Signal{}, fmt.Errorf("rewind audio: %w", err)
	}

	var (
		pcm []float32
		sr  int
	)
	switch sniff(head, path) {
	case "wav":
		pcm, sr, err = DecodeWAV(f, d.MaxSeconds)
	case "flac":
		pcm, sr, err = d.decodeFLAC(f)
	case "mp3":
		pcm, sr, err = d.decodeMP3(f)
	case "pcm":
		pcm, sr, err = d.decodePCM(f)
	default:
		return Signal{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return Signal{}, err
	}

	if len(pcm) > 0 && sr != d.SampleRate && sr > 0 {
		before := len(pcm)
		pcm = ResampleLinear(pcm, sr, d.SampleRate)
		log.Debug().Int("before", before).Int("after", len(pcm)).Int("sr", sr).Msg("resampled audio")
	}
	return Signal{Samples: pcm, SampleRate: d.SampleRate}, nil
}

func sniff(head []byte, path string) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav"
	case len(head) >= 4 && bytes.Equal(head[:4], []byte("fLaC")):
		return "flac"
	case len(head) >= 3 && bytes.Equal(head[:3], []byte("ID3")):
		return "mp3"
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcm", ".raw":
		return "pcm"
	}
	return ""
}

func (d *FileDecoder) decodeMP3(f *os.File) ([]float32, int, error) {
	s, format, err := mp3.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	defer s.Close()
	if err := d.checkLength(s.Len(), int(format.SampleRate)); err != nil {
		return nil, 0, err
	}
	pcm, err := drainMono(s)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	return pcm, int(format.SampleRate), nil
}

func (d *FileDecoder) decodeFLAC(f *os.File) ([]float32, int, error) {
	s, format, err := flac.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode flac: %w", err)
	}
	defer s.Close()
	if err := d.checkLength(s.Len(), int(format.SampleRate)); err != nil {
		return nil, 0, err
	}
	pcm, err := drainMono(s)
	if err != nil {
		return nil, 0, fmt.Errorf("decode flac: %w", err)
	}
	return pcm, int(format.SampleRate), nil
}

func (d *FileDecoder) decodePCM(f *os.File) ([]float32, int, error) {
	if st, err := f.Stat(); err == nil {
		if err := d.checkLength(int(st.Size()/2), d.SampleRate); err != nil {
			return nil, 0, err
		}
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm: %w", err)
	}
	return DecodePCM16LEToFloat32(raw, d.SampleRate)
}

// checkLength compares a container's announced frame count against MaxSeconds.
// An unknown length (<= 0) passes; the decoded signal is checked again later.
func (d *FileDecoder) checkLength(frames, sampleRate int) error {
	if d.MaxSeconds <= 0 || frames <= 0 || sampleRate <= 0 {
		return nil
	}
	if secs := float64(frames) / float64(sampleRate); secs > d.MaxSeconds {
		return fmt.Errorf("%w: file declares %.1fs, limit is %.1fs", ErrTooLong, secs, d.MaxSeconds)
	}
	return nil
}

// drainMono reads a beep streamer to the end, averaging the two channels.
// beep duplicates mono sources into both channels so the average is lossless for them.
func drainMono(s beep.Streamer) ([]float32, error) {
	buf := make([][2]float64, 4096)
	var out []float32
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, float32((buf[i][0]+buf[i][1])/2))
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}
