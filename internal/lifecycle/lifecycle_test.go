package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obiente/translate/goanalyze/internal/analysis"
	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/audio/audiotest"
	"github.com/obiente/translate/goanalyze/internal/errorsx"
	"github.com/obiente/translate/goanalyze/internal/inference"
	"github.com/obiente/translate/goanalyze/internal/stream"
)

type sliceSink struct {
	units []any
	err   error
}

func (s *sliceSink) Send(v any) error {
	if s.err != nil {
		return s.err
	}
	s.units = append(s.units, v)
	return nil
}

func newManager(t *testing.T, maxBytes int64) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	spool, err := NewSpool(filepath.Join(dir, "spool"), maxBytes)
	if err != nil {
		t.Fatalf("spool: %v", err)
	}
	an := analysis.New(inference.StubEmotion{}, inference.NewStubTagger(), analysis.DefaultOptions())
	asm := stream.NewAssembler(audio.NewFileDecoder(audio.TargetSampleRate), an, 0, nil)
	return NewManager(spool, asm), spool.Dir()
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("spool not empty: %v", entries)
	}
}

func wavBytes(t *testing.T, seconds float64) []byte {
	t.Helper()
	path := audiotest.WriteWAV(t, t.TempDir(), "in.wav", audiotest.Silence(seconds, audio.TargetSampleRate), audio.TargetSampleRate, 1)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return b
}

func TestServeReleasesAfterSuccess(t *testing.T) {
	m, dir := newManager(t, 0)
	sink := &sliceSink{}
	if err := m.Serve(context.Background(), bytes.NewReader(wavBytes(t, 12)), "class.wav", sink); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if len(sink.units) != 2 {
		t.Fatalf("units = %d", len(sink.units))
	}
	assertEmpty(t, dir)
}

func TestServeShortAudioEmitsNothing(t *testing.T) {
	m, dir := newManager(t, 0)
	sink := &sliceSink{}
	if err := m.Serve(context.Background(), bytes.NewReader(wavBytes(t, 0.8)), "short.wav", sink); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if len(sink.units) != 0 {
		t.Fatalf("units = %d", len(sink.units))
	}
	assertEmpty(t, dir)
}

func TestServeReleasesAfterErrorUnit(t *testing.T) {
	m, dir := newManager(t, 0)
	sink := &sliceSink{}
	err := m.Serve(context.Background(), strings.NewReader("not audio at all"), "notes.txt", sink)
	if errorsx.Reason(err) != errorsx.ReasonDecode {
		t.Fatalf("err = %v", err)
	}
	if len(sink.units) != 1 {
		t.Fatalf("units = %d", len(sink.units))
	}
	if _, ok := sink.units[0].(stream.ErrorUnit); !ok {
		t.Fatalf("unit = %#v", sink.units[0])
	}
	assertEmpty(t, dir)
}

func TestServeReleasesAfterDisconnect(t *testing.T) {
	m, dir := newManager(t, 0)
	sink := &sliceSink{err: errors.New("connection reset by peer")}
	err := m.Serve(context.Background(), bytes.NewReader(wavBytes(t, 25)), "class.wav", sink)
	if errorsx.Reason(err) != errorsx.ReasonTransportSend {
		t.Fatalf("err = %v", err)
	}
	assertEmpty(t, dir)
}

func TestServeReleasesAfterCancel(t *testing.T) {
	m, dir := newManager(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &sliceSink{}
	if err := m.Serve(ctx, bytes.NewReader(wavBytes(t, 12)), "class.wav", sink); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(sink.units) != 0 {
		t.Fatalf("units = %d", len(sink.units))
	}
	assertEmpty(t, dir)
}

func TestAcquireRejectsLargeUpload(t *testing.T) {
	m, dir := newManager(t, 10)
	_, err := m.Acquire(strings.NewReader("0123456789abc"), "big.wav")
	if !errors.Is(err, ErrUploadTooLarge) || errorsx.Reason(err) != errorsx.ReasonUpload {
		t.Fatalf("err = %v", err)
	}
	assertEmpty(t, dir)
}

func TestReleaseIsIdempotent(t *testing.T) {
	spool, err := NewSpool(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	tf, err := spool.Create("a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tf.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	tf.Release()
	tf.Release()
	if _, err := os.Stat(tf.Path()); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if _, err := tf.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("write after release = %v", err)
	}
}

func TestReleaseToleratesMissingFile(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	tf, err := spool.Create("a.wav")
	if err != nil {
		t.Fatal(err)
	}
	_ = tf.Close()
	if err := os.Remove(tf.Path()); err != nil {
		t.Fatal(err)
	}
	tf.Release()
}

func TestCreateNamesAreUniqueAndSanitized(t *testing.T) {
	spool, _ := NewSpool(t.TempDir(), 0)
	a, err := spool.Create("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := spool.Create("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if a.Path() == b.Path() {
		t.Fatal("same path for two uploads")
	}
	for _, p := range []string{a.Path(), b.Path()} {
		if filepath.Dir(p) != spool.Dir() {
			t.Fatalf("%s escapes spool dir", p)
		}
		base := filepath.Base(p)
		if !strings.HasPrefix(base, "temp_") || !strings.HasSuffix(base, "_passwd") {
			t.Fatalf("name = %s", base)
		}
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"lesson 1.wav":      "lesson_1.wav",
		"C:\\rec\\clip.mp3": "clip.mp3",
		"..":                "upload",
		"":                  "upload",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
