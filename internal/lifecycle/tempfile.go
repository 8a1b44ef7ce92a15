package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUploadTooLarge is returned once an upload exceeds the spool limit.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

const maxNameLen = 64

// Spool creates the per-request temp files.
type Spool struct {
	dir      string
	maxBytes int64
}

// NewSpool uses dir (os.TempDir() when empty), creating it if needed.
// maxBytes <= 0 means no size limit.
func NewSpool(dir string, maxBytes int64) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("spool: create dir: %w", err)
	}
	return &Spool{dir: abs, maxBytes: maxBytes}, nil
}

func (s *Spool) Dir() string { return s.dir }

// Create opens a new, uniquely named temp file for filename.
func (s *Spool) Create(filename string) (*TempFile, error) {
	name := fmt.Sprintf("temp_%d_%s_%s", time.Now().UnixNano(), uuid.NewString()[:8], sanitize(filename))
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("spool: create file: %w", err)
	}
	return &TempFile{path: path, f: f, max: s.maxBytes}, nil
}

// Acquire stores all of r in a new temp file and closes it. Nothing is left
// on disk when it fails.
func (s *Spool) Acquire(r io.Reader, filename string) (*TempFile, error) {
	tf, err := s.Create(filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tf, r); err != nil {
		tf.Release()
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = ErrUploadTooLarge
		}
		return nil, fmt.Errorf("spool: write upload: %w", err)
	}
	if err := tf.Close(); err != nil {
		tf.Release()
		return nil, fmt.Errorf("spool: close upload: %w", err)
	}
	return tf, nil
}

// TempFile is an uploaded file on disk, owned by exactly one request.
type TempFile struct {
	path string
	max  int64
	n    int64

	mu      sync.Mutex
	f       *os.File
	release sync.Once
}

func (t *TempFile) Path() string { return t.path }

// Size is the number of bytes written so far.
func (t *TempFile) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

func (t *TempFile) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return 0, os.ErrClosed
	}
	if t.max > 0 && t.n+int64(len(p)) > t.max {
		return 0, ErrUploadTooLarge
	}
	n, err := t.f.Write(p)
	t.n += int64(n)
	return n, err
}

// Close finishes writing. Closing twice is a no-op.
func (t *TempFile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// Release closes and removes the file. Only the first call does anything.
func (t *TempFile) Release() {
	t.release.Do(func() {
		_ = t.Close()
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", t.path).Msg("lifecycle: temp file not removed")
			return
		}
		log.Debug().Str("path", t.path).Msg("lifecycle: temp file removed")
	})
}

func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if len(name) > maxNameLen {
		name = name[len(name)-maxNameLen:]
	}
	if name == "" {
		return "upload"
	}
	return name
}
