// Package lifecycle owns the uploaded file for the duration of one analysis
// request and removes it on every exit path.
package lifecycle

import (
	"context"
	"io"

	"github.com/obiente/translate/goanalyze/internal/errorsx"
	"github.com/obiente/translate/goanalyze/internal/stream"
)

// Streamer produces the units for one stored file.
type Streamer interface {
	Stream(ctx context.Context, path string, sink stream.Sink) error
}

type Manager struct {
	spool    *Spool
	streamer Streamer
}

func NewManager(spool *Spool, streamer Streamer) *Manager {
	return &Manager{spool: spool, streamer: streamer}
}

func (m *Manager) Spool() *Spool { return m.spool }

// Acquire spools upload to disk. Transports call it before committing to a
// response so upload errors can still be reported out of band.
func (m *Manager) Acquire(upload io.Reader, filename string) (*TempFile, error) {
	tf, err := m.spool.Acquire(upload, filename)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonUpload)
	}
	return tf, nil
}

// Serve spools upload and streams its analysis into sink.
func (m *Manager) Serve(ctx context.Context, upload io.Reader, filename string, sink stream.Sink) error {
	tf, err := m.Acquire(upload, filename)
	if err != nil {
		return err
	}
	return m.ServeFile(ctx, tf, sink)
}

// ServeFile takes ownership of tf: it is released when ServeFile returns,
// whatever the outcome.
func (m *Manager) ServeFile(ctx context.Context, tf *TempFile, sink stream.Sink) error {
	defer tf.Release()
	if err := tf.Close(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonUpload)
	}
	return m.streamer.Stream(ctx, tf.Path(), sink)
}
