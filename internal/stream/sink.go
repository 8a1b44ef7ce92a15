package stream

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Sink delivers one serialized unit per Send. Implementations flush before
// returning so the consumer sees each unit as soon as it is produced.
type Sink interface {
	Send(v any) error
}

// ErrorUnit is the terminal unit sent in place of further records.
type ErrorUnit struct {
	Error string `json:"error"`
}

// NDJSON writes one JSON object per line.
type NDJSON struct {
	enc *json.Encoder
	rc  *http.ResponseController
}

// NewNDJSON wraps w. When w is an http.ResponseWriter every line is flushed
// through to the client.
func NewNDJSON(w io.Writer) *NDJSON {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	s := &NDJSON{enc: enc}
	if rw, ok := w.(http.ResponseWriter); ok {
		s.rc = http.NewResponseController(rw)
	}
	return s
}

func (s *NDJSON) Send(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if s.rc == nil {
		return nil
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
