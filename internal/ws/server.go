// Package ws serves /ws/analyze: the client uploads a file over a WebSocket
// and receives each analysis unit as one text message.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/goanalyze/internal/lifecycle"
	"github.com/obiente/translate/goanalyze/internal/stream"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
)

const (
	idleTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	maxMessage   = 16 << 20
)

type Server struct {
	mgr      *lifecycle.Manager
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader
}

// NewServer accepts connections from the given origins; "*" allows any.
func NewServer(mgr *lifecycle.Manager, metrics *telemetry.Metrics, origins []string) *Server {
	return &Server{
		mgr:     mgr,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(origins),
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

type message struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data,omitempty"`
}

type reply struct {
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// session owns one connection. Writes are serialized; reads happen on one
// goroutine at a time.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  zerolog.Logger
}

// Send implements stream.Sink.
func (s *session) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *session) reply(typ, detail string) {
	if err := s.Send(reply{Type: typ, Detail: detail}); err != nil {
		s.logger.Debug().Err(err).Str("type", typ).Msg("ws: reply not delivered")
	}
}

func (s *session) close(code int, text string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(idleTimeout)) })

	sess := &session{conn: conn, logger: *log.Ctx(r.Context())}
	tf, ok := s.receive(sess)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	_ = conn.SetReadDeadline(time.Time{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.watch(ctx, sess, cancel)
	}()

	done := s.metrics.StreamStarted(ctx, "ws")
	err = s.mgr.ServeFile(ctx, tf, sess)
	done()
	if err != nil {
		sess.logger.Warn().Err(err).Msg("ws: analysis ended with error")
	}
	if ctx.Err() == nil {
		sess.close(websocket.CloseNormalClosure, "")
	}
	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(writeTimeout))
	<-readerDone
}

// receive runs the upload phase until "end". It reports false when the
// connection is finished and no analysis should run.
func (s *Server) receive(sess *session) (*lifecycle.TempFile, bool) {
	var tf *lifecycle.TempFile
	abort := func() (*lifecycle.TempFile, bool) {
		if tf != nil {
			tf.Release()
		}
		return nil, false
	}

	for {
		mt, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger.Warn().Err(err).Msg("ws read error")
			}
			return abort()
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(idleTimeout))

		if mt == websocket.BinaryMessage {
			if tf == nil {
				sess.reply("error", "send start before audio")
				continue
			}
			if !s.write(sess, tf, data) {
				return abort()
			}
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.reply("error", "invalid json")
			continue
		}
		switch msg.Type {
		case "ping":
			sess.reply("pong", "")
		case "start":
			if tf != nil {
				sess.reply("error", "already started")
				continue
			}
			tf, err = s.mgr.Spool().Create(msg.Filename)
			if err != nil {
				sess.logger.Error().Err(err).Msg("ws: spool create failed")
				_ = sess.Send(stream.ErrorUnit{Error: "could not store upload"})
				sess.close(websocket.CloseInternalServerErr, "")
				return abort()
			}
			sess.logger.Info().Str("filename", msg.Filename).Msg("ws: upload started")
			sess.reply("started", "")
		case "chunk":
			if tf == nil {
				sess.reply("error", "send start before audio")
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				sess.reply("error", "invalid base64 audio")
				continue
			}
			if !s.write(sess, tf, raw) {
				return abort()
			}
		case "end":
			if tf == nil {
				sess.reply("error", "nothing uploaded")
				continue
			}
			sess.logger.Info().Int64("bytes", tf.Size()).Msg("ws: upload complete")
			return tf, true
		case "stop":
			if tf != nil {
				tf.Release()
			}
			sess.reply("stopped", "")
			sess.close(websocket.CloseNormalClosure, "")
			return abort()
		default:
			sess.reply("error", "unknown message type")
		}
	}
}

func (s *Server) write(sess *session, tf *lifecycle.TempFile, p []byte) bool {
	if _, err := tf.Write(p); err != nil {
		msg := "could not store upload"
		code := websocket.CloseInternalServerErr
		if errors.Is(err, lifecycle.ErrUploadTooLarge) {
			msg = lifecycle.ErrUploadTooLarge.Error()
			code = websocket.CloseMessageTooBig
		}
		sess.logger.Warn().Err(err).Msg("ws: upload write failed")
		tf.Release()
		_ = sess.Send(stream.ErrorUnit{Error: msg})
		sess.close(code, "")
		return false
	}
	return true
}

// watch reads control messages while the analysis runs. A stop message or a
// broken connection cancels the analysis.
func (s *Server) watch(ctx context.Context, sess *session, cancel context.CancelFunc) {
	for {
		mt, data, err := sess.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				sess.logger.Info().Err(err).Msg("ws: client gone, cancelling analysis")
			}
			cancel()
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			sess.reply("pong", "")
		case "stop":
			sess.logger.Info().Msg("ws: stop requested")
			cancel()
			sess.close(websocket.CloseNormalClosure, "stopped")
			return
		}
	}
}
