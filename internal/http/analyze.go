package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/goanalyze/internal/errorsx"
	"github.com/obiente/translate/goanalyze/internal/lifecycle"
	"github.com/obiente/translate/goanalyze/internal/stream"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
)

// multipartSlack covers form headers and boundaries around the file part.
const multipartSlack = 1 << 20

type analyzeHandler struct {
	mgr      *lifecycle.Manager
	metrics  *telemetry.Metrics
	maxBytes int64
}

// analyze spools the "file" part, then streams one ndjson line per unit.
// Once the 200 header is out, failures are only reported in the body.
func (h *analyzeHandler) analyze(c *gin.Context) {
	ctx := c.Request.Context()
	logger := log.Ctx(ctx)

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartSlack)
	}
	mr, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a multipart/form-data upload"})
		return
	}

	var tf *lifecycle.TempFile
	for tf == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing form field \"file\""})
			return
		}
		if err != nil {
			h.uploadFailed(c, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		tf, err = h.mgr.Acquire(part, part.FileName())
		_ = part.Close()
		if err != nil {
			h.uploadFailed(c, err)
			return
		}
		logger.Info().Str("filename", part.FileName()).Int64("bytes", tf.Size()).Msg("upload spooled")
	}

	w := c.Writer
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug().Err(err).Msg("write deadline not cleared")
	}

	done := h.metrics.StreamStarted(ctx, "http")
	defer done()
	if err := h.mgr.ServeFile(ctx, tf, stream.NewNDJSON(w)); err != nil {
		logger.Warn().Err(err).Str("reason", string(errorsx.Reason(err))).Msg("analysis ended with error")
	}
}

func (h *analyzeHandler) uploadFailed(c *gin.Context, err error) {
	status := http.StatusBadRequest
	var mbe *http.MaxBytesError
	var pe *fs.PathError
	switch {
	case errors.Is(err, lifecycle.ErrUploadTooLarge), errors.As(err, &mbe):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &pe):
		status = http.StatusInternalServerError
	}
	log.Ctx(c.Request.Context()).Warn().Err(err).Int("status", status).Msg("upload rejected")
	h.metrics.StreamFailed(c.Request.Context(), errorsx.Wrap(err, errorsx.ReasonUpload))
	c.JSON(status, gin.H{"error": err.Error()})
}
