package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/obiente/translate/goanalyze/internal/lifecycle"
	"github.com/obiente/translate/goanalyze/internal/telemetry"
	"github.com/obiente/translate/goanalyze/internal/ws"
)

type Options struct {
	Manager        *lifecycle.Manager
	Metrics        *telemetry.Metrics
	Device         string
	CORSOrigins    []string
	MaxUploadBytes int64
}

func NewRouter(opts Options) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(RequestID(), Recovery(), AccessLog(), CORS(opts.CORSOrigins))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "Online", "hardware": opts.Device})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	h := &analyzeHandler{mgr: opts.Manager, metrics: opts.Metrics, maxBytes: opts.MaxUploadBytes}
	r.POST("/analyze", h.analyze)

	wss := ws.NewServer(opts.Manager, opts.Metrics, opts.CORSOrigins)
	r.GET("/ws/analyze", gin.WrapF(wss.Handle))
	return r
}
