package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/config"
	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/metrics"
	"github.com/vovakirdan/vouchchat-server/internal/session"
)

// Registry is the registry surface the HTTP layer needs.
type Registry interface {
	session.Registrar
	Snapshot(ctx context.Context) (core.Snapshot, error)
}

// Option customises NewServer.
type Option func(*serverOptions)

type serverOptions struct {
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// WithMetrics records session metrics into m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(o *serverOptions) {
		o.metrics = m
		o.gatherer = g
	}
}

// NewServer builds an HTTP server with the chat routes.
func NewServer(registry Registry, cfg *config.Config, logger *zerolog.Logger, opts ...Option) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(registry, cfg, logger, opts...),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine.
func NewRouter(registry Registry, cfg *config.Config, logger *zerolog.Logger, opts ...Option) *gin.Engine {
	o := serverOptions{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler)
	r.GET("/api/stats", statsHandler(registry, logger))

	ws := gin.WrapH(NewWSHandler(registry, cfg, logger, o.metrics))
	r.GET("/ws", ws)
	r.GET("/chat", ws)

	if cfg.MetricsEnabled && o.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}

	if cfg.StaticDir != "" {
		files := stdhttp.FileServer(gin.Dir(cfg.StaticDir, false))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != stdhttp.MethodGet && c.Request.Method != stdhttp.MethodHead {
				c.String(stdhttp.StatusNotFound, "404")
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Clients int            `json:"clients"`
	Rooms   map[string]int `json:"rooms"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statsHandler(registry Registry, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := registry.Snapshot(c.Request.Context())
		if err != nil {
			logger.Error().Err(err).Msg("registry snapshot")
			c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "registry unavailable"})
			return
		}
		c.JSON(stdhttp.StatusOK, StatsResponse{
			Clients: len(snap.Clients),
			Rooms:   snap.Occupants,
		})
	}
}
