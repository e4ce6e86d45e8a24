package app

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/vouchchat-server/internal/config"
	"github.com/vovakirdan/vouchchat-server/internal/core"
	"github.com/vovakirdan/vouchchat-server/internal/metrics"
	transporthttp "github.com/vovakirdan/vouchchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	tlsCert         string
	tlsKey          string
	log             *zerolog.Logger
}

// Option customises New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// WithPrometheus records metrics into reg and serves g on /metrics.
func WithPrometheus(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = g
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(metrics.WithRegistry(o.registerer))
	}

	registry := core.NewRegistry(cfg.RegistryBuffer, logger, m)
	server := transporthttp.NewServer(registry, cfg, logger, transporthttp.WithMetrics(m, o.gatherer))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		tlsCert:         cfg.TLSCertFile,
		tlsKey:          cfg.TLSKeyFile,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	// Sessions derive from ctx so shutdown tears them down.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go a.registry.Run(ctx)

	go func() {
		var err error
		if a.tlsCert != "" {
			a.log.Info().Str("addr", ln.Addr().String()).Msg("serving https")
			err = a.server.ServeTLS(ln, a.tlsCert, a.tlsKey)
		} else {
			a.log.Info().Str("addr", ln.Addr().String()).Msg("serving http")
			err = a.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
