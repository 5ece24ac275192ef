package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/bookings"
	"github.com/MrEthical07/authengine/httpapi"
	"github.com/MrEthical07/authengine/internal/logutil"
	"github.com/MrEthical07/authengine/metrics/export/prometheus"
)

// App is a fully wired deployment.
type App struct {
	Engine   *authengine.Engine
	Bookings *bookings.Service
	Handler  http.Handler

	cfg        *Config
	backends   *Backends
	closeAudit func() error
}

// Open wires every component described by cfg.
func Open(ctx context.Context, cfg *Config, fs afero.Fs) (*App, error) {
	logger := logutil.GetOrDefault(ctx)

	backends, err := OpenBackends(ctx, cfg, fs, logger)
	if err != nil {
		return nil, err
	}

	sink, closeAudit, err := openAuditSink(ctx, cfg.Audit, logger)
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	b := authengine.New().
		WithConfig(cfg.Engine).
		WithStore(backends.Users).
		WithAuditSink(sink).
		WithLogger(logger.With().Str("component", "authengine").Logger())
	if backends.Redis != nil {
		b = b.WithRedis(backends.Redis)
	}
	engine, err := b.Build()
	if err != nil {
		_ = closeAudit()
		_ = backends.Close()
		return nil, err
	}

	svc := bookings.New(engine, backends.Bookings)

	opts := httpapi.Options{
		AllowForceRegister: cfg.HTTP.AllowForceRegister,
		TrustForwardedFor:  cfg.HTTP.TrustForwardedFor,
		Logger:             logger,
	}
	if cfg.Metrics.Prometheus {
		opts.Metrics = prometheus.NewExporter(engine).Handler()
	}
	if cfg.HTTP.AllowForceRegister {
		logger.Warn().Msg("force registration over HTTP is enabled")
	}

	return &App{
		Engine:     engine,
		Bookings:   svc,
		Handler:    httpapi.New(engine, svc, opts),
		cfg:        cfg,
		backends:   backends,
		closeAudit: closeAudit,
	}, nil
}

// Close stops the engine, flushing pending audit events, then closes the
// sinks and backends.
func (a *App) Close() error {
	a.Engine.Close()
	return errors.Join(a.closeAudit(), a.backends.Close())
}

// Run serves the app on cfg.Listen until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return Serve(ctx, a.cfg.Listen, a.Handler, a.cfg.HTTP.ShutdownTimeout)
}

// Serve runs handler on bind until ctx is done, then shuts down gracefully
// within shutdownTimeout.
func Serve(ctx context.Context, bind string, handler http.Handler, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = time.Minute
	}
	server := &http.Server{
		Handler:           handler,
		Addr:              bind,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       5 * time.Minute,
	}
	errc := make(chan error, 1)
	done := make(chan struct{})
	go serveInBackground(ctx, server, shutdownTimeout, errc, done)
	<-done
	return <-errc
}

func serveInBackground(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, firstErr chan<- error, done chan<- struct{}) {
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", server.Addr).Logger()
	defer close(done)
	serverCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		defer close(firstErr)
		log.Info().Msg("Starting HTTP server")
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			log.Info().Msg("Server closed")
			return
		} else if err != nil {
			firstErr <- err
		}
	}()
	select {
	case <-serverCtx.Done():
	case <-ctx.Done():
		log.Info().Msg("Initiating shutdown process")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown did not complete")
		}
		<-serverCtx.Done()
		log.Info().Msg("Shutdown completed")
	}
}
