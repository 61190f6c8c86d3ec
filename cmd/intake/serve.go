package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/liveintake/client"
	"github.com/gabrielmiguelok/liveintake/internal/config"
	"github.com/gabrielmiguelok/liveintake/internal/intake"
	"github.com/gabrielmiguelok/liveintake/internal/submit"
	"github.com/gabrielmiguelok/liveintake/pkg/health"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/metrics"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
	"github.com/gabrielmiguelok/liveintake/pkg/router"
	"github.com/gabrielmiguelok/liveintake/pkg/shutdown"
	"github.com/gabrielmiguelok/liveintake/pkg/state"
	"github.com/gabrielmiguelok/liveintake/pkg/transport"
	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

const (
	scriptPath           = "/assets/intake.js"
	sessionSweepInterval = time.Minute
	purgeInterval        = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the intake form",
	Long: `Serve the intake form over HTTP.

Progress is saved per browser in the configured store and restored on the
next visit. Completed forms are posted to submit.endpoint, or kept in the
store when no endpoint is configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	config.RegisterFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	logging.SetDefault(logger)

	def := wizard.DefaultDefinition()
	if cfg.FormPath != "" {
		if def, err = wizard.LoadDefinition(cfg.FormPath); err != nil {
			return err
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	submitter, err := newSubmitter(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	m := metrics.NewMetrics("intake")
	autosaver := wizard.NewAutosaver(logger)
	if purger, ok := store.(*state.SQLiteStore); ok {
		if _, err := autosaver.Every(purgeInterval, func() { purgeExpired(purger, logger) }); err != nil {
			_ = store.Close()
			return err
		}
	}

	r := router.New(
		router.WithLogger(logger),
		router.WithMetrics(m),
		router.WithCookie(router.CookieConfig{
			Name:   router.DefaultCookieConfig().Name,
			MaxAge: router.DefaultCookieConfig().MaxAge,
			Secure: cfg.CookieSecure,
		}),
		router.WithWebSocketConfig(&transport.WebSocketConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			Codecs:         protocol.DefaultCodecRegistry,
		}),
		router.WithSessionConfig(&router.SessionManagerConfig{
			MaxSessions: cfg.Sessions.Max,
			IdleTimeout: cfg.Sessions.IdleTimeout,
		}),
	)
	r.Use(logging.RequestLogger(logger))
	r.Use(router.Recovery(m))
	r.Use(router.SecureHeaders())

	routeOpts := []router.RouteOption{router.WithLayout(intake.Layout(def.Title, scriptPath))}
	if cfg.RateLimit > 0 {
		routeOpts = append(routeOpts, router.WithRouteMiddleware(router.RateLimit(cfg.RateLimit)))
	}
	r.Live("/", "/live", intake.NewFactory(intake.Config{
		Definition:       def,
		Store:            store,
		Submitter:        submitter,
		Autosaver:        autosaver,
		AutosaveInterval: cfg.Autosave.Interval,
		RecordTTL:        cfg.Store.RecordTTL,
		SubmitTimeout:    cfg.Submit.Timeout,
		Metrics:          m,
	}), routeOpts...)

	checker := health.DefaultChecker(version, store)
	checker.AddCheck("sessions", health.SessionCapacityCheck(r.Sessions().Count, cfg.Sessions.Max), time.Second)
	if cfg.MaxHeapBytes > 0 {
		checker.AddCheck("memory", health.MemoryCheck(cfg.MaxHeapBytes), time.Second)
	}
	cors := router.CORS(cfg.AllowedOrigins)
	r.Handle("/assets/", http.StripPrefix("/assets/", client.Handler()))
	r.Handle("/healthz", cors(checker.ReadinessHandler()))
	r.Handle("/livez", cors(checker.LivenessHandler()))
	r.Handle("/metrics", cors(m.Handler()))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopSweep := make(chan struct{})
	r.Sessions().StartCleanupRoutine(sessionSweepInterval, stopSweep)
	autosaver.Start()

	sd := shutdown.NewHandler(&shutdown.Config{
		Timeout: cfg.ShutdownTimeout,
		Signals: shutdown.DefaultConfig().Signals,
		Logger:  logger,
	})
	sd.RegisterFunc("http", shutdown.PriorityHTTP, srv.Shutdown)
	sd.RegisterFunc("sessions", shutdown.PrioritySessions, func(ctx context.Context) error {
		close(stopSweep)
		return r.Shutdown(ctx)
	})
	sd.RegisterFunc("autosave", shutdown.PriorityScheduler, func(context.Context) error {
		autosaver.Stop()
		return nil
	})
	sd.RegisterCloser("store", shutdown.PriorityStore, store)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			logging.String("addr", cfg.Addr),
			logging.String("store", cfg.Store.Driver),
			logging.String("form", def.Title),
			logging.Strings("allowed_origins", cfg.AllowedOrigins),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- fmt.Errorf("listen %s: %w", cfg.Addr, err)
			cancel()
		}
	}()

	err = sd.Wait(ctx)
	select {
	case lerr := <-listenErr:
		return errors.Join(lerr, err)
	default:
	}
	return err
}

func openStore(cfg *config.Config) (state.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err := state.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return store, nil
	default:
		return state.NewMemoryStore(time.Minute), nil
	}
}

func newSubmitter(cfg *config.Config, store state.Store, logger logging.Logger) (submit.Submitter, error) {
	if cfg.Submit.Endpoint == "" {
		logger.Warn("no submit endpoint configured, completed forms are kept in the store")
		return submit.NewStoreSubmitter(store, cfg.Submit.KeepFor), nil
	}
	s, err := submit.NewHTTPSubmitter(cfg.Submit.Endpoint, submit.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("submitter: %w", err)
	}
	return s, nil
}

func purgeExpired(store *state.SQLiteStore, logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := store.Purge(ctx)
	if err != nil {
		logger.Warn("purge expired records failed", logging.Err(err))
		return
	}
	if n > 0 {
		logger.Info("purged expired records", logging.Int64("count", n))
	}
}
