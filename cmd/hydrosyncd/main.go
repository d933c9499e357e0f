package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hydrosync/internal/client"
	"hydrosync/internal/config"
	"hydrosync/internal/handlers"
	"hydrosync/internal/logger"
	"hydrosync/internal/metrics"
	"hydrosync/internal/polling"
	"hydrosync/internal/push"
	"hydrosync/internal/repository"
	"hydrosync/internal/repository/db"
	"hydrosync/internal/retry"
	"hydrosync/internal/server"
	"hydrosync/internal/service"
	"hydrosync/internal/store"

	"golang.org/x/sync/errgroup"
)

const (
	configEnv       = "HYDROSYNC_CONFIG"
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 5 * time.Second
)

// @title        hydrosync API
// @version      1.0
// @description  Device control and state sync for hydroponic units.
// @BasePath     /
func main() {
	// load configs/config.yml (or $HYDROSYNC_CONFIG) with env overrides
	cfg, err := config.Load(os.Getenv(configEnv))
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := openDB(cfg.DBPath, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(conn)

	// engine core
	st := store.New()
	m := metrics.New(func() int { return len(st.Pending()) })
	backend := client.New(client.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
		ReadRetry:      retry.DefaultConfig(),
	}, &http.Client{}, log.With("component", "backend"))

	syncer := service.NewSyncer(st, backend, repos.EventRepo, m, log)
	sched := polling.New(syncer, cfg.Poll.Interval, log)
	sched.OnResult(func(unitID string, err error) {
		if err == nil {
			log.Debugw("poll_ok", "unit_id", unitID)
		}
	})

	pushMgr := push.New(pushConfig(cfg), log)
	pushMgr.OnRelay(syncer.HandleRelay)
	pushMgr.OnSensor(syncer.HandleSensor)
	pushMgr.OnPassthrough(syncer.HandlePassthrough)
	pushMgr.OnStateChange(syncer.HandleConnection)

	// wire dependencies
	services := service.NewService(service.Deps{
		Store:          st,
		Backend:        backend,
		Push:           pushMgr,
		Poller:         sched,
		Syncer:         syncer,
		Repos:          repos,
		Metrics:        m,
		Log:            log,
		RequestTimeout: cfg.Backend.RequestTimeout,
	})
	apiHandler := handlers.NewHandler(services, m.Handler(), log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pushMgr.Run(gctx) })

	probeBackend(ctx, backend, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, g, log)
	sched.Close()
	syncer.Close()
}

// openDB initializes the SQLite event journal.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "hydrosync.db")
		path = "hydrosync.db"
	}
	return db.InitDB(path)
}

// pushConfig maps the push section onto the connection manager settings.
func pushConfig(cfg *config.Config) push.Config {
	pc := push.DefaultConfig(cfg.Backend.WSURL)
	pc.Backoff.InitialDelay = cfg.Push.InitialRetryDelay
	pc.Backoff.MaxDelay = cfg.Push.MaxRetryDelay
	pc.Backoff.Multiplier = cfg.Push.Multiplier
	pc.Backoff.Jitter = cfg.Push.Jitter
	pc.PingInterval = cfg.Push.PingInterval
	pc.PongWait = cfg.Push.PongWait
	return pc
}

// probeBackend logs whether the backend answers at startup. The daemon
// starts either way; polling and the push loop keep retrying.
func probeBackend(ctx context.Context, backend *client.Client, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := backend.Health(ctx); err != nil {
		log.Warnw("backend_unreachable", "err", err)
		return
	}
	log.Infow("backend_reachable")
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, g *errgroup.Group, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// stop background goroutines
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("push_loop_stopped", "err", err)
	}
}
