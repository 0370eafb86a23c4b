// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Tasour/wikipedia-graph/internal/api"
	"github.com/Tasour/wikipedia-graph/internal/graph"
	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/mcpserver"
	"github.com/Tasour/wikipedia-graph/internal/metrics"
	"github.com/Tasour/wikipedia-graph/internal/session"
	"github.com/Tasour/wikipedia-graph/internal/sse"
	"github.com/Tasour/wikipedia-graph/internal/tui"
	"github.com/Tasour/wikipedia-graph/internal/wiki"
	pkgconfig "github.com/Tasour/wikipedia-graph/pkg/config"
)

// components holds the components shared by every front end.
type components struct {
	cfg       *Config
	logger    *slog.Logger
	level     *slog.LevelVar
	wiki      *wiki.Client
	db        *index.DB
	sess      *session.Session
	seedPages []string
	seedIDs   []int64
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.seedPages == nil && app.seedIDs == nil {
		app.seedPages = app.config.Seed.Pages
		app.seedIDs = app.config.Seed.PageIDs
	}
	return app, nil
}

func newLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == LogFormatText {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// setup initializes logging, the wiki client, the visited-page index and the
// session. The caller must close the returned components.
func (app *application) setup(logOut io.Writer, recorder metrics.Recorder) (*components, error) {
	cfg := app.config

	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := newLogger(logOut, cfg.App.LogFormat, level)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("wiki", cfg.Wiki.BaseURL),
		slog.String("index_dsn", cfg.Index.DSN),
		slog.Bool("prune_on_delete", cfg.Links.PruneOnDelete),
		slog.String("log_level", cfg.App.LogLevel.String()))

	client := wiki.New(wiki.Config{
		BaseURL:   cfg.Wiki.BaseURL,
		APIURL:    cfg.Wiki.APIURL,
		RESTURL:   cfg.Wiki.RESTURL,
		UserAgent: cfg.Wiki.UserAgent,
		Timeout:   cfg.Wiki.Timeout,
	})

	db, err := index.Open(cfg.Index.DSN)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	sess := session.New(client,
		session.WithLogger(logger),
		session.WithIndexer(db),
		session.WithRecorder(recorder),
		session.WithPruneOnDelete(cfg.Links.PruneOnDelete),
		session.WithBaseURL(client.BaseURL()),
		session.WithGraphOptions(graph.WithBounds(graph.Bounds{
			Width:  cfg.Layout.Width,
			Height: cfg.Layout.Height,
		})),
	)

	return &components{
		cfg:       cfg,
		logger:    logger,
		level:     level,
		wiki:      client,
		db:        db,
		sess:      sess,
		seedPages: app.seedPages,
		seedIDs:   app.seedIDs,
	}, nil
}

func (rt *components) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index", slog.String("error", err.Error()))
	}
}

// seed opens the configured articles. Page ids are resolved to titles first
// and opened before the titles. Failures are logged, never fatal.
func (rt *components) seed(ctx context.Context) {
	var titles []string
	if len(rt.seedIDs) > 0 {
		resolved, err := rt.wiki.TitlesForPageIDs(ctx, rt.seedIDs)
		if err != nil {
			rt.logger.Warn("resolve seed page ids failed", slog.String("error", err.Error()))
		}
		titles = append(titles, resolved...)
	}
	titles = append(titles, rt.seedPages...)
	if len(titles) == 0 {
		return
	}

	start := time.Now()
	err := rt.sess.Seed(ctx, titles)
	st := rt.sess.Stats()
	rt.logger.Info("Seeding finished",
		slog.Int("requested", len(titles)),
		slog.Int("nodes", st.Nodes),
		slog.Int("edges", st.Edges),
		slog.Duration("took", time.Since(start)))
	if err != nil {
		rt.logger.Warn("some seed pages failed", slog.String("error", err.Error()))
	}
}

// watchConfig reloads the log level whenever the config file changes.
func (rt *components) watchConfig(ctx context.Context, path string) {
	err := pkgconfig.Watch(ctx, path, func() {
		next := NewDefaultConfig()
		if err := pkgconfig.Load(path, next); err != nil {
			rt.logger.Warn("config reload failed", slog.String("error", err.Error()))
			return
		}
		rt.level.Set(next.App.LogLevel)
		rt.logger.Info("Configuration reloaded", slog.String("log_level", next.App.LogLevel.String()))
	})
	if err != nil {
		rt.logger.Warn("config watcher stopped", slog.String("error", err.Error()))
	}
}

// newHTTPHandler builds the root router: health checks, metrics and the API
// under /api.
func newHTTPHandler(rt *components, broker *sse.Broker) http.Handler {
	cfg := rt.cfg

	h := api.NewHandler(rt.sess, rt.wiki, rt.db)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(os.Stdout, metrics.Prometheus{})
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger
	cfg := rt.cfg

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()
	rt.sess.Subscribe(broker)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(rt, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Seed the graph in the background.
	g.Go(func() error {
		rt.seed(gCtx)
		return nil
	})

	if app.configPath != "" {
		g.Go(func() error {
			rt.watchConfig(gCtx, app.configPath)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context once the server is shutting down,
// so the seeding and config watcher goroutines stop too.
var errShutdown = errors.New("shutdown")

// RunTUI seeds the session and runs the terminal renderer. Logs are
// discarded because the terminal belongs to the renderer.
func RunTUI(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(io.Discard, metrics.Nop{})
	if err != nil {
		return err
	}
	defer rt.close()

	rt.seed(ctx)
	return tui.Run(ctx, rt.sess, "")
}

// RunMCP seeds the session and serves MCP tools on stdin/stdout. Logs go to
// stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(os.Stderr, metrics.Nop{})
	if err != nil {
		return err
	}
	defer rt.close()

	rt.seed(ctx)
	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.sess, rt.wiki, rt.db).ServeStdio()
}
