// Package server wires configuration, storage, domain services and the HTTP
// router into a runnable process.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"personnel/internal/domain/audit"
	"personnel/internal/domain/auth"
	"personnel/internal/domain/directory"
	"personnel/internal/domain/notifications"
	"personnel/internal/platform/config"
	cryptoutil "personnel/internal/platform/crypto"
	"personnel/internal/platform/db"
	"personnel/internal/platform/email"
	"personnel/internal/platform/jobs"
	"personnel/internal/platform/metrics"
	"personnel/internal/transport/http/api"
	audithandler "personnel/internal/transport/http/handlers/audit"
	authhandler "personnel/internal/transport/http/handlers/auth"
	systemhandler "personnel/internal/transport/http/handlers/system"
	userhandler "personnel/internal/transport/http/handlers/users"
	"personnel/internal/transport/http/middleware"
)

// App holds the wired services behind the router.
type App struct {
	Config    config.Config
	Directory *directory.Service
	Auth      *auth.Service
	Jobs      *jobs.Service
	Metrics   *metrics.Collector
	Router    http.Handler
}

// New wires every service on top of conn. It does not start background work.
func New(cfg config.Config, conn db.DBTX, pinger systemhandler.Pinger) (*App, error) {
	cipher, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}

	creds := auth.NewCredentials(cfg.BcryptCost)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	dir := directory.NewService(directory.NewPostgresStore(conn, cipher), creds)
	authService := auth.NewService(dir, creds, tokens)
	auditService := audit.New(conn)
	jobService := jobs.New(conn)

	notifier := notifications.New(nil, cfg.EmailFrom)
	mailer, err := email.New(cfg)
	switch {
	case err == nil:
		notifier.Mailer = mailer
	case cfg.IsProduction():
		slog.Warn("email is not configured, password resets are disabled", "err", err)
	default:
		notifier.LogCredentials = true
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	app := &App{
		Config:    cfg,
		Directory: dir,
		Auth:      authService,
		Jobs:      jobService,
		Metrics:   collector,
	}
	app.Router = newRouter(cfg, routerDeps{
		gate:        auth.NewGate(tokens),
		metrics:     collector,
		authH:       authhandler.NewHandler(authService, auditService, collector),
		usersH:      userhandler.NewHandler(dir, authService, auditService, jobService, notifier, middleware.NewIdempotencyStore(conn)),
		auditH:      audithandler.NewHandler(auditService),
		systemH:     systemhandler.NewHandler(pinger, collector),
		frontendDir: cfg.FrontendDir,
	})
	return app, nil
}

type routerDeps struct {
	gate        *auth.Gate
	metrics     *metrics.Collector
	authH       *authhandler.Handler
	usersH      *userhandler.Handler
	auditH      *audithandler.Handler
	systemH     *systemhandler.Handler
	frontendDir string
}

func newRouter(cfg config.Config, deps routerDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(deps.metrics))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	deps.systemH.RegisterProbes(router)

	limit := cfg.RateLimitPerMinute
	router.Route("/api", func(r chi.Router) {
		r.With(
			middleware.RateLimit(limit, time.Minute, middleware.WithKeyFunc(middleware.ClientIP)),
			middleware.LoginRateLimit(limit, time.Minute),
		).Post("/auth/login", deps.authH.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(deps.gate))
			r.Use(middleware.RateLimit(limit, time.Minute))
			r.Use(middleware.SensitiveMutationRateLimit(limit, time.Minute))
			r.Post("/auth/change-password", deps.authH.HandleChangePassword)
			deps.systemH.RegisterRoutes(r)
			deps.usersH.RegisterRoutes(r)
			deps.auditH.RegisterRoutes(r)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			msg := fmt.Sprintf("route %s %s not found", r.Method, r.URL.Path)
			api.Fail(w, http.StatusNotFound, "route_not_found", msg, middleware.GetRequestID(r.Context()))
		})
	})

	router.Mount("/", spaHandler{staticPath: deps.frontendDir, indexPath: "index.html"})
	return router
}

// Run loads configuration, prepares the database and serves until SIGINT or
// SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	if strings.TrimSpace(cfg.JWTSecret) == "" && !cfg.IsProduction() {
		cfg.JWTSecret = randomSecret()
		slog.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	app, err := New(cfg, pool, pool)
	if err != nil {
		return err
	}

	if cfg.RunSeed {
		if err := Seed(ctx, app.Directory, cfg); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	app.Jobs.Start(ctx)
	app.Jobs.Schedule(ctx, jobs.JobEmployeeIDBackfill, cfg.EmployeeIDBackfillInterval, func(ctx context.Context) (any, error) {
		assigned, err := app.Directory.AssignMissingEmployeeIDs(ctx)
		return map[string]int{"assigned": len(assigned)}, err
	})

	return serve(ctx, cfg, app.Router)
}

func serve(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("personnel server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

var _ systemhandler.Pinger = (*pgxpool.Pool)(nil)
