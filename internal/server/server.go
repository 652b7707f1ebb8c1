// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it opens the store, builds the
// services and handlers on top of it, mounts them on a chi router and runs
// the background reconcile job. main.go only loads config and calls Start.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sakif/matchday/internal/auth"
	"github.com/sakif/matchday/internal/config"
	"github.com/sakif/matchday/internal/handler"
	"github.com/sakif/matchday/internal/middleware"
	"github.com/sakif/matchday/internal/repository"
	"github.com/sakif/matchday/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/matchday/internal/repository/sqlite"
	"github.com/sakif/matchday/internal/scheduler"
	"github.com/sakif/matchday/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store. It is closed when Start returns.
type Server struct {
	router    *chi.Mux
	config    config.Config
	logger    *slog.Logger
	store     repository.Store
	scheduler *scheduler.Scheduler // nil when RECONCILE_INTERVAL is 0

	leaderboard *service.LeaderboardService
}

// OpenStore opens the backend selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		store, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoTransactions)
		if err != nil {
			return nil, fmt.Errorf("opening mongodb: %w", err)
		}
		return store, nil
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil
	}
}

// New wires every service and handler on top of store.
//
// DEPENDENCY CHAIN:
//
//	store → ScoringEngine → Match/Prediction/Leaderboard services → handlers
//	store.Repos().Users → AuthService → AuthHandler
//
// Handlers never touch the store; services never touch HTTP.
func New(cfg config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	engine := service.NewScoringEngine(store, logger)
	matchService := service.NewMatchService(store, engine, logger)
	predictionService := service.NewPredictionService(store, engine, logger)
	s.leaderboard = service.NewLeaderboardService(store, engine, logger)
	authService := service.NewAuthService(store.Repos().Users, tokens, auth.NewPasswordService(), cfg.AdminEmails, logger)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}

	s.setupRoutes(routes{
		tokens:      tokens,
		auth:        handler.NewAuthHandler(authService, github, cfg.CookieSecure, logger),
		matches:     handler.NewMatchHandler(matchService, logger),
		predictions: handler.NewPredictionHandler(predictionService, logger),
		leaderboard: handler.NewLeaderboardHandler(s.leaderboard, logger),
		github:      github != nil,
	})

	if cfg.ReconcileInterval > 0 {
		s.scheduler, err = scheduler.New(s.leaderboard, cfg.ReconcileInterval, logger)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

type routes struct {
	tokens      *auth.TokenService
	auth        *handler.AuthHandler
	matches     *handler.MatchHandler
	predictions *handler.PredictionHandler
	leaderboard *handler.LeaderboardHandler
	github      bool
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                     → store ping
//	POST   /auth/register               → create account        (rate limited)
//	POST   /auth/login                  → sign in               (rate limited)
//	POST   /auth/logout                 → clear cookie
//	GET    /auth/github/login           → GitHub redirect       (when configured)
//	GET    /auth/github/callback        → GitHub callback       (when configured)
//	GET    /api/matches                 → public fixtures
//	GET    /api/matches/{id}            → one fixture
//	GET    /api/leaderboard             → public standings
//	GET    /api/me                      → own profile           (auth)
//	PATCH  /api/me                      → edit own profile      (auth)
//	GET    /api/me/predictions          → own predictions       (auth)
//	POST   /api/predictions             → submit prediction     (auth)
//	GET    /api/predictions/{matchId}   → own prediction        (auth)
//	GET    /api/admin/matches           → all matches           (admin)
//	POST   /api/admin/matches           → create match          (admin)
//	PATCH  /api/admin/matches/{id}      → edit or score match   (admin)
//	DELETE /api/admin/matches/{id}      → delete and reverse    (admin)
//	PATCH  /api/admin/leaderboard       → override points       (admin)
//	POST   /api/admin/reset-points      → recompute all totals  (admin)
func (s *Server) setupRoutes(h routes) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.config.AuthRateLimit, time.Minute))

		r.Post("/register", h.auth.HandleRegister)
		r.Post("/login", h.auth.HandleLogin)
		r.Post("/logout", h.auth.HandleLogout)
		if h.github {
			r.Get("/github/login", h.auth.HandleGitHubLogin)
			r.Get("/github/callback", h.auth.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/matches", h.matches.HandleList)
		r.Get("/matches/{id}", h.matches.HandleGet)
		r.Get("/leaderboard", h.leaderboard.HandleStandings)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.tokens))

			r.Get("/me", h.auth.HandleMe)
			r.Patch("/me", h.auth.HandleUpdateMe)
			r.Get("/me/predictions", h.predictions.HandleListMine)
			r.Post("/predictions", h.predictions.HandleSubmit)
			r.Get("/predictions/{matchId}", h.predictions.HandleGetForMatch)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(h.tokens))

			r.Get("/matches", h.matches.HandleAdminList)
			r.Post("/matches", h.matches.HandleCreate)
			r.Patch("/matches/{id}", h.matches.HandleUpdate)
			r.Delete("/matches/{id}", h.matches.HandleDelete)
			r.Patch("/leaderboard", h.leaderboard.HandleSetPoints)
			r.Post("/reset-points", h.leaderboard.HandleRecompute)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Leaderboard returns the service used for reconciliation.
func (s *Server) Leaderboard() *service.LeaderboardService {
	return s.leaderboard
}

// Close stops the reconcile job and releases the store.
func (s *Server) Close() error {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Error("stopping scheduler", slog.String("error", err.Error()))
		}
	}
	return s.store.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, wait for in-flight requests (30s), stop the
// reconcile job and close the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.Store),
			slog.Bool("transactional", s.store.Transactional()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
