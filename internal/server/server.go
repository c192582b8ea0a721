package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Fjallroth/matesrace/config"
	"github.com/Fjallroth/matesrace/internal/db"
	"github.com/Fjallroth/matesrace/internal/handlers"
	"github.com/Fjallroth/matesrace/internal/mq"
	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/internal/storage"
	"github.com/Fjallroth/matesrace/internal/store"
	"github.com/Fjallroth/matesrace/internal/strava"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

const (
	authRequestsPerMinute   = 20
	submitRequestsPerMinute = 10
	maxRequestBodyBytes     = 1 << 20
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	clients    closers
}

// New constructs a Server with its dependencies and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	var clients closers
	clients.add("database", dbConn.Close)

	userRepo := store.NewUserRepository(dbConn)
	raceRepo := store.NewRaceRepository(dbConn)
	participantRepo := store.NewParticipantRepository(dbConn)

	stravaClient := strava.NewClient(cfg.Strava)
	broker := services.NewTokenBroker(stravaClient)

	opts := []services.RaceServiceOption{services.WithLogger(slog.Default())}

	objectStorage, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = clients.close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	if objectStorage != nil {
		clients.add("object storage", objectStorage.Close)
		opts = append(opts, services.WithActivityArchive(storage.NewActivityArchive(objectStorage)))
		slog.Info("activity archive enabled", "provider", cfg.Storage.Provider, "bucket", objectStorage.Bucket())
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = clients.close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	if queue != nil {
		clients.add("message queue", queue.Close)
		opts = append(opts, services.WithEventPublisher(mq.NewEventBus(queue, cfg.MQ.Channel)))
		slog.Info("race events enabled", "provider", cfg.MQ.Provider, "channel", cfg.MQ.Channel)
	}

	userService := services.NewUserService(userRepo, stravaClient)
	raceService := services.NewRaceService(
		raceRepo,
		participantRepo,
		userRepo,
		broker,
		stravaClient,
		services.Limits{
			MaxActiveOrganizedRaces: cfg.Limits.MaxActiveOrganizedRaces,
			MaxJoinedRaces:          cfg.Limits.MaxJoinedRaces,
			MaxParticipantsPerRace:  cfg.Limits.MaxParticipantsPerRace,
		},
		opts...,
	)

	authMiddleware := handlers.RequireAuth(cfg.Auth.JWTSecret)
	authHandler := handlers.NewAuthHandler(userService, stravaClient, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.FrontendURL)
	healthHandler := handlers.NewHealthHandler(dbConn)

	submitLimiter := httprate.Limit(
		submitRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(handlers.RateKeyByUser),
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger,
		middleware.Timeout(60*time.Second),
		maxBodySize(maxRequestBodyBytes),
	)
	router.Get("/healthz", healthHandler.Check)
	router.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(authRequestsPerMinute, time.Minute))
		handlers.AuthRouter(r, authHandler, authMiddleware)
	})
	router.Route("/races", func(r chi.Router) {
		handlers.RaceRouter(r, raceService, authMiddleware, submitLimiter)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		clients:    clients,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the backing clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	_ = s.clients.close()
	return err
}

type namedCloser struct {
	name  string
	close func() error
}

// closers releases clients in reverse order of opening, logging failures.
type closers []namedCloser

func (c *closers) add(name string, close func() error) {
	*c = append(*c, namedCloser{name: name, close: close})
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].close(); err != nil {
			slog.Error("close error", "client", c[i].name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c[i].name, err))
		}
	}
	return errors.Join(errs...)
}
