package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ByAncort/JwtAuth/config"
	"github.com/ByAncort/JwtAuth/internal/db"
	"github.com/ByAncort/JwtAuth/internal/events"
	"github.com/ByAncort/JwtAuth/internal/handlers"
	"github.com/ByAncort/JwtAuth/internal/services"
	"github.com/ByAncort/JwtAuth/internal/store"
	"github.com/ByAncort/JwtAuth/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *events.Publisher
	logger     zerolog.Logger
}

// New constructs a Server with all auth components wired. Token
// misconfiguration (weak secret, non-positive TTL) fails here, before the
// server accepts any request.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	codec, err := token.NewCodec(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	publisher, err := newPublisher(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	roleRepo := store.NewRoleRepository(dbConn)

	authService := services.NewAuthService(
		userRepo,
		roleRepo,
		services.NewBcryptHasher(),
		codec,
		publisher,
		logger,
	)
	authHandler := handlers.NewAuthHandler(authService, codec, userRepo, cfg.JWT.CookieName, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth/v1/rest", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

func newPublisher(ctx context.Context, cfg config.MQConfig) (*events.Publisher, error) {
	switch cfg.Backend {
	case "rabbitmq":
		backend, err := events.NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return events.NewPublisher(backend), nil
	case "pubsub":
		backend, err := events.NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return events.NewPublisher(backend), nil
	case "":
		return events.NewPublisher(events.NoopBackend{}), nil
	}
	return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting auth server")
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
