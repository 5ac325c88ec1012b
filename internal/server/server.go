// Package server provides the HTTP server for the password reset service.
// It wires stores, the rate limiter, the notifier and the token lifecycle
// service together, and manages startup, maintenance and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/database"
	"github.com/fleetportal/passreset/internal/handlers"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/repository"
	"github.com/fleetportal/passreset/internal/repository/memory"
	"github.com/fleetportal/passreset/internal/service"
	"github.com/fleetportal/passreset/internal/utils/ratelimit"
	"github.com/fleetportal/passreset/migrations"
	"github.com/fleetportal/passreset/scripts"
)

// Handlers contains all HTTP handlers for the application.
type Handlers struct {
	// PasswordResetHandler serves forgot-password, verify-token and update
	PasswordResetHandler *handlers.PasswordResetHandler

	// SessionHandler serves session validation for the login gate
	SessionHandler *handlers.SessionHandler
}

// Server represents the API server for the password reset service.
type Server struct {
	// Config contains application configuration
	Config *config.AppConfig

	// Db is the MySQL pool; nil with the memory driver
	Db *database.Pool

	// Memory is the in-process store; nil with the mysql driver
	Memory *memory.Store

	// Handlers contains all HTTP request handlers
	Handlers *Handlers

	router     chi.Router
	httpServer *http.Server

	users    service.UserStore
	tokens   service.TokenStore
	health   HealthChecker
	notifier service.Notifier

	passwordCfg  *auth.PasswordConfig
	sessions     *auth.SessionService
	resetService *service.PasswordResetService

	counter     ratelimit.Counter
	limiter     *ratelimit.Limiter
	redisClient *redis.Client
	memCounter  *ratelimit.MemoryCounter

	now func() time.Time

	stopMaintenance chan struct{}
	stopOnce        sync.Once
}

// Option customises a Server before its components are built.
type Option func(*Server)

// WithNotifier replaces the notifier selected by configuration.
func WithNotifier(n service.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithCounter replaces the rate limit counter store.
func WithCounter(c ratelimit.Counter) Option {
	return func(s *Server) { s.counter = c }
}

// WithClock replaces the clock used by the reset service and sessions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new server instance with all required components.
//
// The initialization order is: stores → auth providers → rate limiter →
// services → handlers → routes.
func NewServer(cfg *config.AppConfig, opts ...Option) (*Server, error) {
	s := &Server{
		Config:          cfg,
		now:             time.Now,
		stopMaintenance: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupAuthProviders()

	if err := s.setupStores(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to set up stores: %w", err)
	}

	if err := s.setupRateLimiter(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to set up rate limiter: %w", err)
	}

	if err := s.setupServices(); err != nil {
		return nil, fmt.Errorf("failed to set up services: %w", err)
	}

	s.setupHandlers()
	s.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ServerAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupAuthProviders creates the password hashing config and the session
// token service.
func (s *Server) setupAuthProviders() {
	s.passwordCfg = auth.ConfigFromAppConfig(s.Config)
	s.sessions = auth.NewSessionService(&s.Config.Session).WithClock(s.now)
}

// setupStores opens the configured store, migrates it and seeds development
// accounts outside production.
func (s *Server) setupStores(ctx context.Context) error {
	if s.Config.Database.IsMemory() {
		s.Memory = memory.NewStore()
		s.users = s.Memory
		s.tokens = s.Memory
		log.Warn().Msg("Using in-memory stores, data is lost on restart")

		if !s.Config.App.IsProduction() {
			return s.seedMemory(s.Config.Database.SeedUsers)
		}
		return nil
	}

	db, err := database.Connect(ctx, s.Config)
	if err != nil {
		return err
	}
	s.Db = db
	s.health = db

	migrator := migrations.NewMigrator(db)
	if err := migrator.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	if !s.Config.App.IsProduction() {
		seeder := scripts.NewSeeder(db, s.passwordCfg)
		if err := seeder.SeedDatabase(ctx, s.Config.Database.SeedUsers); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	s.users = repository.NewUserRepository(db)
	s.tokens = repository.NewPasswordResetRepository(db)
	return nil
}

// seedMemory adds the configured development accounts to the memory store.
func (s *Server) seedMemory(users []config.SeedUser) error {
	for _, u := range users {
		if u.Username == "" || u.Email == "" || u.Phone == "" || u.Password == "" {
			return fmt.Errorf("seed user %q is missing a field", u.Username)
		}

		hash, err := auth.HashPassword(u.Password, s.passwordCfg)
		if err != nil {
			return fmt.Errorf("failed to hash password for seed user %s: %w", u.Username, err)
		}

		if _, created := s.Memory.AddUser(models.User{
			Username: u.Username,
			Email:    u.Email,
			Phone:    u.Phone,
			Password: hash,
		}); created {
			log.Info().Str("username", u.Username).Msg("Seeded development user")
		}
	}
	return nil
}

// setupRateLimiter builds the forgot-password limiter on Redis when an
// address is configured, otherwise on an in-process counter.
func (s *Server) setupRateLimiter(ctx context.Context) error {
	if s.counter == nil {
		if addr := s.Config.Redis.Address(); addr != "" {
			s.redisClient = redis.NewClient(&redis.Options{
				Addr:        addr,
				Password:    s.Config.Redis.Password,
				DB:          s.Config.Redis.DB,
				DialTimeout: constants.RedisDialTimeout,
			})

			pingCtx, cancel := context.WithTimeout(ctx, constants.RedisDialTimeout)
			defer cancel()
			if err := s.redisClient.Ping(pingCtx).Err(); err != nil {
				// Requests still follow the limiter's fault policy
				log.Warn().Err(err).Str("address", addr).Msg("Redis is not reachable")
			} else {
				log.Info().Str("address", addr).Msg("Rate limiter using Redis")
			}
			s.counter = ratelimit.NewRedisCounter(s.redisClient)
		} else {
			s.memCounter = ratelimit.NewMemoryCounter(constants.RateLimitCleanupInterval, ratelimit.WithClock(s.now))
			s.counter = s.memCounter
			log.Info().Msg("Rate limiter using in-process counter")
		}
	}

	s.limiter = ratelimit.NewLimiter(
		s.counter,
		ratelimit.Rate{Limit: s.Config.RateLimit.Limit, Window: s.Config.RateLimit.Window},
		constants.RateLimitKeyForgotPassword,
		s.Config.RateLimit.FailClosed,
	)
	return nil
}

// setupServices builds the notifier and the token lifecycle service.
func (s *Server) setupServices() error {
	if s.notifier == nil {
		notifier, err := service.NewNotifier(s.Config)
		if err != nil {
			return err
		}
		s.notifier = notifier
	}

	if s.users == nil || s.tokens == nil {
		return errors.New("stores not initialized")
	}

	s.resetService = service.NewPasswordResetService(
		s.users,
		s.tokens,
		s.notifier,
		s.passwordCfg,
		s.Config.Reset,
	).WithClock(s.now)

	return nil
}

// setupHandlers initializes all HTTP request handlers.
func (s *Server) setupHandlers() {
	s.Handlers = &Handlers{
		PasswordResetHandler: handlers.NewPasswordResetHandler(s.resetService),
		SessionHandler:       handlers.NewSessionHandler(),
	}
}

// Start starts the HTTP server and blocks until it fails or a shutdown
// signal arrives, then shuts down gracefully.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		log.Info().
			Str("address", s.Config.Server.ServerAddress()).
			Msg("Starting server")

		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	s.SetupMaintenanceTasks()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.Shutdown(ctx); err != nil {
			if closeErr := s.httpServer.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// releases the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopMaintenance) })

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	log.Info().Msg("Server stopped gracefully")

	s.closeStores()
	return nil
}

func (s *Server) closeStores() {
	if s.memCounter != nil {
		_ = s.memCounter.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if s.Db != nil {
		s.Db.Close()
		log.Info().Msg("Database connection closed")
	}
}

// SetupMaintenanceTasks prunes used and expired reset tokens every
// constants.MaintenanceInterval until the server shuts down.
func (s *Server) SetupMaintenanceTasks() {
	ticker := time.NewTicker(constants.MaintenanceInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stopMaintenance:
				return
			case <-ticker.C:
				s.runMaintenance(context.Background())
			}
		}
	}()
}

// runMaintenance performs one maintenance pass.
func (s *Server) runMaintenance(ctx context.Context) {
	if _, err := s.resetService.Prune(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to prune reset tokens")
	}
}

// Sessions returns the session token service.
func (s *Server) Sessions() *auth.SessionService {
	return s.sessions
}
