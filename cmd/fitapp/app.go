package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/riverajo/fitness-app/internal/db"
	"github.com/riverajo/fitness-app/internal/handlers"
	"github.com/riverajo/fitness-app/internal/logger"
	"github.com/riverajo/fitness-app/internal/repository/postgres"
	"github.com/riverajo/fitness-app/internal/service/auth"
	"github.com/riverajo/fitness-app/internal/service/auth/tokenmanager"
	"github.com/riverajo/fitness-app/internal/telemetry"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	cleaner           *auth.TokenCleaner
	telemetryShutdown func(context.Context) error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key must be set, generate one with cmd/gensecret")
	}
	if c.DatabaseDSN == "" {
		return nil, errors.New("database dsn must be set")
	}

	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	}, storage.RefreshToken())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{StrictSessions: c.StrictSessions}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Tracing: spans per request, exported per environment
	telemetryShutdown, err := telemetry.Setup(ctx, c.Environment)
	if err != nil {
		return nil, fmt.Errorf("error while initializing telemetry. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, l)

	return &ServerApp{
		ListenAddr:        c.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, "fitapp"),
		cleaner:           auth.NewTokenCleaner(storage.RefreshToken(), l, 0),
		telemetryShutdown: telemetryShutdown,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go s.cleaner.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if s.telemetryShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if flushErr := s.telemetryShutdown(flushCtx); flushErr != nil {
			slog.Error("telemetry flush failed", "error", flushErr.Error())
		}
	}

	return err
}
