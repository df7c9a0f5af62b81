package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-session/internal/config"
	"family-session/internal/handler"
	"family-session/internal/middleware"
	"family-session/internal/router"
	"family-session/internal/sandbox"
	"family-session/internal/service"
)

// App is the development backend: the auth and association endpoints the
// session client talks to, served from fixture data.
type App struct {
	server  *http.Server
	backend *Backend
}

// Backend is the sandbox handler plus the state behind it.
type Backend struct {
	Handler   http.Handler
	Directory *sandbox.Directory
	Auth      *service.AuthService
}

func NewBackend(cfg *config.SandboxConfig, fx sandbox.Fixtures) (*Backend, error) {
	directory := sandbox.NewDirectory(fx)

	authService, err := service.NewAuthService(directory, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Associations: handler.NewAssociationHandler(service.NewAssociationService(directory)),
	})

	return &Backend{Handler: appRouter, Directory: directory, Auth: authService}, nil
}

func New() (*App, error) {
	cfg, err := config.LoadSandbox()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	fx, err := sandbox.LoadFixtures(cfg.FixturesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}
	slog.Info("fixtures loaded", "file", cfg.FixturesFile, "users", len(fx.Users))

	backend, err := NewBackend(cfg, fx)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           backend.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{server: server, backend: backend}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("sandbox listening", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped", "outstanding_refresh_tokens", a.backend.Directory.OutstandingRefreshTokens())
	return nil
}
